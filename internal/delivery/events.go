package delivery

import (
	"time"

	"github.com/oshokin/alarm-klaxon/internal/domain/alarm"
)

// event is a message processed by an alarm mailbox.
type event interface {
	respond(err error)
}

// replier answers the caller waiting on a synchronous event.
type replier struct {
	reply chan error
}

func newReplier() replier {
	return replier{reply: make(chan error, 1)}
}

func (r replier) respond(err error) {
	if r.reply != nil {
		r.reply <- err
	}
}

// fireEvent is an alarm becoming due, from the scheduler or the hold timer.
type fireEvent struct {
	replier

	// event is the alarm occurrence.
	event *alarm.FireEvent
	// redelivery marks a hold timer re-delivery.
	redelivery bool
	// holdGen is the hold generation that armed the re-delivery.
	holdGen uint64
}

// killedEvent is playback stopping without user action.
type killedEvent struct {
	replier

	killed alarm.Killed
}

// actionEvent is a user action from the notification or the UI.
type actionEvent struct {
	replier

	action alarm.Action
}

// cancelSnoozeEvent cancels a pending snooze. all marks a cancel-everything
// broadcast whose bookkeeping is done once by the caller.
type cancelSnoozeEvent struct {
	replier

	all bool
}

// stateQuery copies the record into snapshot.
type stateQuery struct {
	replier

	snapshot *Snapshot
}

// Snapshot is a point-in-time view of one alarm id.
type Snapshot struct {
	// AlarmID identifies the alarm.
	AlarmID int
	// State is the delivery state.
	State alarm.DeliveryState
	// SessionID is the playback session while alerting.
	SessionID uint64
	// Event is the last delivered or held event.
	Event *alarm.FireEvent
	// Notification is the displayed notification, nil when none.
	Notification *alarm.Notification
	// SnoozedUntil is set while snoozed or held for a call.
	SnoozedUntil time.Time
}
