package alarm

import "time"

// KillReason tells why a playback session was torn down without user action.
type KillReason int

const (
	// KillTimeout is the auto-silence timer.
	KillTimeout KillReason = iota + 1
	// KillCallInterrupt is an incoming or outgoing call.
	KillCallInterrupt
	// KillReplaced is another alarm taking over playback.
	KillReplaced
)

// String implements fmt.Stringer.
func (r KillReason) String() string {
	switch r {
	case KillTimeout:
		return "timeout"
	case KillCallInterrupt:
		return "call_interrupt"
	case KillReplaced:
		return "replaced"
	default:
		return "unknown"
	}
}

// Killed reports that playback for an alarm stopped on its own.
type Killed struct {
	// Event is the alarm whose playback stopped.
	Event *FireEvent
	// SessionID identifies the playback session that stopped.
	SessionID uint64
	// ElapsedMinutes is the playback duration rounded to the nearest minute.
	ElapsedMinutes int
	// Replaced is true when another alarm took over playback.
	Replaced bool
	// Reason tells what stopped the session.
	Reason KillReason
}

// OutboundKind tags an Outbound message.
type OutboundKind int

const (
	// OutShowNotification posts or replaces the notification of an alarm.
	OutShowNotification OutboundKind = iota + 1
	// OutCancelNotification removes the notification of an alarm.
	OutCancelNotification
	// OutFullScreen asks the UI to present the full-screen alert.
	OutFullScreen
	// OutAlarmDisabled tells the scheduler a one-shot alarm must be disabled.
	OutAlarmDisabled
	// OutNextAlertRequested asks the scheduler to recompute the next occurrence.
	OutNextAlertRequested
	// OutKilled reports a playback session stopped without user action.
	OutKilled
	// OutSnoozeCancelled tells any active UI that a snooze was cancelled.
	OutSnoozeCancelled
	// OutAlarmDone reports that delivery of an alarm finished.
	OutAlarmDone
)

// String implements fmt.Stringer.
func (k OutboundKind) String() string {
	switch k {
	case OutShowNotification:
		return "show_notification"
	case OutCancelNotification:
		return "cancel_notification"
	case OutFullScreen:
		return "full_screen"
	case OutAlarmDisabled:
		return "alarm_disabled"
	case OutNextAlertRequested:
		return "next_alert_requested"
	case OutKilled:
		return "killed"
	case OutSnoozeCancelled:
		return "snooze_cancelled"
	case OutAlarmDone:
		return "alarm_done"
	default:
		return "unknown"
	}
}

// Outbound is a message from the delivery core to its collaborators.
type Outbound struct {
	// Kind tags the message.
	Kind OutboundKind
	// AlarmID is the alarm the message refers to, InvalidID when none.
	AlarmID int
	// At is when the message was produced.
	At time.Time
	// Notification is set for OutShowNotification.
	Notification *Notification
	// Killed is set for OutKilled.
	Killed *Killed
}
