package delivery

import (
	"context"
	"time"

	"github.com/oshokin/alarm-klaxon/internal/domain/alarm"
	"github.com/oshokin/alarm-klaxon/internal/playback"
)

const (
	// DefaultSnoozeDuration is how long a snoozed alarm stays quiet.
	DefaultSnoozeDuration = 10 * time.Minute
	// DefaultHoldInterval is the re-check interval while a call holds an alarm.
	DefaultHoldInterval = time.Second
	// DefaultStaleWindow is how late a fire event may arrive and still ring.
	DefaultStaleWindow = 30 * time.Minute
)

// Player is the playback side of the coordinator.
type Player interface {
	// Play tears down any active session and starts playback for event.
	Play(ctx context.Context, event *alarm.FireEvent) (playback.Result, error)
	// StopSession stops the session if it is still active.
	StopSession(ctx context.Context, id uint64) bool
	// CallStateChanged forwards a call state transition.
	CallStateChanged(ctx context.Context, state alarm.CallState)
}

// Publisher receives outbound messages.
type Publisher interface {
	Publish(ctx context.Context, msg alarm.Outbound)
}

// WakeLock keeps the host awake between delivery and teardown.
type WakeLock interface {
	Acquire(ctx context.Context, tag string)
	Release(ctx context.Context, tag string)
}

// PowerController shuts the host down.
type PowerController interface {
	PowerOff(ctx context.Context) error
}

// Options configures a Coordinator.
type Options struct {
	// CallHold postpones delivery while a call is active.
	CallHold bool
	// SnoozeDuration is how long a user snooze lasts.
	SnoozeDuration time.Duration
	// HoldInterval is the re-delivery interval while held for a call.
	HoldInterval time.Duration
	// StaleWindow is the maximum lateness of a deliverable fire event.
	StaleWindow time.Duration
	// Power shuts the host down after a power-off alarm times out. Nil disables it.
	Power PowerController
}

// withDefaults fills zero values.
func (o Options) withDefaults() Options {
	if o.SnoozeDuration <= 0 {
		o.SnoozeDuration = DefaultSnoozeDuration
	}

	if o.HoldInterval <= 0 {
		o.HoldInterval = DefaultHoldInterval
	}

	if o.StaleWindow <= 0 {
		o.StaleWindow = DefaultStaleWindow
	}

	return o
}
