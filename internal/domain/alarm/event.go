package alarm

import (
	"errors"
	"fmt"
	"time"
)

// InvalidID marks a missing alarm identifier.
const InvalidID = -1

// DefaultLabel is shown when an alarm has no label of its own.
const DefaultLabel = "Alarm"

var (
	// ErrMalformedEvent is returned when an alarm payload cannot be decoded.
	ErrMalformedEvent = errors.New("malformed alarm event")
	// ErrStaleEvent is returned when an alarm is delivered too long after its scheduled time.
	ErrStaleEvent = errors.New("stale alarm event")
)

// FireEvent describes one alarm occurrence.
// It is created by the scheduler and never mutated afterwards.
type FireEvent struct {
	// ID identifies the alarm.
	ID int
	// ScheduledAt is the time the alarm was due.
	ScheduledAt time.Time
	// Label is the user-provided alarm title, may be empty.
	Label string
	// Alert references the sound to play. Empty means the default alarm sound.
	Alert string
	// Vibrate enables the vibration pattern.
	Vibrate bool
	// Silent disables audio entirely.
	Silent bool
	// Repeating is true when the alarm recurs on some days of the week.
	Repeating bool
	// PowerOffAlarm is true when the device was powered on to ring this alarm.
	PowerOffAlarm bool
}

// Validate checks that the event carries the fields delivery depends on.
func (e *FireEvent) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: event is nil", ErrMalformedEvent)
	}

	if e.ID <= 0 {
		return fmt.Errorf("%w: invalid alarm id %d", ErrMalformedEvent, e.ID)
	}

	if e.ScheduledAt.IsZero() {
		return fmt.Errorf("%w: alarm %d has no scheduled time", ErrMalformedEvent, e.ID)
	}

	return nil
}

// LabelOrDefault returns the label, falling back to DefaultLabel.
func (e *FireEvent) LabelOrDefault() string {
	if e.Label == "" {
		return DefaultLabel
	}

	return e.Label
}

// Clone returns a copy of the event.
func (e *FireEvent) Clone() *FireEvent {
	if e == nil {
		return nil
	}

	cloned := *e

	return &cloned
}

// IsStale reports whether the event is older than window relative to now.
func (e *FireEvent) IsStale(now time.Time, window time.Duration) bool {
	return now.After(e.ScheduledAt.Add(window))
}
