package alarm

import (
	"fmt"
	"time"
)

// NotificationVariant selects how the alarm notification is presented.
type NotificationVariant int

const (
	// VariantOngoing is the full, non-dismissable notification of a ringing alarm.
	VariantOngoing NotificationVariant = iota + 1
	// VariantSnoozed tells the user when the alarm will ring again.
	VariantSnoozed
	// VariantSilenced is the plain notification left after auto-silence.
	VariantSilenced
)

// String implements fmt.Stringer.
func (v NotificationVariant) String() string {
	switch v {
	case VariantOngoing:
		return "ongoing"
	case VariantSnoozed:
		return "snoozed"
	case VariantSilenced:
		return "silenced"
	default:
		return "unknown"
	}
}

// ActionHandle binds an opaque handle to the action it triggers.
type ActionHandle struct {
	// Action is what invoking the handle does.
	Action Action
	// Handle is the opaque token given to the notification surface.
	Handle string
}

// Notification is the currently displayed notification for one alarm id.
type Notification struct {
	// AlarmID is the key of the notification.
	AlarmID int
	// Variant selects ongoing, snoozed or silenced presentation.
	Variant NotificationVariant
	// Label is the title line.
	Label string
	// Text is the second line: alarm time, snooze time or silenced message.
	Text string
	// SilencedMinutes is set for the silenced variant.
	SilencedMinutes int
	// Actions lists the handles attached to the notification.
	Actions []ActionHandle
}

// Handle returns the handle registered for the action.
func (n *Notification) Handle(action Action) (string, bool) {
	for _, a := range n.Actions {
		if a.Action == action {
			return a.Handle, true
		}
	}

	return "", false
}

// FormatClock renders a time of day for notification text.
func FormatClock(t time.Time) string {
	return t.Format("15:04")
}

// SnoozedLabel appends the snoozed marker to a label.
func SnoozedLabel(label string) string {
	return label + " (snoozed)"
}

// SnoozedText renders the snoozed notification text.
func SnoozedText(until time.Time) string {
	return "Snoozed until " + FormatClock(until)
}

// SilencedText renders the notification text after auto-silence.
func SilencedText(minutes int) string {
	if minutes == 1 {
		return "Silenced after 1 minute"
	}

	return fmt.Sprintf("Silenced after %d minutes", minutes)
}
