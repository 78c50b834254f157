package alarm

// CallState is the phone call state reported by the platform.
type CallState int

const (
	// CallUnknown is the initial state before the platform reported anything.
	CallUnknown CallState = iota
	// CallIdle means no call is in progress.
	CallIdle
	// CallActive means a call is ringing or off-hook.
	CallActive
)

// String implements fmt.Stringer.
func (s CallState) String() string {
	switch s {
	case CallIdle:
		return "idle"
	case CallActive:
		return "active"
	default:
		return "unknown"
	}
}

// ParseCallState converts a textual call state.
func ParseCallState(s string) (CallState, bool) {
	switch s {
	case "idle":
		return CallIdle, true
	case "active", "ringing", "offhook":
		return CallActive, true
	case "unknown", "":
		return CallUnknown, true
	default:
		return CallUnknown, false
	}
}

// DeliveryState is the lifecycle state of one alarm id inside the delivery core.
type DeliveryState int

const (
	// StateIdle means nothing is shown or playing for the alarm.
	StateIdle DeliveryState = iota
	// StateHeldForCall means delivery is postponed while a call is active.
	StateHeldForCall
	// StateAlerting means the alarm is playing and the ongoing notification is shown.
	StateAlerting
	// StateSnoozed means the user snoozed the alarm.
	StateSnoozed
)

// String implements fmt.Stringer.
func (s DeliveryState) String() string {
	switch s {
	case StateHeldForCall:
		return "held_for_call"
	case StateAlerting:
		return "alerting"
	case StateSnoozed:
		return "snoozed"
	default:
		return "idle"
	}
}

// Action is a user action on an alarm.
type Action int

const (
	// ActionSnooze defers the alarm.
	ActionSnooze Action = iota + 1
	// ActionDismiss stops the alarm.
	ActionDismiss
	// ActionOpen brings up the full-screen alert.
	ActionOpen
)

// String implements fmt.Stringer.
func (a Action) String() string {
	switch a {
	case ActionSnooze:
		return "snooze"
	case ActionDismiss:
		return "dismiss"
	case ActionOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ParseAction converts a textual action.
func ParseAction(s string) (Action, bool) {
	switch s {
	case "snooze":
		return ActionSnooze, true
	case "dismiss":
		return ActionDismiss, true
	case "open":
		return ActionOpen, true
	default:
		return 0, false
	}
}
