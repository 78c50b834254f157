package delivery

import (
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	core "github.com/oshokin/alarm-klaxon/internal/delivery"
	"github.com/oshokin/alarm-klaxon/internal/domain/alarm"
)

// Message field names.
const (
	FieldID              = "id"
	FieldAlarmID         = "alarm_id"
	FieldScheduledAt     = "scheduled_at"
	FieldLabel           = "label"
	FieldAlert           = "alert"
	FieldVibrate         = "vibrate"
	FieldSilent          = "silent"
	FieldRepeating       = "repeating"
	FieldPowerOffAlarm   = "power_off_alarm"
	FieldState           = "state"
	FieldAction          = "action"
	FieldHandle          = "handle"
	FieldActor           = "actor"
	FieldAccepted        = "accepted"
	FieldReason          = "reason"
	FieldKind            = "kind"
	FieldAt              = "at"
	FieldNotification    = "notification"
	FieldKilled          = "killed"
	FieldVariant         = "variant"
	FieldText            = "text"
	FieldSilencedMinutes = "silenced_minutes"
	FieldActions         = "actions"
	FieldSessionID       = "session_id"
	FieldElapsedMinutes  = "elapsed_minutes"
	FieldReplaced        = "replaced"
	FieldEvent           = "event"
	FieldSnoozedUntil    = "snoozed_until"
	FieldAlarms          = "alarms"
)

// EncodeFireEvent converts a fire event to its wire form.
func EncodeFireEvent(event *alarm.FireEvent) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldID:            structpb.NewNumberValue(float64(event.ID)),
		FieldScheduledAt:   structpb.NewStringValue(formatTime(event.ScheduledAt)),
		FieldLabel:         structpb.NewStringValue(event.Label),
		FieldAlert:         structpb.NewStringValue(event.Alert),
		FieldVibrate:       structpb.NewBoolValue(event.Vibrate),
		FieldSilent:        structpb.NewBoolValue(event.Silent),
		FieldRepeating:     structpb.NewBoolValue(event.Repeating),
		FieldPowerOffAlarm: structpb.NewBoolValue(event.PowerOffAlarm),
	}}
}

// DecodeFireEvent converts a wire fire event. Failures wrap alarm.ErrMalformedEvent.
func DecodeFireEvent(in *structpb.Struct) (*alarm.FireEvent, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: empty payload", alarm.ErrMalformedEvent)
	}

	fields := in.GetFields()

	id, err := intField(fields, FieldID, true)
	if err != nil {
		return nil, err
	}

	scheduled, err := timeField(fields, FieldScheduledAt)
	if err != nil {
		return nil, err
	}

	event := &alarm.FireEvent{
		ID:            id,
		ScheduledAt:   scheduled,
		Label:         fields[FieldLabel].GetStringValue(),
		Alert:         fields[FieldAlert].GetStringValue(),
		Vibrate:       fields[FieldVibrate].GetBoolValue(),
		Silent:        fields[FieldSilent].GetBoolValue(),
		Repeating:     fields[FieldRepeating].GetBoolValue(),
		PowerOffAlarm: fields[FieldPowerOffAlarm].GetBoolValue(),
	}

	if err = event.Validate(); err != nil {
		return nil, err
	}

	return event, nil
}

// EncodeOutbound converts an outbound message to its wire form.
func EncodeOutbound(msg alarm.Outbound) *structpb.Struct {
	fields := map[string]*structpb.Value{
		FieldKind:    structpb.NewStringValue(msg.Kind.String()),
		FieldAlarmID: structpb.NewNumberValue(float64(msg.AlarmID)),
		FieldAt:      structpb.NewStringValue(formatTime(msg.At)),
	}

	if msg.Notification != nil {
		fields[FieldNotification] = structpb.NewStructValue(encodeNotification(msg.Notification))
	}

	if msg.Killed != nil {
		fields[FieldKilled] = structpb.NewStructValue(encodeKilled(msg.Killed))
	}

	return &structpb.Struct{Fields: fields}
}

// EncodeSnapshot converts a delivery snapshot to its wire form.
func EncodeSnapshot(snapshot core.Snapshot) *structpb.Struct {
	fields := map[string]*structpb.Value{
		FieldAlarmID:   structpb.NewNumberValue(float64(snapshot.AlarmID)),
		FieldState:     structpb.NewStringValue(snapshot.State.String()),
		FieldSessionID: structpb.NewNumberValue(float64(snapshot.SessionID)),
	}

	if snapshot.Event != nil {
		fields[FieldEvent] = structpb.NewStructValue(EncodeFireEvent(snapshot.Event))
	}

	if snapshot.Notification != nil {
		fields[FieldNotification] = structpb.NewStructValue(encodeNotification(snapshot.Notification))
	}

	if !snapshot.SnoozedUntil.IsZero() {
		fields[FieldSnoozedUntil] = structpb.NewStringValue(formatTime(snapshot.SnoozedUntil))
	}

	return &structpb.Struct{Fields: fields}
}

func encodeNotification(n *alarm.Notification) *structpb.Struct {
	actions := make([]*structpb.Value, 0, len(n.Actions))

	for _, a := range n.Actions {
		actions = append(actions, structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			FieldAction: structpb.NewStringValue(a.Action.String()),
			FieldHandle: structpb.NewStringValue(a.Handle),
		}}))
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldAlarmID:         structpb.NewNumberValue(float64(n.AlarmID)),
		FieldVariant:         structpb.NewStringValue(n.Variant.String()),
		FieldLabel:           structpb.NewStringValue(n.Label),
		FieldText:            structpb.NewStringValue(n.Text),
		FieldSilencedMinutes: structpb.NewNumberValue(float64(n.SilencedMinutes)),
		FieldActions:         structpb.NewListValue(&structpb.ListValue{Values: actions}),
	}}
}

func encodeKilled(k *alarm.Killed) *structpb.Struct {
	fields := map[string]*structpb.Value{
		FieldSessionID:      structpb.NewNumberValue(float64(k.SessionID)),
		FieldElapsedMinutes: structpb.NewNumberValue(float64(k.ElapsedMinutes)),
		FieldReplaced:       structpb.NewBoolValue(k.Replaced),
		FieldReason:         structpb.NewStringValue(k.Reason.String()),
	}

	if k.Event != nil {
		fields[FieldEvent] = structpb.NewStructValue(EncodeFireEvent(k.Event))
	}

	return &structpb.Struct{Fields: fields}
}

// intField reads an integral number. Missing optional fields read as zero.
func intField(fields map[string]*structpb.Value, name string, required bool) (int, error) {
	value, ok := fields[name]
	if !ok {
		if required {
			return 0, fmt.Errorf("%w: %s is required", alarm.ErrMalformedEvent, name)
		}

		return 0, nil
	}

	number, ok := value.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%w: %s must be a number", alarm.ErrMalformedEvent, name)
	}

	n := number.NumberValue
	if n != math.Trunc(n) || n > math.MaxInt32 || n < math.MinInt32 {
		return 0, fmt.Errorf("%w: %s must be an integer, got %v", alarm.ErrMalformedEvent, name, n)
	}

	return int(n), nil
}

func timeField(fields map[string]*structpb.Value, name string) (time.Time, error) {
	raw := fields[name].GetStringValue()
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: %s is required", alarm.ErrMalformedEvent, name)
	}

	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %w", alarm.ErrMalformedEvent, name, err)
	}

	return parsed, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.Format(time.RFC3339Nano)
}
