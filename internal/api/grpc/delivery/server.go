package delivery

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	core "github.com/oshokin/alarm-klaxon/internal/delivery"
	"github.com/oshokin/alarm-klaxon/internal/domain/alarm"
	"github.com/oshokin/alarm-klaxon/internal/logger"
)

// errWatcherBehind is reported to a watcher disconnected by the outbound bus.
var errWatcherBehind = errors.New("watcher fell behind, resync with GetState")

// Service abstracts the delivery operations the transport layer depends on.
type Service interface {
	Fire(ctx context.Context, event *alarm.FireEvent) error
	CallStateChanged(ctx context.Context, state alarm.CallState)
	UserAction(ctx context.Context, id int, action alarm.Action) error
	CancelSnooze(ctx context.Context, id int) error
	InvokeAction(ctx context.Context, handle string) error
	State(ctx context.Context, id int) (core.Snapshot, error)
	States(ctx context.Context) ([]core.Snapshot, error)
	ReportMalformed(ctx context.Context, err error)
}

// Feed provides the outbound message stream.
type Feed interface {
	Subscribe(buffer int) (<-chan alarm.Outbound, func())
}

// Server implements the AlarmDelivery gRPC API.
type Server struct {
	// service runs the delivery state machines.
	service Service
	// feed streams outbound messages to watchers.
	feed Feed
}

// NewServer wires the provided service implementation into a gRPC handler.
func NewServer(service Service, feed Feed) *Server {
	return &Server{
		service: service,
		feed:    feed,
	}
}

// Fire delivers an alarm. Stale events are accepted but reported as not delivered.
func (s *Server) Fire(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	event, err := DecodeFireEvent(in)
	if err != nil {
		s.service.ReportMalformed(ctx, err)

		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	err = s.service.Fire(ctx, event)

	switch {
	case err == nil:
		return accepted(true, ""), nil
	case errors.Is(err, alarm.ErrStaleEvent):
		return accepted(false, "stale"), nil
	default:
		return nil, toStatus(err)
	}
}

// CallStateChanged forwards a call state transition.
func (s *Server) CallStateChanged(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	raw := in.GetFields()[FieldState].GetStringValue()

	state, ok := alarm.ParseCallState(raw)
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "unknown call state %q", raw)
	}

	s.service.CallStateChanged(ctx, state)

	return accepted(true, ""), nil
}

// UserAction applies a snooze, dismiss or open action.
func (s *Server) UserAction(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()

	id, err := intField(fields, FieldAlarmID, true)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	raw := fields[FieldAction].GetStringValue()

	action, ok := alarm.ParseAction(raw)
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "unknown action %q", raw)
	}

	logger.InfoKV(ctx, "User action received",
		"alarm_id", id,
		"action", action.String(),
		"actor", fields[FieldActor].GetStringValue(),
	)

	if err = s.service.UserAction(ctx, id, action); err != nil {
		return nil, toStatus(err)
	}

	return accepted(true, ""), nil
}

// CancelSnooze cancels the snooze of an alarm, or of all alarms without an id.
func (s *Server) CancelSnooze(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := intField(in.GetFields(), FieldAlarmID, false)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	if err = s.service.CancelSnooze(ctx, id); err != nil {
		return nil, toStatus(err)
	}

	return accepted(true, ""), nil
}

// InvokeAction resolves a notification action handle.
func (s *Server) InvokeAction(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	handle := in.GetFields()[FieldHandle].GetStringValue()
	if handle == "" {
		return nil, status.Error(codes.InvalidArgument, "handle is required")
	}

	if err := s.service.InvokeAction(ctx, handle); err != nil {
		return nil, toStatus(err)
	}

	return accepted(true, ""), nil
}

// GetState returns the state of one alarm, or of every known alarm without an id.
func (s *Server) GetState(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := intField(in.GetFields(), FieldAlarmID, false)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	if id > 0 {
		snapshot, err := s.service.State(ctx, id)
		if err != nil {
			return nil, toStatus(err)
		}

		return EncodeSnapshot(snapshot), nil
	}

	snapshots, err := s.service.States(ctx)
	if err != nil {
		return nil, toStatus(err)
	}

	alarms := make([]*structpb.Value, 0, len(snapshots))
	for _, snapshot := range snapshots {
		alarms = append(alarms, structpb.NewStructValue(EncodeSnapshot(snapshot)))
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldAlarms: structpb.NewListValue(&structpb.ListValue{Values: alarms}),
	}}, nil
}

// Watch streams outbound messages, optionally filtered by alarm id, until the
// client goes away. A watcher that falls behind gets ResourceExhausted and
// should resync with GetState before watching again.
func (s *Server) Watch(in *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	filter, err := intField(in.GetFields(), FieldAlarmID, false)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	ctx := stream.Context()

	messages, cancel := s.feed.Subscribe(0)
	defer cancel()

	logger.DebugKV(ctx, "Watcher subscribed", "alarm_id", filter)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				logger.WarnKV(ctx, "Watcher fell behind, closing stream", "alarm_id", filter)

				return status.Error(codes.ResourceExhausted, errWatcherBehind.Error())
			}

			if filter > 0 && msg.AlarmID != filter {
				continue
			}

			if err = stream.Send(EncodeOutbound(msg)); err != nil {
				return err
			}
		}
	}
}

func accepted(ok bool, reason string) *structpb.Struct {
	fields := map[string]*structpb.Value{
		FieldAccepted: structpb.NewBoolValue(ok),
	}

	if reason != "" {
		fields[FieldReason] = structpb.NewStringValue(reason)
	}

	return &structpb.Struct{Fields: fields}
}

// toStatus maps delivery errors to gRPC status codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, alarm.ErrMalformedEvent),
		errors.Is(err, core.ErrInvalidAlarmID),
		errors.Is(err, core.ErrInvalidAction),
		errors.Is(err, core.ErrUnknownHandle):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, core.ErrNoTransition):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, core.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
