package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/alarm-klaxon/internal/config"
	"github.com/oshokin/alarm-klaxon/internal/domain/alarm"
	"github.com/oshokin/alarm-klaxon/internal/logger"
	"github.com/oshokin/alarm-klaxon/internal/service/common"
)

// Options configures a control session.
type Options struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string
	// ServerAddress overrides the daemon address from config when specified.
	ServerAddress string
	// RetryInterval makes Fire retry while the daemon is unavailable. Zero disables retries.
	RetryInterval time.Duration
	// Output receives the printed responses, stdout when nil.
	Output io.Writer
}

var (
	// ErrUnknownAction is returned for an action name other than snooze, dismiss or open.
	ErrUnknownAction = errors.New("unknown action")
	// ErrUnknownCallState is returned for an unrecognised call state.
	ErrUnknownCallState = errors.New("unknown call state")
)

// Session is a connection to the daemon used by the ctl commands.
type Session struct {
	// client talks to the daemon.
	client *common.Client
	// out receives printed responses.
	out io.Writer
	// actor is user@host, sent with user actions.
	actor string
	// retryInterval is the Fire retry delay.
	retryInterval time.Duration
}

// Open loads the settings and dials the daemon.
func Open(ctx context.Context, opts *Options) (*Session, error) {
	settings, err := config.Load(opts.ConfigPath)

	switch {
	case err == nil:
	case opts.ConfigPath == "" && errors.Is(err, fs.ErrNotExist):
		settings = config.Default()
	default:
		return nil, err
	}

	address := settings.ListenAddress
	if opts.ServerAddress != "" {
		address = opts.ServerAddress
	}

	actor, err := common.DetectActor()
	if err != nil {
		return nil, err
	}

	client, err := common.Dial(ctx, address, common.WithCallTimeout(settings.Timeout))
	if err != nil {
		return nil, err
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	return &Session{
		client:        client,
		out:           out,
		actor:         actor,
		retryInterval: opts.RetryInterval,
	}, nil
}

// Close releases the connection.
func (s *Session) Close() error {
	return s.client.Close()
}

// Fire delivers event and prints whether it was accepted.
func (s *Session) Fire(ctx context.Context, event *alarm.FireEvent) error {
	accepted, reason, err := s.client.Fire(ctx, event)
	if s.retryInterval > 0 && unavailable(err) {
		accepted, reason, err = s.retryFire(ctx, event)
	}

	if err != nil {
		return err
	}

	result := map[string]any{"accepted": accepted}
	if reason != "" {
		result["reason"] = reason
	}

	return s.printMap(result)
}

// retryFire repeats Fire every retry interval until the daemon answers or ctx ends.
func (s *Session) retryFire(ctx context.Context, event *alarm.FireEvent) (bool, string, error) {
	ticker := time.NewTicker(s.retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, "", ctx.Err()
		case <-ticker.C:
			accepted, reason, err := s.client.Fire(ctx, event)
			if !unavailable(err) {
				return accepted, reason, err
			}

			logger.WarnKV(ctx, "Daemon unavailable, retrying", "alarm_id", event.ID, "error", err)
		}
	}
}

// Call reports a call state given by name.
func (s *Session) Call(ctx context.Context, state string) error {
	parsed, ok := alarm.ParseCallState(state)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCallState, state)
	}

	if err := s.client.CallStateChanged(ctx, parsed); err != nil {
		return err
	}

	return s.printMap(map[string]any{"call": parsed.String()})
}

// Action applies a named user action to alarm id.
func (s *Session) Action(ctx context.Context, id int, action string) error {
	parsed, ok := alarm.ParseAction(action)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	if err := s.client.UserAction(ctx, s.actor, id, parsed); err != nil {
		return err
	}

	return s.State(ctx, id)
}

// CancelSnooze cancels the snooze of id, or of every alarm for a non-positive id.
func (s *Session) CancelSnooze(ctx context.Context, id int) error {
	if err := s.client.CancelSnooze(ctx, id); err != nil {
		return err
	}

	return s.State(ctx, id)
}

// Invoke invokes a notification action handle.
func (s *Session) Invoke(ctx context.Context, handle string) error {
	if err := s.client.InvokeAction(ctx, handle); err != nil {
		return err
	}

	return s.printMap(map[string]any{"invoked": handle})
}

// State prints the state of id, or of every known alarm for a non-positive id.
func (s *Session) State(ctx context.Context, id int) error {
	resp, err := s.client.GetState(ctx, id)
	if err != nil {
		return err
	}

	return s.print(resp)
}

// Watch prints outbound messages until ctx is cancelled or the daemon closes the stream.
func (s *Session) Watch(ctx context.Context, id int) error {
	stream, err := s.client.Watch(ctx, id)
	if err != nil {
		return err
	}

	for {
		msg, err := stream.Recv()

		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return nil
		case ctx.Err() != nil && status.Code(err) == codes.Canceled:
			return nil
		default:
			return fmt.Errorf("receive: %w", err)
		}

		if err = s.print(msg); err != nil {
			return err
		}
	}
}

func (s *Session) printMap(fields map[string]any) error {
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	return s.print(msg)
}

func (s *Session) print(msg proto.Message) error {
	data, err := protojson.MarshalOptions{UseProtoNames: true}.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	if _, err = fmt.Fprintln(s.out, string(data)); err != nil {
		return fmt.Errorf("write result: %w", err)
	}

	return nil
}

// unavailable reports whether err carries the Unavailable gRPC code.
func unavailable(err error) bool {
	if err == nil {
		return false
	}

	st, ok := status.FromError(err)

	return ok && st.Code() == codes.Unavailable
}

// ParseTime parses an RFC 3339 time; an empty value means now.
func ParseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Now(), nil
	}

	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", value, err)
	}

	return parsed, nil
}
