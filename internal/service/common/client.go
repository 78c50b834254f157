//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	api "github.com/oshokin/alarm-klaxon/internal/api/grpc/delivery"
	"github.com/oshokin/alarm-klaxon/internal/config"
	"github.com/oshokin/alarm-klaxon/internal/domain/alarm"
)

// Client wraps the gRPC AlarmDelivery client with convenience helpers.
type Client struct {
	// conn is the underlying gRPC connection to the klaxon daemon.
	conn *grpc.ClientConn
	// api is the AlarmDelivery client stub.
	api *api.AlarmDeliveryClient

	// callTimeout is the default timeout for individual RPC calls.
	callTimeout time.Duration
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for service calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

var (
	// errAddressRequired is returned when a required address value is missing.
	errAddressRequired = errors.New("address must be provided")
	// errEventRequired is returned when Fire is called without an event.
	errEventRequired = errors.New("event must be provided")
)

// Dial establishes a gRPC connection to the klaxon daemon.
// Note: this uses insecure transport credentials; the daemon is meant to
// listen on loopback or a trusted network.
func Dial(_ context.Context, address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	// Use the non-context NewClient API recommended by grpc-go
	// (DialContext is deprecated as of grpc-go v1.60+).
	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial klaxon daemon: %w", err)
	}

	client := &Client{
		conn:        conn,
		api:         api.NewAlarmDeliveryClient(conn),
		callTimeout: config.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// Fire delivers an alarm. It reports whether the daemon accepted it and,
// if not, why.
func (c *Client) Fire(ctx context.Context, event *alarm.FireEvent) (bool, string, error) {
	if event == nil {
		return false, "", errEventRequired
	}

	resp, err := c.call(ctx, api.MethodFire, api.EncodeFireEvent(event))
	if err != nil {
		return false, "", fmt.Errorf("fire alarm %d: %w", event.ID, err)
	}

	fields := resp.GetFields()

	return fields[api.FieldAccepted].GetBoolValue(), fields[api.FieldReason].GetStringValue(), nil
}

// CallStateChanged reports a call state transition.
func (c *Client) CallStateChanged(ctx context.Context, state alarm.CallState) error {
	_, err := c.call(ctx, api.MethodCallStateChanged, &structpb.Struct{Fields: map[string]*structpb.Value{
		api.FieldState: structpb.NewStringValue(state.String()),
	}})
	if err != nil {
		return fmt.Errorf("change call state: %w", err)
	}

	return nil
}

// UserAction applies an action to an alarm on behalf of actor.
func (c *Client) UserAction(ctx context.Context, actor string, id int, action alarm.Action) error {
	_, err := c.call(ctx, api.MethodUserAction, &structpb.Struct{Fields: map[string]*structpb.Value{
		api.FieldAlarmID: structpb.NewNumberValue(float64(id)),
		api.FieldAction:  structpb.NewStringValue(action.String()),
		api.FieldActor:   structpb.NewStringValue(actor),
	}})
	if err != nil {
		return fmt.Errorf("%s alarm %d: %w", action, id, err)
	}

	return nil
}

// CancelSnooze cancels the snooze of id; a non-positive id cancels all snoozes.
func (c *Client) CancelSnooze(ctx context.Context, id int) error {
	fields := make(map[string]*structpb.Value)
	if id > 0 {
		fields[api.FieldAlarmID] = structpb.NewNumberValue(float64(id))
	}

	if _, err := c.call(ctx, api.MethodCancelSnooze, &structpb.Struct{Fields: fields}); err != nil {
		return fmt.Errorf("cancel snooze: %w", err)
	}

	return nil
}

// InvokeAction invokes a notification action handle.
func (c *Client) InvokeAction(ctx context.Context, handle string) error {
	_, err := c.call(ctx, api.MethodInvokeAction, &structpb.Struct{Fields: map[string]*structpb.Value{
		api.FieldHandle: structpb.NewStringValue(handle),
	}})
	if err != nil {
		return fmt.Errorf("invoke action: %w", err)
	}

	return nil
}

// GetState returns the state of id, or of every known alarm for a non-positive id.
func (c *Client) GetState(ctx context.Context, id int) (*structpb.Struct, error) {
	resp, err := c.call(ctx, api.MethodGetState, alarmFilter(id))
	if err != nil {
		return nil, fmt.Errorf("get state: %w", err)
	}

	return resp, nil
}

// Watch streams outbound messages of id, or of all alarms for a non-positive id.
// The stream ends when ctx is cancelled; no call timeout applies.
func (c *Client) Watch(ctx context.Context, id int) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.api.Watch(ctx, alarmFilter(id))
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}

	return stream, nil
}

func (c *Client) call(ctx context.Context, method string, in *structpb.Struct) (*structpb.Struct, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	return c.api.Call(callCtx, method, in)
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}

func alarmFilter(id int) *structpb.Struct {
	fields := make(map[string]*structpb.Value)
	if id > 0 {
		fields[api.FieldAlarmID] = structpb.NewNumberValue(float64(id))
	}

	return &structpb.Struct{Fields: fields}
}
