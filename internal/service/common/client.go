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

	api "github.com/oshokin/alarm-clock/internal/api/grpc/alarm"
	"github.com/oshokin/alarm-clock/internal/codec"
	"github.com/oshokin/alarm-clock/internal/config"
	domain "github.com/oshokin/alarm-clock/internal/domain/alarm"
)

// Client wraps a gRPC connection to alarmd with typed helpers.
type Client struct {
	// conn is the underlying gRPC connection to the alarm daemon.
	conn grpc.ClientConnInterface
	// closer releases conn; nil when the connection is owned elsewhere.
	closer func() error

	// callTimeout is the default timeout for individual RPC calls.
	callTimeout time.Duration
	// actor is attached to every request when set.
	actor *api.Actor
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

// WithActor attaches actor to every request.
func WithActor(actor api.Actor) Option {
	return func(c *Client) {
		c.actor = &actor
	}
}

// SnoozeResult describes the outcome of SnoozeCurrent.
type SnoozeResult struct {
	// Snoozed is false when nothing was ringing.
	Snoozed bool
	// NextFireAt is when the alarm rings again.
	NextFireAt time.Time
}

var (
	// errAddressRequired is returned when a required address value is missing.
	errAddressRequired = errors.New("address must be provided")
	// errMalformedResponse is returned when the daemon answers with an unexpected shape.
	errMalformedResponse = errors.New("malformed response")
)

// Dial establishes a gRPC connection to the alarm daemon.
// Note: this uses insecure transport credentials; the daemon listens on
// loopback by default.
func Dial(_ context.Context, address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial alarm daemon: %w", err)
	}

	client := NewClient(conn, opts...)
	client.closer = conn.Close

	return client, nil
}

// NewClient wraps an existing connection. Close does not close conn.
func NewClient(conn grpc.ClientConnInterface, opts ...Option) *Client {
	client := &Client{
		conn:        conn,
		callTimeout: config.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.closer == nil {
		return nil
	}

	return c.closer()
}

// SetAlarm creates an alarm.
func (c *Client) SetAlarm(ctx context.Context, hour, minute int, label string) (*domain.Entry, error) {
	response, err := c.invoke(ctx, api.MethodSetAlarm, map[string]any{
		codec.FieldHour:   hour,
		codec.FieldMinute: minute,
		codec.FieldLabel:  label,
	})
	if err != nil {
		return nil, fmt.Errorf("set alarm: %w", err)
	}

	return entryOf(response)
}

// EditAlarm changes time and label of an alarm.
func (c *Client) EditAlarm(ctx context.Context, id int64, hour, minute int, label string) (*domain.Entry, error) {
	response, err := c.invoke(ctx, api.MethodEditAlarm, map[string]any{
		codec.FieldID:     id,
		codec.FieldHour:   hour,
		codec.FieldMinute: minute,
		codec.FieldLabel:  label,
	})
	if err != nil {
		return nil, fmt.Errorf("edit alarm %d: %w", id, err)
	}

	return entryOf(response)
}

// DeleteAlarm removes an alarm.
func (c *Client) DeleteAlarm(ctx context.Context, id int64) error {
	if _, err := c.invoke(ctx, api.MethodDeleteAlarm, map[string]any{codec.FieldID: id}); err != nil {
		return fmt.Errorf("delete alarm %d: %w", id, err)
	}

	return nil
}

// ToggleAlarm enables or disables an alarm.
func (c *Client) ToggleAlarm(ctx context.Context, id int64, enabled bool) (*domain.Entry, error) {
	response, err := c.invoke(ctx, api.MethodToggleAlarm, map[string]any{
		codec.FieldID:      id,
		codec.FieldEnabled: enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("toggle alarm %d: %w", id, err)
	}

	return entryOf(response)
}

// GetAlarm fetches one alarm.
func (c *Client) GetAlarm(ctx context.Context, id int64) (*domain.Entry, error) {
	response, err := c.invoke(ctx, api.MethodGetAlarm, map[string]any{codec.FieldID: id})
	if err != nil {
		return nil, fmt.Errorf("get alarm %d: %w", id, err)
	}

	return entryOf(response)
}

// ListAlarms fetches every alarm.
func (c *Client) ListAlarms(ctx context.Context) ([]*domain.Entry, error) {
	response, err := c.invoke(ctx, api.MethodListAlarms, nil)
	if err != nil {
		return nil, fmt.Errorf("list alarms: %w", err)
	}

	list := response.GetFields()[api.FieldAlarms].GetListValue()
	if list == nil {
		return []*domain.Entry{}, nil
	}

	entries, err := codec.EntriesFromList(list)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformedResponse, err)
	}

	return entries, nil
}

// DismissCurrent stops the ringing alarm. It reports false when none rang.
func (c *Client) DismissCurrent(ctx context.Context) (bool, error) {
	response, err := c.invoke(ctx, api.MethodDismissCurrent, nil)
	if err != nil {
		return false, fmt.Errorf("dismiss: %w", err)
	}

	return response.GetFields()[api.FieldDismissed].GetBoolValue(), nil
}

// SnoozeCurrent snoozes the ringing alarm. A zero delay uses the daemon default.
func (c *Client) SnoozeCurrent(ctx context.Context, delay time.Duration) (*SnoozeResult, error) {
	fields := map[string]any{}
	if delay > 0 {
		fields[api.FieldDelay] = delay.String()
	}

	response, err := c.invoke(ctx, api.MethodSnoozeCurrent, fields)
	if err != nil {
		return nil, fmt.Errorf("snooze: %w", err)
	}

	nextFireAt, err := codec.Time(response, codec.FieldNextFireAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformedResponse, err)
	}

	return &SnoozeResult{
		Snoozed:    response.GetFields()[api.FieldSnoozed].GetBoolValue(),
		NextFireAt: nextFireAt,
	}, nil
}

// CurrentSession returns the latest ringing session, or nil when no alarm
// has fired since the daemon started.
func (c *Client) CurrentSession(ctx context.Context) (*domain.Session, error) {
	response, err := c.invoke(ctx, api.MethodCurrentSession, nil)
	if err != nil {
		return nil, fmt.Errorf("current session: %w", err)
	}

	raw := response.GetFields()[api.FieldSession].GetStructValue()
	if raw == nil {
		return nil, nil //nolint:nilnil // No session is a valid answer.
	}

	session, err := codec.SessionFromStruct(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformedResponse, err)
	}

	return session, nil
}

// invoke performs one unary call with the client's timeout and actor.
func (c *Client) invoke(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	request, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	if c.actor != nil {
		callCtx = api.AppendActor(callCtx, *c.actor)
	}

	response := new(structpb.Struct)
	if err = c.conn.Invoke(callCtx, api.FullMethod(method), request, response); err != nil {
		return nil, err
	}

	return response, nil
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}

func entryOf(response *structpb.Struct) (*domain.Entry, error) {
	entry, err := codec.EntryFromStruct(response)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformedResponse, err)
	}

	return entry, nil
}
