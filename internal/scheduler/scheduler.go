package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oshokin/alarm-clock/internal/domain/alarm"
	"github.com/oshokin/alarm-clock/internal/logger"
	"github.com/oshokin/alarm-clock/internal/timer"
)

// errInvalidDelay is returned for a non-positive reschedule delay.
var errInvalidDelay = errors.New("reschedule delay must be positive")

// DeliverFunc is invoked by the timer facility when an alarm fires.
type DeliverFunc func(ctx context.Context, id int64)

// Scheduler registers alarm wake-ups with a timer.Host.
type Scheduler struct {
	// host is the timer facility.
	host timer.Host
	// now returns the current time.
	now func() time.Time
	// ctx is the base context handed to DeliverFunc.
	ctx context.Context //nolint:containedctx // Fire callbacks run outside any request.
	// mu protects deliver.
	mu sync.RWMutex
	// deliver receives fired alarm ids.
	deliver DeliverFunc
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithContext sets the base context of fire callbacks.
func WithContext(ctx context.Context) Option {
	return func(s *Scheduler) {
		if ctx != nil {
			s.ctx = ctx
		}
	}
}

// New creates a scheduler over the given timer facility.
func New(host timer.Host, options ...Option) *Scheduler {
	s := &Scheduler{
		host: host,
		now:  time.Now,
		ctx:  context.Background(),
	}

	for _, option := range options {
		option(s)
	}

	s.ctx = logger.WithName(s.ctx, "scheduler")

	return s
}

// SetDeliver installs the fire handler. Alarms firing before a handler is
// installed are logged and dropped.
func (s *Scheduler) SetDeliver(deliver DeliverFunc) {
	s.mu.Lock()
	s.deliver = deliver
	s.mu.Unlock()
}

// NextFireAt returns today's hour:minute in now's location with zero
// seconds, or the same wall-clock time tomorrow when that is not after now.
func NextFireAt(now time.Time, hour, minute int) time.Time {
	year, month, day := now.Date()

	fireAt := time.Date(year, month, day, hour, minute, 0, 0, now.Location())
	if !fireAt.After(now) {
		fireAt = time.Date(year, month, day+1, hour, minute, 0, 0, now.Location())
	}

	return fireAt
}

// Register arms the next trigger of record and returns its instant.
// Any earlier registration for the same id is cancelled first.
func (s *Scheduler) Register(ctx context.Context, record *alarm.Record) (time.Time, error) {
	if err := record.Validate(); err != nil {
		return time.Time{}, fmt.Errorf("register alarm: %w", err)
	}

	fireAt := NextFireAt(s.now(), record.Hour, record.Minute)

	if err := s.arm(ctx, record.ID, fireAt); err != nil {
		return time.Time{}, err
	}

	logger.InfoKV(ctx, "Alarm registered",
		"alarm_id", record.ID,
		"time", record.TimeString(),
		"fire_at", fireAt.Format(time.RFC3339),
	)

	return fireAt, nil
}

// Reschedule arms a one-shot trigger for record at now+delay. The record's
// hour and minute are left as they are.
func (s *Scheduler) Reschedule(ctx context.Context, record *alarm.Record, delay time.Duration) (time.Time, error) {
	if record == nil {
		return time.Time{}, fmt.Errorf("reschedule alarm: %w", alarm.ErrNilRecord)
	}

	if delay <= 0 {
		return time.Time{}, fmt.Errorf("reschedule alarm %d by %s: %w", record.ID, delay, errInvalidDelay)
	}

	fireAt := s.now().Add(delay)

	if err := s.arm(ctx, record.ID, fireAt); err != nil {
		return time.Time{}, err
	}

	logger.InfoKV(ctx, "Alarm rescheduled",
		"alarm_id", record.ID,
		"delay", delay.String(),
		"fire_at", fireAt.Format(time.RFC3339),
	)

	return fireAt, nil
}

// Cancel removes the pending trigger for id. Unknown ids are fine.
func (s *Scheduler) Cancel(ctx context.Context, id int64) {
	s.host.Cancel(id)

	logger.DebugKV(ctx, "Alarm registration cancelled", "alarm_id", id)
}

// Pending returns the pending trigger instant for id.
func (s *Scheduler) Pending(id int64) (time.Time, bool) {
	return s.host.Pending(id)
}

// arm replaces the registration for id with one firing at fireAt.
func (s *Scheduler) arm(ctx context.Context, id int64, fireAt time.Time) error {
	if s.host == nil {
		return fmt.Errorf("register alarm %d: %w", id, alarm.ErrSchedulingUnavailable)
	}

	s.host.Cancel(id)

	fire := func() {
		s.fire(id)
	}

	err := s.host.ScheduleExact(id, fireAt, fire)
	if errors.Is(err, timer.ErrExactDenied) {
		logger.WarnKV(ctx, "Exact timer denied, falling back to inexact timer",
			"alarm_id", id,
			"error", err,
		)

		err = s.host.ScheduleInexact(id, fireAt, fire)
	}

	if err != nil {
		return fmt.Errorf("register alarm %d: %w: %w", id, alarm.ErrSchedulingUnavailable, err)
	}

	return nil
}

// fire hands a fired id to the delivery handler.
func (s *Scheduler) fire(id int64) {
	s.mu.RLock()
	deliver := s.deliver
	s.mu.RUnlock()

	ctx := logger.WithKV(s.ctx, "alarm_id", id)

	if deliver == nil {
		logger.Warn(ctx, "Alarm fired with no delivery handler installed")

		return
	}

	logger.Info(ctx, "Alarm fired")

	deliver(ctx, id)
}
