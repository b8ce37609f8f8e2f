package timer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oshokin/alarm-clock/internal/logger"
)

var (
	// ErrExactDenied is returned when the host refuses an exact timer.
	// Callers may retry with ScheduleInexact.
	ErrExactDenied = errors.New("exact timer denied")
	// ErrUnavailable is returned when the facility cannot take registrations.
	ErrUnavailable = errors.New("timer facility unavailable")
)

// Host registers one-shot callbacks keyed by alarm id.
// Scheduling an id that is already pending replaces the old entry.
type Host interface {
	// ScheduleExact arms a wake-from-suspend callback at the given instant.
	ScheduleExact(id int64, at time.Time, fire func()) error
	// ScheduleInexact arms a best-effort callback at the given instant.
	ScheduleInexact(id int64, at time.Time, fire func()) error
	// Cancel drops the pending callback for id, if any.
	Cancel(id int64)
	// Pending returns the instant of the pending callback for id.
	Pending(id int64) (time.Time, bool)
}

// Waker programs the hardware to resume the host at an instant.
type Waker interface {
	// WakeAt arms the hardware wake-up.
	WakeAt(at time.Time) error
	// Clear disarms the hardware wake-up.
	Clear() error
}

// entry is one pending registration.
type entry struct {
	// at is the requested instant.
	at time.Time
	// exact is true for wake-from-suspend registrations.
	exact bool
	// fire is the registered callback.
	fire func()
	// timer fires the callback when no suspend or clock step intervened.
	timer *time.Timer
	// generation tells a replaced entry from its successor.
	generation uint64
}

// Facility implements Host on top of runtime timers and an optional Waker.
//
// Runtime timers count monotonic time, which stops while the host is
// suspended and ignores wall clock steps. A sweep goroutine therefore
// compares every pending entry against the wall clock once per check
// interval and fires the ones that are due. Whichever path reaches an
// entry first fires it; the other finds it gone.
type Facility struct {
	// mu protects every field below.
	mu sync.Mutex
	// entries holds the pending registration per id.
	entries map[int64]*entry
	// generation is bumped on every registration.
	generation uint64
	// waker arms hardware wake-ups for exact timers, optional.
	waker Waker
	// exact is false when exact timers are disabled by configuration.
	exact bool
	// now returns the current time.
	now func() time.Time
	// closed rejects new registrations after Close.
	closed bool
	// interval is the wall clock re-check period.
	interval time.Duration
	// done stops the sweep goroutine.
	done chan struct{}
	// ctx carries the logger for waker failures.
	ctx context.Context //nolint:containedctx // Only used for logging from timer goroutines.
}

// Option configures a Facility.
type Option func(*Facility)

// WithWaker arms the given hardware waker for exact timers.
func WithWaker(w Waker) Option {
	return func(f *Facility) {
		f.waker = w
	}
}

// WithExact enables or disables exact timers.
func WithExact(enabled bool) Option {
	return func(f *Facility) {
		f.exact = enabled
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(f *Facility) {
		if now != nil {
			f.now = now
		}
	}
}

// WithCheckInterval sets how often pending entries are compared against
// the wall clock. Non-positive values keep the default.
func WithCheckInterval(d time.Duration) Option {
	return func(f *Facility) {
		if d > 0 {
			f.interval = d
		}
	}
}

// WithContext sets the context used for logging.
func WithContext(ctx context.Context) Option {
	return func(f *Facility) {
		f.ctx = logger.WithName(ctx, "timer")
	}
}

// DefaultCheckInterval is the wall clock re-check period used when none is set.
const DefaultCheckInterval = time.Second

// NewFacility creates a facility with exact timers enabled and no hardware waker.
// Close must be called to stop its sweep goroutine.
func NewFacility(options ...Option) *Facility {
	f := &Facility{
		entries:  make(map[int64]*entry),
		exact:    true,
		now:      time.Now,
		ctx:      context.Background(),
		interval: DefaultCheckInterval,
		done:     make(chan struct{}),
	}

	for _, option := range options {
		option(f)
	}

	go f.sweepLoop()

	return f
}

// ScheduleExact arms a callback and programs the hardware waker, if any.
// A waker failure is reported as ErrExactDenied and leaves the previous
// registration for id untouched.
func (f *Facility) ScheduleExact(id int64, at time.Time, fire func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrUnavailable
	}

	if !f.exact {
		return fmt.Errorf("exact timers disabled: %w", ErrExactDenied)
	}

	if f.waker != nil {
		earliest := at
		for otherID, e := range f.entries {
			if otherID != id && e.exact && e.at.Before(earliest) {
				earliest = e.at
			}
		}

		if err := f.waker.WakeAt(earliest); err != nil {
			return fmt.Errorf("%w: %w", ErrExactDenied, err)
		}
	}

	f.arm(id, at, true, fire)

	return nil
}

// ScheduleInexact arms a callback without touching the hardware waker.
func (f *Facility) ScheduleInexact(id int64, at time.Time, fire func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrUnavailable
	}

	f.arm(id, at, false, fire)
	f.rearmWaker()

	return nil
}

// Cancel drops the pending callback for id. Unknown ids are ignored.
func (f *Facility) Cancel(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.drop(id) {
		f.rearmWaker()
	}
}

// Pending returns the instant of the pending callback for id.
func (f *Facility) Pending(id int64) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.entries[id]
	if !ok {
		return time.Time{}, false
	}

	return e.at, true
}

// Len returns the number of pending callbacks.
func (f *Facility) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.entries)
}

// Close stops every pending callback and rejects further registrations.
// Calling it again is a no-op.
func (f *Facility) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}

	for id := range f.entries {
		f.drop(id)
	}

	f.closed = true
	close(f.done)

	if f.waker != nil {
		if err := f.waker.Clear(); err != nil {
			logger.Warnf(f.ctx, "clear hardware wake-up: %v", err)
		}
	}
}

// arm replaces the entry for id. The caller holds mu.
func (f *Facility) arm(id int64, at time.Time, exact bool, fire func()) {
	f.drop(id)

	f.generation++
	generation := f.generation

	delay := max(wall(at).Sub(wall(f.now())), 0)

	f.entries[id] = &entry{
		at:         at,
		exact:      exact,
		fire:       fire,
		generation: generation,
		timer:      f.startTimer(id, generation, delay),
	}
}

func (f *Facility) startTimer(id int64, generation uint64, delay time.Duration) *time.Timer {
	return time.AfterFunc(delay, func() {
		f.onTimer(id, generation)
	})
}

// onTimer runs when the runtime timer of an entry expires. An entry still
// ahead on the wall clock, as after the clock was set back, is re-armed
// for the remainder instead of firing early.
func (f *Facility) onTimer(id int64, generation uint64) {
	f.mu.Lock()

	e, ok := f.entries[id]
	if !ok || e.generation != generation {
		f.mu.Unlock()

		return
	}

	if remaining := wall(e.at).Sub(wall(f.now())); remaining > 0 {
		e.timer = f.startTimer(id, generation, remaining)
		f.mu.Unlock()

		return
	}

	delete(f.entries, id)
	f.rearmWaker()
	f.mu.Unlock()

	e.fire()
}

// sweepLoop runs sweep every interval until Close.
func (f *Facility) sweepLoop() {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
			f.sweep()
		}
	}
}

// sweep fires every entry whose instant has passed on the wall clock.
func (f *Facility) sweep() {
	type due struct {
		id         int64
		generation uint64
		fire       func()
	}

	f.mu.Lock()

	now := wall(f.now())

	var fired []due

	for id, e := range f.entries {
		if !now.Before(wall(e.at)) {
			fired = append(fired, due{id: id, generation: e.generation, fire: e.fire})
		}
	}

	f.mu.Unlock()

	for _, d := range fired {
		if !f.take(d.id, d.generation) {
			continue
		}

		logger.DebugKV(f.ctx, "Timer caught up on the wall clock", "alarm_id", d.id)
		d.fire()
	}
}

// wall strips the monotonic reading so comparisons use the wall clock.
func wall(t time.Time) time.Time {
	return t.Round(0)
}

// take removes the entry for id if it is still the given generation.
func (f *Facility) take(id int64, generation uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.entries[id]
	if !ok || e.generation != generation {
		return false
	}

	e.timer.Stop()
	delete(f.entries, id)
	f.rearmWaker()

	return true
}

// drop stops and removes the entry for id. The caller holds mu.
func (f *Facility) drop(id int64) bool {
	e, ok := f.entries[id]
	if !ok {
		return false
	}

	e.timer.Stop()
	delete(f.entries, id)

	return true
}

// rearmWaker points the hardware waker at the earliest exact entry.
// The caller holds mu.
func (f *Facility) rearmWaker() {
	if f.waker == nil {
		return
	}

	var earliest time.Time

	for _, e := range f.entries {
		if e.exact && (earliest.IsZero() || e.at.Before(earliest)) {
			earliest = e.at
		}
	}

	var err error
	if earliest.IsZero() {
		err = f.waker.Clear()
	} else {
		err = f.waker.WakeAt(earliest)
	}

	if err != nil {
		logger.Warnf(f.ctx, "rearm hardware wake-up: %v", err)
	}
}
