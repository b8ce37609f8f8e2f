package testfixtures

import (
	"slices"
	"sync"
	"time"

	"github.com/oshokin/alarm-clock/internal/timer"
)

// Registration is one pending callback of TimerHost.
type Registration struct {
	// ID is the alarm id.
	ID int64
	// At is the requested instant.
	At time.Time
	// Exact tells whether ScheduleExact created the registration.
	Exact bool
	// fire is the callback.
	fire func()
}

// TimerHost is an in-memory timer.Host. Nothing fires until Fire is called.
type TimerHost struct {
	mu          sync.Mutex
	pending     map[int64]Registration
	denyExact   bool
	unavailable bool
	cancels     []int64
}

var _ timer.Host = (*TimerHost)(nil)

// NewTimerHost returns an empty host that grants exact timers.
func NewTimerHost() *TimerHost {
	return &TimerHost{
		pending: make(map[int64]Registration),
	}
}

// DenyExact makes ScheduleExact return timer.ErrExactDenied.
func (h *TimerHost) DenyExact(deny bool) {
	h.mu.Lock()
	h.denyExact = deny
	h.mu.Unlock()
}

// SetUnavailable makes every Schedule call return timer.ErrUnavailable.
func (h *TimerHost) SetUnavailable(unavailable bool) {
	h.mu.Lock()
	h.unavailable = unavailable
	h.mu.Unlock()
}

// ScheduleExact implements timer.Host.
func (h *TimerHost) ScheduleExact(id int64, at time.Time, fire func()) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.unavailable {
		return timer.ErrUnavailable
	}

	if h.denyExact {
		return timer.ErrExactDenied
	}

	h.pending[id] = Registration{ID: id, At: at, Exact: true, fire: fire}

	return nil
}

// ScheduleInexact implements timer.Host.
func (h *TimerHost) ScheduleInexact(id int64, at time.Time, fire func()) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.unavailable {
		return timer.ErrUnavailable
	}

	h.pending[id] = Registration{ID: id, At: at, fire: fire}

	return nil
}

// Cancel implements timer.Host.
func (h *TimerHost) Cancel(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.cancels = append(h.cancels, id)
	delete(h.pending, id)
}

// Pending implements timer.Host.
func (h *TimerHost) Pending(id int64) (time.Time, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.pending[id]

	return r.At, ok
}

// Registration returns the pending registration for id.
func (h *TimerHost) Registration(id int64) (Registration, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.pending[id]

	return r, ok
}

// Len returns the number of pending registrations.
func (h *TimerHost) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.pending)
}

// IDs returns the pending ids in ascending order.
func (h *TimerHost) IDs() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	ids := make([]int64, 0, len(h.pending))
	for id := range h.pending {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}

// Cancels returns the ids passed to Cancel, in call order.
func (h *TimerHost) Cancels() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	return slices.Clone(h.cancels)
}

// Fire removes the registration for id and runs its callback on the
// calling goroutine. It reports false when nothing was pending.
func (h *TimerHost) Fire(id int64) bool {
	h.mu.Lock()
	r, ok := h.pending[id]
	delete(h.pending, id)
	h.mu.Unlock()

	if !ok {
		return false
	}

	r.fire()

	return true
}
