package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/alarm-clock/internal/alerting"
	"github.com/oshokin/alarm-clock/internal/domain/alarm"
	"github.com/oshokin/alarm-clock/internal/presentation"
	"github.com/oshokin/alarm-clock/internal/scheduler"
	"github.com/oshokin/alarm-clock/internal/service/power"
	"github.com/oshokin/alarm-clock/internal/testfixtures"
)

// events is an ordered, shared log of side effects.
type events struct {
	mu   sync.Mutex
	list []string
}

func (e *events) add(event string) {
	e.mu.Lock()
	e.list = append(e.list, event)
	e.mu.Unlock()
}

func (e *events) all() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]string(nil), e.list...)
}

// memoryStore keeps records in a map.
type memoryStore struct {
	records map[int64]*alarm.Record
	err     error
}

func (s *memoryStore) Load(_ context.Context, id int64) (*alarm.Record, error) {
	if s.err != nil {
		return nil, s.err
	}

	record, ok := s.records[id]
	if !ok {
		return nil, alarm.ErrAlarmNotFound
	}

	return record.Clone(), nil
}

// fakeBackend counts starts and stops.
type fakeBackend struct {
	events   *events
	mu       sync.Mutex
	starts   []*alerting.Alert
	stops    int
	startErr error
	panics   bool
}

func (b *fakeBackend) Start(_ context.Context, alert *alerting.Alert) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.panics {
		panic("audio driver crashed")
	}

	b.starts = append(b.starts, alert)
	b.events.add("start")

	return b.startErr
}

func (b *fakeBackend) Stop(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stops++
	b.events.add("stop")

	return nil
}

func (b *fakeBackend) counts() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.starts), b.stops
}

// fakePresenter fails while err is set.
type fakePresenter struct {
	mu    sync.Mutex
	err   error
	calls []presentation.Presentation
}

func (p *fakePresenter) Present(_ context.Context, pr *presentation.Presentation) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, *pr)

	return p.err
}

func (p *fakePresenter) presented() []presentation.Presentation {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]presentation.Presentation(nil), p.calls...)
}

// countingLocker hands out leases without expiry and counts releases.
type countingLocker struct {
	mu       sync.Mutex
	acquired int
	released int
}

func (l *countingLocker) Acquire(_ context.Context, name string, _ time.Duration) (*power.Lease, error) {
	l.mu.Lock()
	l.acquired++
	l.mu.Unlock()

	return power.NewLease(name, 0, func() error {
		l.mu.Lock()
		l.released++
		l.mu.Unlock()

		return nil
	}), nil
}

func (l *countingLocker) counts() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.acquired, l.released
}

// blockingBackend holds Start until release is closed.
type blockingBackend struct {
	events  *events
	entered chan struct{}
	release chan struct{}
}

func newBlockingBackend(log *events) *blockingBackend {
	return &blockingBackend{
		events:  log,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (b *blockingBackend) Start(context.Context, *alerting.Alert) error {
	b.events.add("start")
	close(b.entered)
	<-b.release

	return nil
}

func (b *blockingBackend) Stop(context.Context) error {
	b.events.add("stop")

	return nil
}

// recordingScheduler logs reschedules before delegating.
type recordingScheduler struct {
	events *events
	next   *scheduler.Scheduler
}

func (s *recordingScheduler) Reschedule(ctx context.Context, record *alarm.Record, delay time.Duration) (time.Time, error) {
	s.events.add("reschedule")

	return s.next.Reschedule(ctx, record, delay)
}

// manualRetry is a deferred task run by hand.
type manualRetry struct {
	mu      sync.Mutex
	task    func()
	stopped bool
}

func (r *manualRetry) Stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	stopped := r.stopped
	r.stopped = true

	return !stopped
}

// run executes the task unless it was stopped.
func (r *manualRetry) run() {
	r.mu.Lock()
	stopped := r.stopped
	r.mu.Unlock()

	if !stopped {
		r.task()
	}
}

func (r *manualRetry) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.stopped
}

// harness wires a pipeline to fakes.
type harness struct {
	clock     *testfixtures.Clock
	host      *testfixtures.TimerHost
	store     *memoryStore
	backend   *fakeBackend
	presenter *fakePresenter
	fallback  *fakePresenter
	locker    *countingLocker
	events    *events
	retriesMu sync.Mutex
	retries   []*manualRetry
	pipeline  *Pipeline
}

// lastRetry returns the most recently deferred retry, or nil.
func (h *harness) lastRetry() *manualRetry {
	h.retriesMu.Lock()
	defer h.retriesMu.Unlock()

	if len(h.retries) == 0 {
		return nil
	}

	return h.retries[len(h.retries)-1]
}

// realRetries runs deferred retries on runtime timers.
func realRetries() Option {
	return WithAfterFunc(func(d time.Duration, f func()) Stopper {
		return time.AfterFunc(d, f)
	})
}

func newHarness(t *testing.T, options ...Option) *harness {
	t.Helper()

	log := &events{}
	h := &harness{
		clock: testfixtures.NewClock(time.Date(2026, time.March, 2, 7, 30, 0, 0, time.Local)),
		host:  testfixtures.NewTimerHost(),
		store: &memoryStore{records: map[int64]*alarm.Record{
			1: {ID: 1, Hour: 7, Minute: 30, Label: "Gym", Enabled: true},
			2: {ID: 2, Hour: 7, Minute: 30, Enabled: true},
			3: {ID: 3, Hour: 8, Minute: 0, Enabled: false},
		}},
		backend:   &fakeBackend{events: log},
		presenter: &fakePresenter{},
		fallback:  &fakePresenter{},
		locker:    &countingLocker{},
		events:    log,
	}

	sched := scheduler.New(h.host, scheduler.WithClock(h.clock.Now))

	capture := WithAfterFunc(func(_ time.Duration, f func()) Stopper {
		retry := &manualRetry{task: f}

		h.retriesMu.Lock()
		h.retries = append(h.retries, retry)
		h.retriesMu.Unlock()

		return retry
	})

	h.pipeline = New(Dependencies{
		Store:     h.store,
		Scheduler: &recordingScheduler{events: log, next: sched},
		Backend:   h.backend,
		Presenter: h.presenter,
		Fallback:  h.fallback,
		Locker:    h.locker,
	}, Config{
		Sounds:      []alerting.SoundSource{{Kind: alerting.SoundAlarm, Path: "alarm.wav"}},
		Volume:      1,
		Vibration:   []time.Duration{0, time.Second, 500 * time.Millisecond},
		WakeCeiling: 5 * time.Minute,
		RetryDelay:  500 * time.Millisecond,
		Snooze:      5 * time.Minute,
	}, append([]Option{WithClock(h.clock.Now), capture}, options...)...)

	return h
}

func TestPipeline_DeliverIsIdempotent(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	h.pipeline.Deliver(ctx, 1)
	h.pipeline.Deliver(ctx, 1)

	starts, _ := h.backend.counts()
	require.Equal(t, 1, starts)

	acquired, released := h.locker.counts()
	require.Equal(t, 1, acquired)
	require.Zero(t, released)

	session := h.pipeline.Current()
	require.NotNil(t, session)
	require.Equal(t, int64(1), session.AlarmID)
	require.Equal(t, "Gym", session.Label)
	require.Equal(t, "07:30", session.TimeString)
	require.Equal(t, alarm.SessionTriggered, session.State)
	require.Equal(t, h.clock.Now(), session.FiredAt)
	require.NotEmpty(t, session.Token)

	alert := h.backend.starts[0]
	require.Equal(t, alerting.NotificationTitle, alert.Notification.Title)
	require.Equal(t, "Gym", alert.Notification.Body)
	require.Len(t, alert.Sounds, 1)

	require.Len(t, h.presenter.presented(), 1)
	require.Empty(t, h.fallback.presented())
}

// TestPipeline_DismissWaitsForSlowStart verifies a dismiss racing a slow
// alert start is applied after the start, so no output is left running.
func TestPipeline_DismissWaitsForSlowStart(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	backend := newBlockingBackend(h.events)
	h.pipeline.deps.Backend = backend

	ctx := context.Background()
	delivered := make(chan struct{})

	go func() {
		defer close(delivered)
		h.pipeline.Deliver(ctx, 1)
	}()

	<-backend.entered

	dismissed := make(chan bool, 1)

	go func() {
		dismissed <- h.pipeline.Dismiss(ctx)
	}()

	select {
	case <-dismissed:
		t.Fatal("dismiss completed while the alert was still starting")
	case <-time.After(50 * time.Millisecond):
	}

	close(backend.release)

	require.True(t, <-dismissed)
	<-delivered

	require.Equal(t, []string{"start", "stop"}, h.events.all())
	require.Nil(t, h.pipeline.Current())

	last := h.pipeline.Last()
	require.Equal(t, alarm.SessionAcknowledged, last.State)
	require.Equal(t, alarm.AckDismissed, last.Acknowledgement)

	acquired, released := h.locker.counts()
	require.Equal(t, 1, acquired)
	require.Equal(t, 1, released)
}

// TestPipeline_ConcurrentDeliverStartsOnce fires the same alarm from two
// goroutines at once.
func TestPipeline_ConcurrentDeliverStartsOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	var (
		ready sync.WaitGroup
		done  sync.WaitGroup
	)

	start := make(chan struct{})

	for range 2 {
		ready.Add(1)
		done.Add(1)

		go func() {
			defer done.Done()

			ready.Done()
			<-start
			h.pipeline.Deliver(ctx, 1)
		}()
	}

	ready.Wait()
	close(start)
	done.Wait()

	starts, _ := h.backend.counts()
	require.Equal(t, 1, starts)

	acquired, released := h.locker.counts()
	require.Equal(t, 1, acquired)
	require.Zero(t, released)
	require.Len(t, h.presenter.presented(), 1)
	require.Zero(t, h.host.Len())
}

// TestPipeline_ConcurrentDifferentAlarms fires two alarms at once: one rings
// and the other is deferred.
func TestPipeline_ConcurrentDifferentAlarms(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	var done sync.WaitGroup

	for _, id := range []int64{1, 2} {
		done.Add(1)

		go func() {
			defer done.Done()
			h.pipeline.Deliver(ctx, id)
		}()
	}

	done.Wait()

	starts, _ := h.backend.counts()
	require.Equal(t, 1, starts)

	ringing := h.pipeline.Current()
	require.NotNil(t, ringing)

	deferred := int64(3) - ringing.AlarmID

	pending, ok := h.host.Pending(deferred)
	require.True(t, ok)
	require.Equal(t, h.clock.Now().Add(5*time.Minute), pending)
}

func TestPipeline_DismissAlarm(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	require.False(t, h.pipeline.DismissAlarm(ctx, 1))

	h.pipeline.Deliver(ctx, 1)

	require.False(t, h.pipeline.DismissAlarm(ctx, 2))
	require.NotNil(t, h.pipeline.Current())

	require.True(t, h.pipeline.DismissAlarm(ctx, 1))
	require.Nil(t, h.pipeline.Current())
	require.Equal(t, alarm.AckDismissed, h.pipeline.Last().Acknowledgement)
}

func TestPipeline_SnoozeSkipsDisabledRecord(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	h.pipeline.Deliver(ctx, 1)
	h.store.records[1].Enabled = false

	fireAt, ok, err := h.pipeline.Snooze(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, fireAt.IsZero())
	require.Zero(t, h.host.Len())
	require.Equal(t, []string{"start", "stop"}, h.events.all())
}

func TestPipeline_SnoozeStoreFailureUsesFiredRecord(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	h.pipeline.Deliver(ctx, 1)
	h.store.err = errors.New("disk on fire")

	fireAt, ok, err := h.pipeline.Snooze(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, h.clock.Now().Add(time.Minute), fireAt)
	require.Equal(t, []int64{1}, h.host.IDs())
}

func TestPipeline_ActionsWithoutSessionAreNoOps(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	require.False(t, h.pipeline.Dismiss(ctx))

	_, ok, err := h.pipeline.Snooze(ctx, time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	h.pipeline.OnDismissAction(ctx)
	h.pipeline.OnSnoozeAction(ctx)

	require.Nil(t, h.pipeline.Current())
	require.Nil(t, h.pipeline.Last())
	require.Empty(t, h.events.all())
	require.Zero(t, h.host.Len())
}

func TestPipeline_Dismiss(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	h.pipeline.Deliver(ctx, 1)
	h.clock.Advance(10 * time.Second)

	require.True(t, h.pipeline.Dismiss(ctx))
	require.False(t, h.pipeline.Dismiss(ctx))

	require.Nil(t, h.pipeline.Current())

	last := h.pipeline.Last()
	require.Equal(t, alarm.SessionAcknowledged, last.State)
	require.Equal(t, alarm.AckDismissed, last.Acknowledgement)
	require.Equal(t, h.clock.Now(), last.AcknowledgedAt)

	_, stops := h.backend.counts()
	require.Equal(t, 1, stops)

	_, released := h.locker.counts()
	require.Equal(t, 1, released)
	require.Zero(t, h.host.Len())
	require.Equal(t, []string{"start", "stop"}, h.events.all())
}

func TestPipeline_Snooze(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	h.pipeline.Deliver(ctx, 1)
	firedAt := h.pipeline.Current().FiredAt

	fireAt, ok, err := h.pipeline.Snooze(ctx, 5*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, firedAt.Add(5*time.Minute), fireAt)

	require.Equal(t, []int64{1}, h.host.IDs())

	pending, _ := h.host.Pending(1)
	require.Equal(t, fireAt, pending)
	require.Equal(t, []string{"start", "stop", "reschedule"}, h.events.all())

	last := h.pipeline.Last()
	require.Equal(t, alarm.SessionAcknowledged, last.State)
	require.Equal(t, alarm.AckSnoozed, last.Acknowledgement)

	_, released := h.locker.counts()
	require.Equal(t, 1, released)

	// The snoozed trigger rings again with a fresh session.
	h.clock.Advance(5 * time.Minute)
	h.pipeline.Deliver(ctx, 1)

	again := h.pipeline.Current()
	require.NotNil(t, again)
	require.NotEqual(t, last.Token, again.Token)

	starts, _ := h.backend.counts()
	require.Equal(t, 2, starts)
}

func TestPipeline_SnoozeDefaultDelay(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	h.pipeline.Deliver(ctx, 2)
	h.pipeline.OnSnoozeAction(ctx)

	pending, ok := h.host.Pending(2)
	require.True(t, ok)
	require.Equal(t, h.clock.Now().Add(5*time.Minute), pending)
}

func TestPipeline_SnoozeReportsSchedulingFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	h.pipeline.Deliver(ctx, 1)
	h.host.SetUnavailable(true)

	_, ok, err := h.pipeline.Snooze(ctx, time.Minute)
	require.True(t, ok)
	require.ErrorIs(t, err, alarm.ErrSchedulingUnavailable)
	require.Nil(t, h.pipeline.Current())
}

func TestPipeline_CollisionIsDeferred(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	h.pipeline.Deliver(ctx, 1)
	h.pipeline.Deliver(ctx, 2)

	starts, _ := h.backend.counts()
	require.Equal(t, 1, starts)
	require.Equal(t, int64(1), h.pipeline.Current().AlarmID)

	pending, ok := h.host.Pending(2)
	require.True(t, ok)
	require.Equal(t, h.clock.Now().Add(5*time.Minute), pending)

	acquired, _ := h.locker.counts()
	require.Equal(t, 1, acquired)
}

func TestPipeline_MissingOrDisabledRecord(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	h.pipeline.Deliver(ctx, 404)
	h.pipeline.Deliver(ctx, 3)

	require.Nil(t, h.pipeline.Current())

	starts, _ := h.backend.counts()
	require.Zero(t, starts)

	acquired, released := h.locker.counts()
	require.Equal(t, 2, acquired)
	require.Equal(t, 2, released)
}

func TestPipeline_StoreFailureStillRings(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.store.err = errors.New("disk on fire")

	h.pipeline.Deliver(context.Background(), 1)

	session := h.pipeline.Current()
	require.NotNil(t, session)
	require.Equal(t, alarm.DefaultLabel, session.Label)
	require.Equal(t, "07:30", session.TimeString)
}

func TestPipeline_StepFailuresAreContained(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.backend.panics = true

	ctx := context.Background()
	h.pipeline.Deliver(ctx, 1)

	require.NotNil(t, h.pipeline.Current())
	require.Len(t, h.presenter.presented(), 1)

	require.True(t, h.pipeline.Dismiss(ctx))

	_, released := h.locker.counts()
	require.Equal(t, 1, released)
}

func TestPipeline_AlertingUnavailableStillPresents(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.backend.startErr = alarm.ErrAlertingUnavailable

	h.pipeline.Deliver(context.Background(), 1)

	require.NotNil(t, h.pipeline.Current())
	require.Len(t, h.presenter.presented(), 1)
}

func TestPipeline_PresentationRetryAndFallback(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, WithClock(time.Now), realRetries())
		h.presenter.err = alarm.ErrPresentationFailed

		ctx := context.Background()
		h.pipeline.Deliver(ctx, 1)

		require.Len(t, h.presenter.presented(), 1)
		require.Empty(t, h.fallback.presented())

		time.Sleep(time.Second)
		synctest.Wait()

		require.Len(t, h.presenter.presented(), 2)

		fallback := h.fallback.presented()
		require.Len(t, fallback, 1)
		require.True(t, fallback[0].Ringing)
		require.Equal(t, "Gym", fallback[0].Label)

		require.True(t, h.pipeline.Dismiss(ctx))
	})
}

func TestPipeline_FastDismissCancelsRetry(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, WithClock(time.Now), realRetries())

		ctx := context.Background()
		h.pipeline.Deliver(ctx, 1)

		time.Sleep(100 * time.Millisecond)
		require.True(t, h.pipeline.Dismiss(ctx))

		time.Sleep(time.Second)
		synctest.Wait()

		require.Len(t, h.presenter.presented(), 1)
		require.Empty(t, h.fallback.presented())
	})
}

// TestPipeline_RetryRelaunchesAfterSilentSuppression verifies the second
// launch happens even when the first one reported success.
func TestPipeline_RetryRelaunchesAfterSilentSuppression(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, WithClock(time.Now), realRetries())

		ctx := context.Background()
		h.pipeline.Deliver(ctx, 1)

		require.Len(t, h.presenter.presented(), 1)

		time.Sleep(time.Second)
		synctest.Wait()

		presented := h.presenter.presented()
		require.Len(t, presented, 2)
		require.Equal(t, presented[0], presented[1])
		require.Empty(t, h.fallback.presented())

		require.True(t, h.pipeline.Dismiss(ctx))
	})
}

func TestPipeline_RetryRecoversWithoutFallback(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.presenter.err = alarm.ErrPresentationFailed

	ctx := context.Background()
	h.pipeline.Deliver(ctx, 1)

	retry := h.lastRetry()
	require.NotNil(t, retry)

	h.presenter.mu.Lock()
	h.presenter.err = nil
	h.presenter.mu.Unlock()

	retry.run()

	require.Len(t, h.presenter.presented(), 2)
	require.Empty(t, h.fallback.presented())

	// A retry belonging to an acknowledged session does nothing.
	require.True(t, h.pipeline.Dismiss(ctx))
	retry.task()
	require.Len(t, h.presenter.presented(), 2)
}

func TestPipeline_RetryFailureOpensFallback(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	ctx := context.Background()
	h.pipeline.Deliver(ctx, 1)

	// The first launch succeeded, yet the surface never showed up.
	h.presenter.mu.Lock()
	h.presenter.err = alarm.ErrPresentationFailed
	h.presenter.mu.Unlock()

	h.lastRetry().run()

	fallback := h.fallback.presented()
	require.Len(t, fallback, 1)
	require.True(t, fallback[0].Ringing)
	require.Equal(t, int64(1), fallback[0].AlarmID)
}

func TestPipeline_AcknowledgeStopsRetry(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	h.pipeline.Deliver(ctx, 1)

	retry := h.lastRetry()
	require.NotNil(t, retry)
	require.False(t, retry.isStopped())

	_, ok, err := h.pipeline.Snooze(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, retry.isStopped())
}

func TestPipeline_Shutdown(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()

	h.pipeline.Shutdown(ctx)
	h.pipeline.Deliver(ctx, 1)
	h.pipeline.Shutdown(ctx)

	require.Nil(t, h.pipeline.Current())

	_, stops := h.backend.counts()
	require.Equal(t, 1, stops)
}
