package delivery

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/alarm-clock/internal/alerting"
	"github.com/oshokin/alarm-clock/internal/domain/alarm"
	"github.com/oshokin/alarm-clock/internal/logger"
	"github.com/oshokin/alarm-clock/internal/presentation"
	"github.com/oshokin/alarm-clock/internal/service/power"
)

// wakeLockName names the wake lock held while an alarm rings.
const wakeLockName = "alarm-clock"

// Store loads the record of a fired alarm.
type Store interface {
	// Load returns the record or an error wrapping alarm.ErrAlarmNotFound.
	Load(ctx context.Context, id int64) (*alarm.Record, error)
}

// Rescheduler arms a one-shot trigger for snooze and deferred collisions.
type Rescheduler interface {
	// Reschedule arms a trigger for record at now+delay.
	Reschedule(ctx context.Context, record *alarm.Record, delay time.Duration) (time.Time, error)
}

// Stopper cancels a deferred task.
type Stopper interface {
	// Stop cancels the task. It reports false if the task already ran.
	Stop() bool
}

// AfterFunc runs f once after d.
type AfterFunc func(d time.Duration, f func()) Stopper

// Dependencies are the collaborators of a Pipeline.
type Dependencies struct {
	// Store loads records at fire time.
	Store Store
	// Scheduler arms snooze triggers.
	Scheduler Rescheduler
	// Backend produces sound, vibration and the notification.
	Backend alerting.Backend
	// Presenter shows the full-screen ringing surface.
	Presenter presentation.Presenter
	// Fallback shows the general surface flagged as ringing.
	Fallback presentation.Presenter
	// Locker keeps the host awake during delivery.
	Locker power.WakeLocker
}

// Config holds the delivery settings.
type Config struct {
	// Sounds is the sound fallback chain.
	Sounds []alerting.SoundSource
	// Volume is the playback volume in 0..1.
	Volume float64
	// Vibration is the repeating vibration pattern.
	Vibration []time.Duration
	// WakeCeiling bounds the wake lease.
	WakeCeiling time.Duration
	// RetryDelay is the delay before the second presentation attempt.
	RetryDelay time.Duration
	// Snooze is the default snooze delay.
	Snooze time.Duration
}

// Pipeline delivers fired alarms and owns the ringing session slot.
type Pipeline struct {
	// deps are the collaborators.
	deps Dependencies
	// cfg holds the settings.
	cfg Config
	// now returns the current time.
	now func() time.Time
	// afterFunc schedules the presentation retry.
	afterFunc AfterFunc
	// newToken creates session tokens.
	newToken func() string

	// mu guards the slot below and every transition of it.
	mu sync.Mutex
	// session is the latest session, Triggered or Acknowledged.
	session *alarm.Session
	// record is the record captured when session fired.
	record *alarm.Record
	// lease keeps the host awake while session rings.
	lease *power.Lease
	// retry is the pending presentation retry.
	retry Stopper
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithAfterFunc overrides how the presentation retry is deferred.
func WithAfterFunc(afterFunc AfterFunc) Option {
	return func(p *Pipeline) {
		if afterFunc != nil {
			p.afterFunc = afterFunc
		}
	}
}

// WithTokens overrides the session token source.
func WithTokens(newToken func() string) Option {
	return func(p *Pipeline) {
		if newToken != nil {
			p.newToken = newToken
		}
	}
}

// New creates a pipeline. Missing presenters and locker are replaced by
// log-only and no-op implementations.
func New(deps Dependencies, cfg Config, options ...Option) *Pipeline {
	if deps.Presenter == nil {
		deps.Presenter = presentation.LogPresenter{}
	}

	if deps.Fallback == nil {
		deps.Fallback = presentation.LogPresenter{}
	}

	if deps.Locker == nil {
		deps.Locker = power.NopWakeLock{}
	}

	p := &Pipeline{
		deps: deps,
		cfg:  cfg,
		now:  time.Now,
		afterFunc: func(d time.Duration, f func()) Stopper {
			return time.AfterFunc(d, f)
		},
		newToken: uuid.NewString,
	}

	for _, option := range options {
		option(p)
	}

	return p
}

// Deliver runs the trigger-time steps for id. Delivering an alarm that
// already rings is a no-op. A different alarm firing while one rings is
// deferred by the default snooze delay.
func (p *Pipeline) Deliver(ctx context.Context, id int64) {
	ctx = logger.WithKV(logger.WithName(ctx, "delivery"), "alarm_id", id)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session.IsTriggered() {
		if p.session.AlarmID == id {
			logger.Info(ctx, "Alarm already ringing, ignoring duplicate delivery")

			return
		}

		p.deferCollision(ctx, id)

		return
	}

	// Step 1: keep the host awake. The lease is released on every exit
	// path unless the new session takes it over.
	var lease *power.Lease

	p.guard(ctx, "acquire wake lease", func() error {
		var err error

		lease, err = p.deps.Locker.Acquire(ctx, wakeLockName, p.cfg.WakeCeiling)

		return err
	})

	defer func() {
		if p.lease != lease {
			p.releaseLease(ctx, lease)
		}
	}()

	record := p.loadRecord(ctx, id, nil)
	if record == nil {
		return
	}

	session := &alarm.Session{
		Token:      p.newToken(),
		AlarmID:    id,
		Label:      record.DisplayLabel(),
		TimeString: record.TimeString(),
		State:      alarm.SessionTriggered,
		FiredAt:    p.now(),
	}

	p.session = session
	p.record = record
	p.lease = lease

	logger.InfoKV(ctx, "Alarm ringing", "label", session.Label, "time", session.TimeString, "token", session.Token)

	// Step 2: sound, vibration and notification.
	p.guard(ctx, "start alert", func() error {
		return p.deps.Backend.Start(ctx, p.alertFor(record))
	})

	// Step 3: the ringing surface.
	p.guard(ctx, "present", func() error {
		return p.present(ctx, session)
	})
}

// Dismiss acknowledges the ringing session. It reports false and does
// nothing when no session rings.
func (p *Pipeline) Dismiss(ctx context.Context) bool {
	ctx = logger.WithName(ctx, "delivery")

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.session.IsTriggered() {
		return false
	}

	p.acknowledge(ctx, alarm.AckDismissed)

	return true
}

// DismissAlarm acknowledges the ringing session only when it belongs to id.
// It reports false and does nothing otherwise.
func (p *Pipeline) DismissAlarm(ctx context.Context, id int64) bool {
	ctx = logger.WithName(ctx, "delivery")

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.session.IsTriggered() || p.session.AlarmID != id {
		return false
	}

	p.acknowledge(ctx, alarm.AckDismissed)

	return true
}

// Snooze acknowledges the ringing session and arms a new trigger after
// delay, or after the default snooze delay when delay is not positive.
// The record is read again first: a record deleted or disabled while it
// rang is acknowledged without a new trigger, and a zero time is returned.
// It reports false and does nothing when no session rings.
func (p *Pipeline) Snooze(ctx context.Context, delay time.Duration) (time.Time, bool, error) {
	ctx = logger.WithName(ctx, "delivery")

	if delay <= 0 {
		delay = p.cfg.Snooze
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.session.IsTriggered() {
		return time.Time{}, false, nil
	}

	id := p.session.AlarmID
	stale := p.record

	p.acknowledge(ctx, alarm.AckSnoozed)

	record := p.loadRecord(logger.WithKV(ctx, "alarm_id", id), id, stale)
	if record == nil {
		return time.Time{}, true, nil
	}

	fireAt, err := p.deps.Scheduler.Reschedule(ctx, record, delay)
	if err != nil {
		logger.ErrorKV(ctx, "Failed to schedule snooze", "alarm_id", record.ID, "error", err)

		return time.Time{}, true, fmt.Errorf("snooze alarm %d: %w", record.ID, err)
	}

	return fireAt, true, nil
}

// OnDismissAction handles the Dismiss action of the notification.
func (p *Pipeline) OnDismissAction(ctx context.Context) {
	if !p.Dismiss(ctx) {
		logger.Debug(ctx, "Dismiss action with no ringing alarm")
	}
}

// OnSnoozeAction handles the Snooze action of the notification.
func (p *Pipeline) OnSnoozeAction(ctx context.Context) {
	if _, _, err := p.Snooze(ctx, 0); err != nil {
		logger.ErrorKV(ctx, "Snooze action failed", "error", err)
	}
}

// Current returns a copy of the ringing session, or nil.
func (p *Pipeline) Current() *alarm.Session {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.session.IsTriggered() {
		return nil
	}

	return p.session.Clone()
}

// Last returns a copy of the latest session, ringing or acknowledged.
func (p *Pipeline) Last() *alarm.Session {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.session.Clone()
}

// Shutdown dismisses the ringing session, if any, so no output or wake
// lease outlives the process.
func (p *Pipeline) Shutdown(ctx context.Context) {
	if p.Dismiss(ctx) {
		logger.Info(ctx, "Ringing alarm dismissed on shutdown")
	}
}

// acknowledge tears the ringing session down. The caller holds mu.
func (p *Pipeline) acknowledge(ctx context.Context, ack alarm.Acknowledgement) {
	session := p.session

	if p.retry != nil {
		p.retry.Stop()
		p.retry = nil
	}

	session.State = alarm.SessionAcknowledged
	session.AcknowledgedAt = p.now()
	session.Acknowledgement = ack

	p.guard(ctx, "stop alert", func() error {
		return p.deps.Backend.Stop(ctx)
	})

	p.releaseLease(ctx, p.lease)
	p.lease = nil

	logger.InfoKV(ctx, "Alarm acknowledged",
		"alarm_id", session.AlarmID,
		"acknowledgement", string(ack),
		"token", session.Token,
	)
}

// loadRecord fetches the fired record. A missing or disabled record
// yields nil. On a store failure stale is used, or when it is nil a
// record built from the fire time so that the alarm still rings.
func (p *Pipeline) loadRecord(ctx context.Context, id int64, stale *alarm.Record) *alarm.Record {
	var record *alarm.Record

	err := p.guard(ctx, "load alarm", func() error {
		var err error

		record, err = p.deps.Store.Load(ctx, id)

		return err
	})

	switch {
	case errors.Is(err, alarm.ErrAlarmNotFound):
		logger.Warn(ctx, "Alarm no longer exists, skipping")

		return nil
	case (err != nil || record == nil) && stale != nil:
		return stale
	case err != nil || record == nil:
		firedAt := p.now()

		return &alarm.Record{ID: id, Hour: firedAt.Hour(), Minute: firedAt.Minute(), Enabled: true}
	case !record.Enabled:
		logger.Info(ctx, "Alarm is disabled, skipping")

		return nil
	default:
		return record
	}
}

// deferCollision pushes a different alarm that fired while one rings
// back by the default snooze delay. The caller holds mu.
func (p *Pipeline) deferCollision(ctx context.Context, id int64) {
	record := p.loadRecord(ctx, id, nil)
	if record == nil {
		return
	}

	fireAt, err := p.deps.Scheduler.Reschedule(ctx, record, p.cfg.Snooze)
	if err != nil {
		logger.ErrorKV(ctx, "Failed to defer colliding alarm", "ringing_alarm_id", p.session.AlarmID, "error", err)

		return
	}

	logger.WarnKV(ctx, "Another alarm is ringing, delivery deferred",
		"ringing_alarm_id", p.session.AlarmID,
		"fire_at", fireAt.Format(time.RFC3339),
	)
}

// present launches the primary surface and always defers a second launch:
// a host may suppress the surface without reporting an error. The retry is
// canceled when the session is acknowledged first. The caller holds mu.
func (p *Pipeline) present(ctx context.Context, session *alarm.Session) error {
	token := session.Token

	p.retry = p.afterFunc(p.cfg.RetryDelay, func() {
		p.retryPresentation(ctx, token)
	})

	if err := p.deps.Presenter.Present(ctx, presentationOf(session, false)); err != nil {
		return fmt.Errorf("first attempt, retrying in %s: %w", p.cfg.RetryDelay, err)
	}

	return nil
}

// retryPresentation is the deferred second launch. When it fails the
// general surface is opened flagged as ringing.
func (p *Pipeline) retryPresentation(ctx context.Context, token string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.session.IsTriggered() || p.session.Token != token {
		return
	}

	p.retry = nil
	session := p.session

	p.guard(ctx, "retry present", func() error {
		err := p.deps.Presenter.Present(ctx, presentationOf(session, false))
		if err == nil {
			return nil
		}

		logger.WarnKV(ctx, "Ringing surface unavailable, opening fallback surface", "error", err)

		if err = p.deps.Fallback.Present(ctx, presentationOf(session, true)); err != nil {
			return fmt.Errorf("fallback surface, notification only: %w", err)
		}

		return nil
	})
}

func (p *Pipeline) alertFor(record *alarm.Record) *alerting.Alert {
	return &alerting.Alert{
		AlarmID:      record.ID,
		Sounds:       slices.Clone(p.cfg.Sounds),
		Volume:       p.cfg.Volume,
		Vibration:    slices.Clone(p.cfg.Vibration),
		Notification: alerting.NewNotification(record),
	}
}

func (p *Pipeline) releaseLease(ctx context.Context, lease *power.Lease) {
	if lease == nil {
		return
	}

	if err := lease.Release(); err != nil {
		logger.WarnKV(ctx, "Failed to release wake lease", "error", err)
	}
}

// guard runs one delivery step. Errors and panics are logged and returned
// only for inspection; they never stop the caller.
func (p *Pipeline) guard(ctx context.Context, step string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", step, r) //nolint:err113 // Panic values are not errors.

			logger.ErrorKV(ctx, "Delivery step panicked", "step", step, "panic", r)
		}
	}()

	err = fn()

	switch {
	case err == nil:
	case errors.Is(err, alarm.ErrAlarmNotFound):
	case errors.Is(err, alarm.ErrAlertingUnavailable), errors.Is(err, alarm.ErrPresentationFailed):
		logger.WarnKV(ctx, "Delivery step degraded", "step", step, "error", err)
	default:
		logger.ErrorKV(ctx, "Delivery step failed", "step", step, "error", err)
	}

	return err
}

func presentationOf(session *alarm.Session, ringing bool) *presentation.Presentation {
	return &presentation.Presentation{
		AlarmID:    session.AlarmID,
		Label:      session.Label,
		TimeString: session.TimeString,
		Ringing:    ringing,
	}
}
