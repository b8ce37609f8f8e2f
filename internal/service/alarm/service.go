package alarm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domain "github.com/oshokin/alarm-clock/internal/domain/alarm"
	"github.com/oshokin/alarm-clock/internal/logger"
	repo "github.com/oshokin/alarm-clock/internal/repository/alarm"
)

// Scheduler arms and cancels alarm wake-ups.
type Scheduler interface {
	// Register arms the next trigger of record.
	Register(ctx context.Context, record *domain.Record) (time.Time, error)
	// Cancel removes the pending trigger for id.
	Cancel(ctx context.Context, id int64)
	// Pending returns the pending trigger instant for id.
	Pending(id int64) (time.Time, bool)
}

// Ringer owns the ringing session.
type Ringer interface {
	// Current returns the ringing session, or nil.
	Current() *domain.Session
	// Last returns the latest session, ringing or acknowledged, or nil.
	Last() *domain.Session
	// Dismiss acknowledges the ringing session.
	Dismiss(ctx context.Context) bool
	// DismissAlarm acknowledges the ringing session if it belongs to id.
	DismissAlarm(ctx context.Context, id int64) bool
	// Snooze acknowledges the ringing session and rings again after delay.
	Snooze(ctx context.Context, delay time.Duration) (time.Time, bool, error)
}

// Service is the façade used by every control surface.
type Service struct {
	// repo stores the records.
	repo repo.Repository
	// scheduler arms the wake-ups.
	scheduler Scheduler
	// ringer owns the ringing session.
	ringer Ringer
	// now returns the current time, used for id assignment.
	now func() time.Time
	// mu serializes mutations so store and scheduler stay in step.
	mu sync.Mutex
	// lastID is the last id handed out by this process.
	lastID int64
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for id assignment.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates the façade.
func NewService(repository repo.Repository, scheduler Scheduler, ringer Ringer, options ...Option) *Service {
	s := &Service{
		repo:      repository,
		scheduler: scheduler,
		ringer:    ringer,
		now:       time.Now,
	}

	for _, option := range options {
		option(s)
	}

	return s
}

// Set creates an enabled alarm and schedules it.
func (s *Service) Set(ctx context.Context, hour, minute int, label string) (*domain.Entry, error) {
	if err := domain.ValidateTime(hour, minute); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.nextID(ctx)
	if err != nil {
		return nil, err
	}

	record := &domain.Record{
		ID:      id,
		Hour:    hour,
		Minute:  minute,
		Label:   label,
		Enabled: true,
	}

	if err = s.save(ctx, record); err != nil {
		return nil, err
	}

	fireAt, err := s.scheduler.Register(ctx, record)
	if err != nil {
		s.compensate(ctx, record.ID, nil)

		return nil, fmt.Errorf("schedule new alarm: %w", err)
	}

	logger.InfoKV(ctx, "Alarm set", "alarm_id", id, "time", record.TimeString(), "label", label)

	return &domain.Entry{Record: record.Clone(), NextFireAt: fireAt}, nil
}

// Edit changes the time and label of an alarm and reschedules it when enabled.
func (s *Service) Edit(ctx context.Context, id int64, hour, minute int, label string) (*domain.Entry, error) {
	if err := domain.ValidateTime(hour, minute); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	previous := record.Clone()

	record.Hour = hour
	record.Minute = minute
	record.Label = label

	entry, err := s.apply(ctx, record, previous)
	if err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Alarm edited", "alarm_id", id, "time", record.TimeString(), "label", label)

	return entry, nil
}

// Toggle enables or disables an alarm.
func (s *Service) Toggle(ctx context.Context, id int64, enabled bool) (*domain.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	previous := record.Clone()
	record.Enabled = enabled

	entry, err := s.apply(ctx, record, previous)
	if err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Alarm toggled", "alarm_id", id, "enabled", enabled)

	return entry, nil
}

// Delete removes an alarm. A ringing session of that alarm is dismissed.
func (s *Service) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.load(ctx, id); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete alarm %d: %w: %w", id, domain.ErrStoreIO, err)
	}

	s.scheduler.Cancel(ctx, id)

	if s.ringer.DismissAlarm(ctx, id) {
		logger.InfoKV(ctx, "Ringing alarm dismissed on delete", "alarm_id", id)
	}

	logger.InfoKV(ctx, "Alarm deleted", "alarm_id", id)

	return nil
}

// Get returns one alarm.
func (s *Service) Get(ctx context.Context, id int64) (*domain.Entry, error) {
	record, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	return s.entryOf(record), nil
}

// List returns every alarm ordered by time of day.
func (s *Service) List(ctx context.Context) ([]*domain.Entry, error) {
	records, err := s.repo.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list alarms: %w: %w", domain.ErrStoreIO, err)
	}

	entries := make([]*domain.Entry, 0, len(records))
	for _, record := range records {
		entries = append(entries, s.entryOf(record))
	}

	return entries, nil
}

// Restore registers every enabled alarm in the store. It keeps going past
// failures and returns how many alarms were registered with the joined errors.
func (s *Service) Restore(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.repo.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore alarms: %w: %w", domain.ErrStoreIO, err)
	}

	var (
		restored int
		errs     []error
	)

	for _, record := range records {
		if record.ID > s.lastID {
			s.lastID = record.ID
		}

		if !record.Enabled {
			continue
		}

		if _, err = s.scheduler.Register(ctx, record); err != nil {
			errs = append(errs, fmt.Errorf("restore alarm %d: %w", record.ID, err))

			continue
		}

		restored++
	}

	logger.InfoKV(ctx, "Alarms restored", "restored", restored, "total", len(records), "failed", len(errs))

	return restored, errors.Join(errs...)
}

// DismissCurrent stops the ringing alarm. It reports false when none rings.
func (s *Service) DismissCurrent(ctx context.Context) bool {
	return s.ringer.Dismiss(ctx)
}

// SnoozeCurrent stops the ringing alarm and rings it again after delay.
// A zero delay means the configured default. It runs under mu so that a
// concurrent Toggle or Delete cannot interleave with the new trigger.
func (s *Service) SnoozeCurrent(ctx context.Context, delay time.Duration) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ringer.Snooze(ctx, delay)
}

// Current returns the ringing session, or nil.
func (s *Service) Current() *domain.Session {
	return s.ringer.Current()
}

// Last returns the latest session, ringing or acknowledged, or nil.
func (s *Service) Last() *domain.Session {
	return s.ringer.Last()
}

// apply persists record and brings its registration in line. On a
// scheduling failure previous is written back and re-registered.
// The caller holds mu.
func (s *Service) apply(ctx context.Context, record, previous *domain.Record) (*domain.Entry, error) {
	if err := s.save(ctx, record); err != nil {
		return nil, err
	}

	if !record.Enabled {
		s.scheduler.Cancel(ctx, record.ID)

		return &domain.Entry{Record: record.Clone()}, nil
	}

	fireAt, err := s.scheduler.Register(ctx, record)
	if err != nil {
		s.compensate(ctx, record.ID, previous)

		return nil, fmt.Errorf("schedule alarm %d: %w", record.ID, err)
	}

	return &domain.Entry{Record: record.Clone(), NextFireAt: fireAt}, nil
}

// compensate undoes a store write after a scheduling failure: a new record
// is deleted, an edited one is written back as it was.
func (s *Service) compensate(ctx context.Context, id int64, previous *domain.Record) {
	if previous == nil {
		if err := s.repo.Delete(ctx, id); err != nil {
			logger.ErrorKV(ctx, "Failed to roll back new alarm", "alarm_id", id, "error", err)
		}

		return
	}

	if err := s.repo.Save(ctx, previous); err != nil {
		logger.ErrorKV(ctx, "Failed to roll back alarm", "alarm_id", id, "error", err)

		return
	}

	if !previous.Enabled {
		return
	}

	if _, err := s.scheduler.Register(ctx, previous); err != nil {
		logger.ErrorKV(ctx, "Failed to re-register previous alarm", "alarm_id", id, "error", err)
	}
}

// nextID returns a time-derived id that is strictly greater than any id
// this process handed out and not present in the store. The caller holds mu.
func (s *Service) nextID(ctx context.Context) (int64, error) {
	id := max(s.now().UnixMilli(), s.lastID+1)

	for {
		_, err := s.repo.Load(ctx, id)

		switch {
		case errors.Is(err, repo.ErrNotFound):
			s.lastID = id

			return id, nil
		case err != nil:
			return 0, fmt.Errorf("assign alarm id: %w: %w", domain.ErrStoreIO, err)
		default:
			id++
		}
	}
}

func (s *Service) load(ctx context.Context, id int64) (*domain.Record, error) {
	record, err := s.repo.Load(ctx, id)

	switch {
	case errors.Is(err, repo.ErrNotFound):
		return nil, fmt.Errorf("alarm %d: %w", id, domain.ErrAlarmNotFound)
	case err != nil:
		return nil, fmt.Errorf("load alarm %d: %w: %w", id, domain.ErrStoreIO, err)
	default:
		return record, nil
	}
}

func (s *Service) save(ctx context.Context, record *domain.Record) error {
	if err := s.repo.Save(ctx, record); err != nil {
		logger.ErrorKV(ctx, "Failed to persist alarm", "alarm_id", record.ID, "error", err)

		return fmt.Errorf("save alarm %d: %w: %w", record.ID, domain.ErrStoreIO, err)
	}

	return nil
}

func (s *Service) entryOf(record *domain.Record) *domain.Entry {
	entry := &domain.Entry{Record: record.Clone()}

	if fireAt, ok := s.scheduler.Pending(record.ID); ok {
		entry.NextFireAt = fireAt
	}

	return entry
}
