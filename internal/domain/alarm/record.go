package alarm

import (
	"fmt"
	"time"
)

const (
	// DefaultLabel is shown when a record carries an empty label.
	DefaultLabel = "Alarm"

	// MaxHour is the last valid wall-clock hour.
	MaxHour = 23
	// MaxMinute is the last valid wall-clock minute.
	MaxMinute = 59

	// DaysInWeek is the size of the repeat day set.
	DaysInWeek = 7
)

// Weekdays marks the days an alarm is meant to repeat on, Sunday=0..Saturday=6.
// The engine stores it but never evaluates it.
type Weekdays [DaysInWeek]bool

// Has reports whether the given weekday is set.
func (w Weekdays) Has(day time.Weekday) bool {
	if day < time.Sunday || day > time.Saturday {
		return false
	}

	return w[day]
}

// Any reports whether at least one day is set.
func (w Weekdays) Any() bool {
	for _, set := range w {
		if set {
			return true
		}
	}

	return false
}

// Record describes one configured alarm.
type Record struct {
	// ID is the stable identity assigned at creation. It never changes.
	ID int64
	// Hour is the wall-clock hour in local time, 0..23.
	Hour int
	// Minute is the wall-clock minute, 0..59.
	Minute int
	// Label is free text; empty means DefaultLabel at presentation time.
	Label string
	// Enabled records are scheduled, disabled ones are only kept in the store.
	Enabled bool
	// RepeatDays is reserved for recurrence.
	RepeatDays Weekdays
}

// ValidateTime checks that hour and minute form a wall-clock time.
func ValidateTime(hour, minute int) error {
	if hour < 0 || hour > MaxHour {
		return fmt.Errorf("hour %d out of range 0..%d: %w", hour, MaxHour, ErrInvalidTime)
	}

	if minute < 0 || minute > MaxMinute {
		return fmt.Errorf("minute %d out of range 0..%d: %w", minute, MaxMinute, ErrInvalidTime)
	}

	return nil
}

// Validate checks the record fields the scheduler depends on.
func (r *Record) Validate() error {
	if r == nil {
		return ErrNilRecord
	}

	return ValidateTime(r.Hour, r.Minute)
}

// TimeString renders the trigger time as HH:MM.
func (r *Record) TimeString() string {
	return fmt.Sprintf("%02d:%02d", r.Hour, r.Minute)
}

// DisplayLabel returns the label or DefaultLabel when the label is empty.
func (r *Record) DisplayLabel() string {
	if r.Label == "" {
		return DefaultLabel
	}

	return r.Label
}

// String implements fmt.Stringer for log output.
func (r *Record) String() string {
	if r == nil {
		return "<nil alarm>"
	}

	return fmt.Sprintf("alarm{id=%d, time=%s, label=%q, enabled=%t}", r.ID, r.TimeString(), r.Label, r.Enabled)
}

// Clone returns a copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}

	cloned := *r

	return &cloned
}

// Entry is a record together with its pending trigger instant.
type Entry struct {
	// Record is a copy of the stored record.
	Record *Record
	// NextFireAt is the pending trigger instant, zero when nothing is pending.
	NextFireAt time.Time
}

// Scheduled reports whether a trigger is pending.
func (e *Entry) Scheduled() bool {
	return e != nil && !e.NextFireAt.IsZero()
}
