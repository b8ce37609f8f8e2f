package alerting

import (
	"context"
	"time"

	"github.com/oshokin/alarm-clock/internal/domain/alarm"
)

// NotificationTitle is the title of every alarm notification.
const NotificationTitle = "ALARM RINGING!"

// SoundKind names a link of the sound fallback chain.
type SoundKind string

const (
	// SoundAlarm is the primary alarm tone.
	SoundAlarm SoundKind = "alarm"
	// SoundRingtone is the first fallback.
	SoundRingtone SoundKind = "ringtone"
	// SoundNotification is the last fallback before silence.
	SoundNotification SoundKind = "notification"
)

// SoundSource is one WAV file of the fallback chain.
type SoundSource struct {
	// Kind tells where the source sits in the chain.
	Kind SoundKind
	// Path is the WAV file. Empty paths are skipped.
	Path string
}

// Action is a user action offered by the notification.
type Action string

const (
	// ActionDismiss stops the alarm.
	ActionDismiss Action = "dismiss"
	// ActionSnooze stops the alarm and rings again later.
	ActionSnooze Action = "snooze"
)

// Notification is the high-priority, non-swipeable alert shown while ringing.
type Notification struct {
	// AlarmID is the alarm that rings.
	AlarmID int64
	// Title is NotificationTitle.
	Title string
	// Body is the label, or "Alarm at HH:MM" for an empty label.
	Body string
	// Label is the display label of the alarm.
	Label string
	// TimeString is the HH:MM of the alarm.
	TimeString string
	// Actions are offered to the user, Dismiss then Snooze.
	Actions []Action
	// Ongoing notifications cannot be swiped away.
	Ongoing bool
	// HighPriority asks the host to show the notification on top.
	HighPriority bool
}

// Alert is everything the backend needs to start ringing.
type Alert struct {
	// AlarmID is the alarm that rings.
	AlarmID int64
	// Sounds is the fallback chain, tried in order.
	Sounds []SoundSource
	// Volume is the playback volume in 0..1.
	Volume float64
	// Vibration is the repeating on/off pattern. The first entry is an
	// initial pause, then on and off durations alternate.
	Vibration []time.Duration
	// Notification is posted for the whole ringing session.
	Notification Notification
}

// Backend starts and stops alert output.
type Backend interface {
	// Start begins ringing. A failing channel degrades the alert and is
	// reported as alarm.ErrAlertingUnavailable only when neither sound nor
	// vibration could start.
	Start(ctx context.Context, alert *Alert) error
	// Stop ends ringing. Stopping a stopped backend is not an error.
	Stop(ctx context.Context) error
}

// NewNotification builds the notification for a fired record.
func NewNotification(record *alarm.Record) Notification {
	body := record.Label
	if body == "" {
		body = "Alarm at " + record.TimeString()
	}

	return Notification{
		AlarmID:      record.ID,
		Title:        NotificationTitle,
		Body:         body,
		Label:        record.DisplayLabel(),
		TimeString:   record.TimeString(),
		Actions:      []Action{ActionDismiss, ActionSnooze},
		Ongoing:      true,
		HighPriority: true,
	}
}
