package alerting

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/oshokin/alarm-clock/internal/domain/alarm"
	"github.com/oshokin/alarm-clock/internal/logger"
)

// Composite is the Backend combining sound, vibration and notifiers.
type Composite struct {
	// sound plays the fallback chain, nil for a silent host.
	sound *SoundChannel
	// vibrator repeats the vibration pattern, nil when unsupported.
	vibrator Vibrator
	// notifiers all receive the notification.
	notifiers []Notifier
	// mu serializes Start and Stop.
	mu sync.Mutex
	// active is true between Start and Stop.
	active bool
	// alarmID is the ringing alarm while active.
	alarmID int64
}

var _ Backend = (*Composite)(nil)

// NewComposite creates a backend over the given channels.
func NewComposite(sound *SoundChannel, vibrator Vibrator, notifiers ...Notifier) *Composite {
	return &Composite{
		sound:     sound,
		vibrator:  vibrator,
		notifiers: notifiers,
	}
}

// Start implements Backend. Every channel is started even when an earlier
// one failed. Starting an active backend is ignored.
func (c *Composite) Start(ctx context.Context, alert *Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active {
		logger.WarnKV(ctx, "Alert already active, ignoring start",
			"active_alarm_id", c.alarmID,
			"alarm_id", alert.AlarmID,
		)

		return nil
	}

	c.active = true
	c.alarmID = alert.AlarmID

	soundErr := errNoSound
	if c.sound != nil {
		_, soundErr = c.sound.Play(ctx, alert.Sounds, alert.Volume)
	}

	if soundErr != nil {
		logger.WarnKV(ctx, "Alarm sound unavailable, ringing silently", "error", soundErr)
	}

	vibrationErr := ErrVibrationUnsupported
	if c.vibrator != nil {
		vibrationErr = c.vibrator.Vibrate(ctx, alert.Vibration)
	}

	if vibrationErr != nil {
		logger.WarnKV(ctx, "Vibration unavailable", "error", vibrationErr)
	}

	for _, notifier := range c.notifiers {
		if err := notifier.Post(ctx, &alert.Notification); err != nil {
			logger.WarnKV(ctx, "Failed to post alarm notification", "error", err)
		}
	}

	if soundErr != nil && vibrationErr != nil {
		return fmt.Errorf("%w: %w", alarm.ErrAlertingUnavailable, errors.Join(soundErr, vibrationErr))
	}

	return nil
}

// Stop implements Backend. Notifier failures are returned after every
// channel has been stopped.
func (c *Composite) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return nil
	}

	c.active = false

	if c.sound != nil {
		c.sound.Stop()
	}

	if c.vibrator != nil {
		c.vibrator.Stop()
	}

	var errs []error

	for _, notifier := range c.notifiers {
		if err := notifier.Cancel(ctx, c.alarmID); err != nil {
			errs = append(errs, err)
		}
	}

	logger.InfoKV(ctx, "Alert stopped", "alarm_id", c.alarmID)

	return errors.Join(errs...)
}

// Active reports whether the backend is ringing.
func (c *Composite) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.active
}
