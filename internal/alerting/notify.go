package alerting

import (
	"context"

	"github.com/oshokin/alarm-clock/internal/logger"
)

// Notifier posts and withdraws the ringing notification.
type Notifier interface {
	// Post shows the notification.
	Post(ctx context.Context, notification *Notification) error
	// Cancel withdraws the notification of the given alarm.
	Cancel(ctx context.Context, alarmID int64) error
}

// LogNotifier writes notifications to the log. It stands in for a desktop
// notification service and always succeeds.
type LogNotifier struct{}

// Post implements Notifier.
func (LogNotifier) Post(ctx context.Context, n *Notification) error {
	logger.WarnKV(ctx, n.Title,
		"alarm_id", n.AlarmID,
		"body", n.Body,
		"time", n.TimeString,
		"actions", n.Actions,
	)

	return nil
}

// Cancel implements Notifier.
func (LogNotifier) Cancel(ctx context.Context, alarmID int64) error {
	logger.InfoKV(ctx, "Alarm notification withdrawn", "alarm_id", alarmID)

	return nil
}
