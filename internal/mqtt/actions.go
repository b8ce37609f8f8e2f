package mqtt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oshokin/alarm-clock/internal/alerting"
	"github.com/oshokin/alarm-clock/internal/logger"
)

// errUnknownAction is returned for a payload that is neither dismiss nor snooze.
var errUnknownAction = errors.New("unknown action")

// Controller acknowledges the ringing alarm.
type Controller interface {
	// DismissCurrent stops the ringing alarm, if any.
	DismissCurrent(ctx context.Context) bool
	// SnoozeCurrent stops the ringing alarm and rings again after delay.
	// A zero delay means the configured default.
	SnoozeCurrent(ctx context.Context, delay time.Duration) (time.Time, bool, error)
}

// Command is a parsed action message.
type Command struct {
	// Action is dismiss or snooze.
	Action alerting.Action
	// Delay is the snooze delay, zero for the default.
	Delay time.Duration
}

// ParseCommand parses "dismiss", "snooze" or "snooze:<duration>".
func ParseCommand(payload []byte) (Command, error) {
	text := strings.ToLower(strings.TrimSpace(string(payload)))

	name, argument, hasArgument := strings.Cut(text, ":")

	switch alerting.Action(name) {
	case alerting.ActionDismiss:
		if hasArgument {
			return Command{}, fmt.Errorf("%w: %q", errUnknownAction, text)
		}

		return Command{Action: alerting.ActionDismiss}, nil
	case alerting.ActionSnooze:
		if !hasArgument {
			return Command{Action: alerting.ActionSnooze}, nil
		}

		delay, err := time.ParseDuration(strings.TrimSpace(argument))
		if err != nil || delay <= 0 {
			return Command{}, fmt.Errorf("invalid snooze delay %q: %w", argument, errUnknownAction)
		}

		return Command{Action: alerting.ActionSnooze, Delay: delay}, nil
	default:
		return Command{}, fmt.Errorf("%w: %q", errUnknownAction, text)
	}
}

// ListenActions subscribes to the actions topic and forwards every valid
// command to controller. Invalid payloads are logged and dropped.
func ListenActions(ctx context.Context, broker Broker, prefix string, controller Controller) error {
	ctx = logger.WithName(ctx, "mqtt")
	topic := Topic(prefix, ActionsTopic)

	err := broker.Subscribe(topic, func(_ string, payload []byte) {
		HandleAction(ctx, controller, payload)
	})
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Listening for companion actions", "topic", topic)

	return nil
}

// HandleAction applies one action payload to controller.
func HandleAction(ctx context.Context, controller Controller, payload []byte) {
	command, err := ParseCommand(payload)
	if err != nil {
		logger.WarnKV(ctx, "Ignoring companion action", "error", err)

		return
	}

	switch command.Action {
	case alerting.ActionDismiss:
		if !controller.DismissCurrent(ctx) {
			logger.Info(ctx, "Companion dismiss with no ringing alarm")
		}
	case alerting.ActionSnooze:
		fireAt, ok, err := controller.SnoozeCurrent(ctx, command.Delay)

		switch {
		case err != nil:
			logger.ErrorKV(ctx, "Companion snooze failed", "error", err)
		case !ok:
			logger.Info(ctx, "Companion snooze with no ringing alarm")
		case fireAt.IsZero():
			logger.Info(ctx, "Snoozed alarm is disabled or deleted, not rescheduled")
		default:
			logger.InfoKV(ctx, "Snoozed from companion", "fire_at", fireAt.Format(time.RFC3339))
		}
	}
}
