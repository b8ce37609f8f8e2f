package mqtt

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/alarm-clock/internal/alerting"
	"github.com/oshokin/alarm-clock/internal/codec"
)

const (
	// RingingTopic carries the retained ringing state.
	RingingTopic = "ringing"
	// ActionsTopic receives acknowledgements from companion devices.
	ActionsTopic = "actions"

	// fieldRinging tells whether the alarm still rings.
	fieldRinging = "ringing"
	// fieldTitle is the notification title.
	fieldTitle = "title"
	// fieldBody is the notification body.
	fieldBody = "body"
	// fieldActions lists the offered actions.
	fieldActions = "actions"
)

// Notifier publishes the ringing notification. It implements alerting.Notifier.
type Notifier struct {
	// broker sends the messages.
	broker Broker
	// topic is the full ringing topic.
	topic string
}

var _ alerting.Notifier = (*Notifier)(nil)

// NewNotifier creates a notifier publishing under prefix.
func NewNotifier(broker Broker, prefix string) *Notifier {
	return &Notifier{
		broker: broker,
		topic:  Topic(prefix, RingingTopic),
	}
}

// Post implements alerting.Notifier.
func (n *Notifier) Post(_ context.Context, notification *alerting.Notification) error {
	actions := make([]any, 0, len(notification.Actions))
	for _, action := range notification.Actions {
		actions = append(actions, string(action))
	}

	return n.publish(map[string]any{
		codec.FieldAlarmID:    float64(notification.AlarmID),
		fieldRinging:          true,
		fieldTitle:            notification.Title,
		fieldBody:             notification.Body,
		codec.FieldLabel:      notification.Label,
		codec.FieldTimeString: notification.TimeString,
		fieldActions:          actions,
	})
}

// Cancel implements alerting.Notifier.
func (n *Notifier) Cancel(_ context.Context, alarmID int64) error {
	return n.publish(map[string]any{
		codec.FieldAlarmID: float64(alarmID),
		fieldRinging:       false,
	})
}

func (n *Notifier) publish(fields map[string]any) error {
	message, err := structpb.NewStruct(fields)
	if err != nil {
		return fmt.Errorf("build ringing message: %w", err)
	}

	payload, err := protojson.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal ringing message: %w", err)
	}

	return n.broker.Publish(n.topic, true, payload)
}
