package mqtt

import (
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/oshokin/alarm-clock/internal/config"
)

const (
	// qosAtLeastOnce is used for every publish and subscription.
	qosAtLeastOnce = 1
	// disconnectQuiesce is how long Close waits for in-flight work, in ms.
	disconnectQuiesce = 250
	// connectTimeout bounds the initial connection.
	connectTimeout = 10 * time.Second
)

// errConnectTimeout is returned when the broker does not answer in time.
var errConnectTimeout = errors.New("timed out connecting to mqtt broker")

// MessageHandler handles one received message.
type MessageHandler func(topic string, payload []byte)

// Broker is the subset of a broker connection this package needs.
type Broker interface {
	// Publish sends payload to topic.
	Publish(topic string, retained bool, payload []byte) error
	// Subscribe registers handler for topic.
	Subscribe(topic string, handler MessageHandler) error
}

// Client is a paho connection.
type Client struct {
	// client is the underlying paho client.
	client paho.Client
}

var _ Broker = (*Client)(nil)

// Dial connects to the configured broker.
func Dial(cfg *config.MQTTConfig) (*Client, error) {
	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}

	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(connectTimeout)

	client := paho.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, errConnectTimeout
	}

	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to mqtt broker: %w", err)
	}

	return &Client{client: client}, nil
}

// Publish implements Broker.
func (c *Client) Publish(topic string, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qosAtLeastOnce, retained, payload)
	token.Wait()

	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	return nil
}

// Subscribe implements Broker.
func (c *Client) Subscribe(topic string, handler MessageHandler) error {
	token := c.client.Subscribe(topic, qosAtLeastOnce, func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	token.Wait()

	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}

	return nil
}

// Close disconnects from the broker.
func (c *Client) Close() {
	c.client.Disconnect(disconnectQuiesce)
}

// Topic joins the prefix and a topic name.
func Topic(prefix, name string) string {
	if prefix == "" {
		return name
	}

	return prefix + "/" + name
}
