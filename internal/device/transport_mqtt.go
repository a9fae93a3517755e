package device

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/dysonlink/internal/infrastructure/mqtt"
)

// MQTTDialer opens appliance sessions over MQTT.
type MQTTDialer struct {
	QoS            byte
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	KeepAlive      time.Duration

	// Logger receives transport-level warnings. Optional.
	Logger Logger
}

// Dial connects to the appliance broker.
func (d MQTTDialer) Dial(ctx context.Context, opts DialOptions) (Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.Host == "" {
		return nil, fmt.Errorf("%w: no broker address", mqtt.ErrConnectionFailed)
	}

	client, err := mqtt.Connect(mqtt.Options{
		Host:           opts.Host,
		Port:           opts.Port,
		ClientID:       opts.ClientID,
		Username:       opts.Username,
		Password:       opts.Password,
		ConnectTimeout: d.ConnectTimeout,
		PublishTimeout: d.PublishTimeout,
		KeepAlive:      d.KeepAlive,
	})
	if err != nil {
		return nil, err
	}

	if d.Logger != nil {
		client.SetLogger(d.Logger)
		logger := d.Logger
		client.SetOnDisconnect(func(err error) {
			logger.Warn("appliance session lost", "client_id", opts.ClientID, "error", err)
		})
	}

	return &mqttTransport{client: client, qos: d.QoS}, nil
}

// mqttTransport adapts mqtt.Client to Transport.
type mqttTransport struct {
	client *mqtt.Client
	qos    byte
}

func (t *mqttTransport) Subscribe(topic string, handler func(payload []byte)) error {
	return t.client.Subscribe(topic, t.qos, func(_ string, payload []byte) error {
		handler(payload)
		return nil
	})
}

func (t *mqttTransport) Publish(topic string, payload []byte) error {
	if err := t.client.Publish(topic, payload, t.qos, false); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

func (t *mqttTransport) IsConnected() bool {
	return t.client.IsConnected()
}

func (t *mqttTransport) Close() error {
	return t.client.Close()
}
