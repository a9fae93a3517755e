package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Logger is the subset of logging.Logger the client reports through.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler receives one inbound message. It runs on paho's delivery
// goroutine and should return quickly. A returned error is logged only.
type MessageHandler func(topic string, payload []byte) error

// Client is a session with one appliance's embedded broker.
//
// A lost connection is reported once through SetOnDisconnect and never
// re-established here. All methods are safe for concurrent use.
type Client struct {
	paho pahomqtt.Client
	opts Options
	up   atomic.Bool

	mu     sync.RWMutex
	topics map[string]byte // topic -> granted QoS
	onLost func(error)
	logger Logger
}

// Connect dials the broker described by opts and waits for the CONNACK.
//
// Returns:
//   - *Client: Connected session
//   - error: ErrConnectionFailed wrapping the cause or the timeout
func Connect(opts Options) (*Client, error) {
	opts = opts.withDefaults()

	c := &Client{opts: opts, topics: make(map[string]byte)}

	pahoOpts := buildClientOptions(opts)
	pahoOpts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})
	c.paho = pahomqtt.NewClient(pahoOpts)

	if err := await(c.paho.Connect(), opts.ConnectTimeout, ErrConnectionFailed); err != nil {
		c.paho.Disconnect(0)
		return nil, err
	}
	c.up.Store(true)
	return c, nil
}

// await waits for token and wraps a timeout or failure in sentinel.
func await(token pahomqtt.Token, timeout time.Duration, sentinel error) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: no response within %v", sentinel, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return nil
}

// handleDisconnect runs when paho reports the connection lost.
func (c *Client) handleDisconnect(err error) {
	c.up.Store(false)

	c.mu.RLock()
	logger, onLost := c.logger, c.onLost
	c.mu.RUnlock()

	if logger != nil {
		logger.Warn("MQTT connection lost", "broker", c.opts.brokerURL(), "error", err)
	}
	if onLost != nil {
		onLost(err)
	}
}

// Close disconnects after a short quiesce and forgets all subscriptions.
// Closing a client that never connected is not an error.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}
	c.up.Store(false)
	c.paho.Disconnect(disconnectQuiesceMillis)

	c.mu.Lock()
	clear(c.topics)
	c.mu.Unlock()
	return nil
}

// HealthCheck reports ErrNotConnected once the session is gone.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether the session is open.
func (c *Client) IsConnected() bool {
	return c.up.Load() && c.paho != nil && c.paho.IsConnected()
}

// SetOnDisconnect installs the callback for an unexpected connection loss.
// Close does not trigger it.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.mu.Lock()
	c.onLost = fn
	c.mu.Unlock()
}

// SetLogger sets where handler errors and panics are reported. Without
// one they are discarded.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

// deliver runs handler for one message, containing any panic.
func (c *Client) deliver(handler MessageHandler, topic string, payload []byte) {
	c.mu.RLock()
	logger := c.logger
	c.mu.RUnlock()

	defer func() {
		if r := recover(); r != nil && logger != nil {
			logger.Error("MQTT handler panic recovered", "topic", topic, "panic", r)
		}
	}()

	if err := handler(topic, payload); err != nil && logger != nil {
		logger.Warn("MQTT handler returned error", "topic", topic, "error", err)
	}
}
