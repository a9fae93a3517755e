package device

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/dysonlink/internal/cloud"
	"github.com/nerrad567/dysonlink/internal/credentials"
	"github.com/nerrad567/dysonlink/internal/discovery"
	"github.com/nerrad567/dysonlink/internal/infrastructure/mqtt"
)

// idPrefix starts every generated device ID.
const idPrefix = "dyson_"

// Logger defines the logging interface used by this package.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NetworkResolver resolves a serial to a network location.
// discovery.Resolver satisfies it.
type NetworkResolver interface {
	Resolve(ctx context.Context, serial string) (discovery.Network, error)
}

// Device is one appliance: its manifest entry, decrypted credentials,
// lazily resolved network location, cached snapshot and, while connected,
// a transport session.
//
// All methods are thread-safe.
type Device struct {
	id          string
	entry       cloud.ManifestEntry
	credentials credentials.Credentials

	resolver NetworkResolver
	dialer   Dialer
	now      func() time.Time

	logMu  sync.RWMutex
	logger Logger

	// Network memoisation. Only a successful resolution is kept.
	netMu     sync.Mutex
	network   discovery.Network
	networked bool

	store  *Store
	router *router

	// lifecycleMu serialises Connect and Disconnect.
	lifecycleMu sync.Mutex

	sessMu sync.RWMutex
	sess   *session

	updateMu sync.RWMutex
	onUpdate func(Update)
}

// New creates a Device from a manifest entry.
//
// The local credentials are decrypted once here; a failure is returned as
// ErrCredentialDecryption and no Device is created.
func New(entry cloud.ManifestEntry, resolver NetworkResolver, dialer Dialer) (*Device, error) {
	creds, err := credentials.Decrypt(entry.LocalCredentials)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrCredentialDecryption, entry.Name, err)
	}

	d := &Device{
		id:          newID(),
		entry:       entry,
		credentials: creds,
		resolver:    resolver,
		dialer:      dialer,
		logger:      noopLogger{},
		now:         time.Now,
		store:       NewStore(),
	}
	d.router = &router{store: d.store, refresh: d.Refresh}
	return d, nil
}

// newID returns "dyson_" followed by 16 lowercase hex characters.
func newID() string {
	u := uuid.New()
	return idPrefix + hex.EncodeToString(u[:8])
}

// SetLogger sets the logger for the device. It may be called while the
// device is connected.
func (d *Device) SetLogger(logger Logger) {
	d.logMu.Lock()
	d.logger = logger
	d.logMu.Unlock()
}

func (d *Device) log() Logger {
	d.logMu.RLock()
	defer d.logMu.RUnlock()
	return d.logger
}

// SetOnUpdate registers a callback invoked after every message that
// changed the snapshot. It runs on the receive goroutine with no device
// lock held and must not block for long.
func (d *Device) SetOnUpdate(fn func(Update)) {
	d.updateMu.Lock()
	d.onUpdate = fn
	d.updateMu.Unlock()
}

// ID returns the process-local identifier, also used as the MQTT client ID.
func (d *Device) ID() string { return d.id }

// Serial returns the serial from the decrypted credentials.
func (d *Device) Serial() string { return d.credentials.Serial }

// Name returns the display name from the manifest.
func (d *Device) Name() string { return d.entry.Name }

// ManifestEntry returns the manifest entry the device was built from.
func (d *Device) ManifestEntry() cloud.ManifestEntry { return d.entry }

// Credentials returns the decrypted local credentials.
func (d *Device) Credentials() credentials.Credentials { return d.credentials }

// State returns a snapshot of the operational state.
func (d *Device) State() State { return d.store.State() }

// Sensor returns a snapshot of the sensor readings.
func (d *Device) Sensor() Sensor { return d.store.Sensor() }

// Snapshot returns state and sensor taken under one lock.
func (d *Device) Snapshot() (State, Sensor) { return d.store.Snapshot() }

// Network returns the device's network location, resolving it on first use.
//
// The first successful resolution is cached for the life of the Device
// and never re-queried. A failed resolution returns a zero Network and the
// error, and is retried on the next call.
func (d *Device) Network(ctx context.Context) (discovery.Network, error) {
	d.netMu.Lock()
	defer d.netMu.Unlock()

	if d.networked {
		return d.network, nil
	}

	n, err := d.resolver.Resolve(ctx, d.Serial())
	if err != nil {
		return discovery.Network{}, err
	}
	if n.IsZero() {
		return discovery.Network{}, discovery.ErrServiceNotFound
	}

	d.network = n
	d.networked = true
	return n, nil
}

// CachedNetwork returns the memoised network without resolving.
func (d *Device) CachedNetwork() (discovery.Network, bool) {
	d.netMu.Lock()
	defer d.netMu.Unlock()
	return d.network, d.networked
}

// IsConnected reports whether a session is open and the transport is up.
func (d *Device) IsConnected() bool {
	d.sessMu.RLock()
	defer d.sessMu.RUnlock()
	return d.sess != nil && d.sess.transport.IsConnected()
}

// Connect opens the transport session, starts the receive goroutine,
// subscribes to the status topic and requests the current state.
//
// An unresolvable network is logged and the dial proceeds with an empty
// address, so the transport reports the failure. Connecting an already
// connected device is a no-op.
//
// Returns:
//   - error: ErrConnection wrapping the transport error
func (d *Device) Connect(ctx context.Context) error {
	d.lifecycleMu.Lock()
	defer d.lifecycleMu.Unlock()

	d.sessMu.RLock()
	open := d.sess != nil
	d.sessMu.RUnlock()
	if open {
		return nil
	}

	network, err := d.Network(ctx)
	if err != nil {
		d.log().Warn("device network not resolved", "serial", d.Serial(), "error", err)
	}

	transport, err := d.dialer.Dial(ctx, DialOptions{
		Host:     network.Address,
		Port:     network.Port,
		ClientID: d.id,
		Username: d.credentials.Serial,
		Password: d.credentials.PasswordHash,
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrConnection, d.Serial(), err)
	}

	s := &session{transport: transport, inbox: newInbox()}
	s.start(d.handleMessage)

	d.sessMu.Lock()
	d.sess = s
	d.sessMu.Unlock()

	if err := transport.Subscribe(mqtt.StatusTopic(network.TopicPrefix, d.Serial()), s.inbox.push); err != nil {
		d.teardown()
		return fmt.Errorf("%w: subscribing: %w", ErrConnection, err)
	}

	if err := d.Refresh(); err != nil {
		d.teardown()
		return fmt.Errorf("%w: requesting current state: %w", ErrConnection, err)
	}

	d.log().Info("device connected",
		"serial", d.Serial(),
		"name", d.Name(),
		"address", network.HostPort(),
	)
	return nil
}

// envelope is the outbound wire message.
type envelope struct {
	Msg  MessageKind    `json:"msg"`
	Time string         `json:"time"`
	Data map[string]any `json:"data,omitempty"`
}

// Publish sends a command envelope. data is omitted from the wire when nil.
//
// Returns:
//   - error: ErrNotConnected without an open session, otherwise the
//     transport error
func (d *Device) Publish(msg MessageKind, data map[string]any) error {
	d.sessMu.RLock()
	defer d.sessMu.RUnlock()

	if d.sess == nil {
		return ErrNotConnected
	}

	payload, err := json.Marshal(envelope{
		Msg:  msg,
		Time: d.now().UTC().Format(time.RFC3339),
		Data: data,
	})
	if err != nil {
		return fmt.Errorf("encoding %s: %w", msg, err)
	}

	network, _ := d.CachedNetwork()
	return d.sess.transport.Publish(mqtt.CommandTopic(network.TopicPrefix, d.Serial()), payload)
}

// Refresh asks the device to publish its current state.
func (d *Device) Refresh() error {
	return d.Publish(MsgRequestCurrentState, nil)
}

// Disconnect stops the receive goroutine and closes the transport.
// Disconnecting an unconnected device succeeds.
func (d *Device) Disconnect() error {
	d.lifecycleMu.Lock()
	defer d.lifecycleMu.Unlock()

	if err := d.teardown(); err != nil {
		return fmt.Errorf("closing session: %w", err)
	}
	return nil
}

// teardown clears the session handle, then stops it. The handle is cleared
// first so a receive goroutine blocked in Publish cannot deadlock the join.
func (d *Device) teardown() error {
	d.sessMu.Lock()
	s := d.sess
	d.sess = nil
	d.sessMu.Unlock()

	if s == nil {
		return nil
	}
	err := s.stop()
	d.log().Info("device disconnected", "serial", d.Serial())
	return err
}

// handleMessage runs on the receive goroutine for every inbound payload.
// Malformed messages are logged and dropped.
func (d *Device) handleMessage(payload []byte) {
	res, err := d.router.route(payload)
	if err != nil {
		if errors.Is(err, ErrMalformedMessage) {
			d.log().Warn("dropping malformed message", "serial", d.Serial(), "kind", res.kind, "error", err)
		} else {
			d.log().Warn("handling message failed", "serial", d.Serial(), "kind", res.kind, "error", err)
		}
		return
	}
	if len(res.skipped) > 0 {
		d.log().Debug("sensor fields not numeric", "serial", d.Serial(), "keys", res.skipped)
	}
	if !res.changed {
		d.log().Debug("message produced no state change", "serial", d.Serial(), "kind", res.kind)
		return
	}

	d.updateMu.RLock()
	fn := d.onUpdate
	d.updateMu.RUnlock()
	if fn == nil {
		return
	}

	fn(Update{
		DeviceID: d.id,
		Serial:   d.Serial(),
		Kind:     res.kind,
		State:    res.state,
		Sensor:   res.sensor,
		At:       d.now().UTC(),
	})
}
