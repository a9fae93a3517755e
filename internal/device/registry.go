package device

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/nerrad567/dysonlink/internal/cloud"
)

// Registry owns the managed devices for the life of the process.
//
// Devices are keyed by serial and listed in the order they were added
// (manifest order). Updates from every device fan out to the registered
// listeners.
//
// All public methods are thread-safe.
type Registry struct {
	devices   map[string]*Device
	order     []string
	devicesMu sync.RWMutex

	listeners   []func(Update)
	listenersMu sync.RWMutex

	logger Logger
}

// NewRegistry creates an empty device registry.
func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[string]*Device),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Subscribe registers fn to receive every device Update.
// Listeners run on the device's receive goroutine.
func (r *Registry) Subscribe(fn func(Update)) {
	r.listenersMu.Lock()
	r.listeners = append(r.listeners, fn)
	r.listenersMu.Unlock()
}

// broadcast delivers u to every listener.
func (r *Registry) broadcast(u Update) {
	r.listenersMu.RLock()
	listeners := slices.Clone(r.listeners)
	r.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(u)
	}
}

// Add starts managing d. Its update callback is taken over by the registry.
func (r *Registry) Add(d *Device) error {
	r.devicesMu.Lock()
	defer r.devicesMu.Unlock()

	serial := d.Serial()
	if _, exists := r.devices[serial]; exists {
		return fmt.Errorf("%w: %s", ErrDeviceExists, serial)
	}

	d.SetOnUpdate(r.broadcast)
	r.devices[serial] = d
	r.order = append(r.order, serial)

	r.logger.Info("device added", "serial", serial, "name", d.Name(), "id", d.ID())
	return nil
}

// Load builds a Device for each manifest entry and adds it.
//
// When serials is non-empty only those serials are kept. Entries whose
// credentials cannot be decrypted are skipped and reported in the
// returned error; the remaining devices are still added.
//
// Returns:
//   - int: number of devices added
//   - error: joined per-entry failures, nil if every kept entry loaded
func (r *Registry) Load(entries []cloud.ManifestEntry, resolver NetworkResolver, dialer Dialer, serials []string) (int, error) {
	var errs []error
	added := 0

	for _, entry := range entries {
		d, err := New(entry, resolver, dialer)
		if err != nil {
			r.logger.Error("skipping manifest entry", "name", entry.Name, "error", err)
			errs = append(errs, err)
			continue
		}
		if len(serials) > 0 && !slices.Contains(serials, d.Serial()) {
			r.logger.Debug("manifest entry not selected", "serial", d.Serial())
			continue
		}

		d.SetLogger(r.logger)
		if err := r.Add(d); err != nil {
			errs = append(errs, err)
			continue
		}
		added++
	}

	return added, errors.Join(errs...)
}

// GetDevice returns the device with the given serial.
func (r *Registry) GetDevice(serial string) (*Device, error) {
	r.devicesMu.RLock()
	defer r.devicesMu.RUnlock()

	d, ok := r.devices[serial]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, serial)
	}
	return d, nil
}

// ListDevices returns every managed device in insertion order.
func (r *Registry) ListDevices() []*Device {
	r.devicesMu.RLock()
	defer r.devicesMu.RUnlock()

	out := make([]*Device, 0, len(r.order))
	for _, serial := range r.order {
		out = append(out, r.devices[serial])
	}
	return out
}

// Serials returns managed serials in insertion order.
func (r *Registry) Serials() []string {
	r.devicesMu.RLock()
	defer r.devicesMu.RUnlock()
	return slices.Clone(r.order)
}

// GetDeviceCount returns the number of managed devices.
func (r *Registry) GetDeviceCount() int {
	r.devicesMu.RLock()
	defer r.devicesMu.RUnlock()
	return len(r.devices)
}

// ConnectAll connects every device that is not already connected.
// A failing device does not stop the others.
func (r *Registry) ConnectAll(ctx context.Context) error {
	var errs []error
	for _, d := range r.ListDevices() {
		if err := d.Connect(ctx); err != nil {
			r.logger.Error("device connect failed", "serial", d.Serial(), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DisconnectAll disconnects every device.
func (r *Registry) DisconnectAll() error {
	var errs []error
	for _, d := range r.ListDevices() {
		if err := d.Disconnect(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.Serial(), err))
		}
	}
	return errors.Join(errs...)
}

// Stats returns registry statistics for monitoring.
type Stats struct {
	TotalDevices     int `json:"devices"`
	ConnectedDevices int `json:"connected"`
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	devices := r.ListDevices()
	stats := Stats{TotalDevices: len(devices)}
	for _, d := range devices {
		if d.IsConnected() {
			stats.ConnectedDevices++
		}
	}
	return stats
}
