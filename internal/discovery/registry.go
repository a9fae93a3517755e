package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Registry is the set of discovered services keyed by device serial.
//
// It is populated asynchronously by a Browser and queried on demand by a
// Resolver. The caller owns it; there is no process-wide instance.
// Concurrent writes for the same serial resolve as last write wins.
//
// All methods are thread-safe.
type Registry struct {
	mu      sync.RWMutex
	records map[string]ServiceRecord

	// changed is closed and replaced on every Put so waiters can re-check.
	changed chan struct{}

	now func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		records: make(map[string]ServiceRecord),
		changed: make(chan struct{}),
		now:     time.Now,
	}
}

// Put stores rec under the serial derived from its name.
func (r *Registry) Put(rec ServiceRecord) error {
	_, serial, err := SplitServiceName(rec.Name)
	if err != nil {
		return err
	}

	r.mu.Lock()
	rec.SeenAt = r.now().UTC()
	rec.IPv4 = append([]string(nil), rec.IPv4...)
	rec.IPv6 = append([]string(nil), rec.IPv6...)
	r.records[serial] = rec
	close(r.changed)
	r.changed = make(chan struct{})
	r.mu.Unlock()

	return nil
}

// Remove forgets the record for serial, if any.
func (r *Registry) Remove(serial string) {
	r.mu.Lock()
	delete(r.records, serial)
	r.mu.Unlock()
}

// Lookup returns the record for serial.
func (r *Registry) Lookup(serial string) (ServiceRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[serial]
	return rec, ok
}

// Snapshot returns a copy of all records keyed by serial.
func (r *Registry) Snapshot() map[string]ServiceRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]ServiceRecord, len(r.records))
	for serial, rec := range r.records {
		out[serial] = rec
	}
	return out
}

// Len returns the number of known services.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// WaitFor blocks until every serial has a record or ctx is done.
//
// Returns:
//   - []string: serials still missing (empty when all were found)
//   - error: ctx.Err() wrapped, if ctx ended before all serials appeared
func (r *Registry) WaitFor(ctx context.Context, serials []string) ([]string, error) {
	for {
		r.mu.RLock()
		missing := r.missingLocked(serials)
		changed := r.changed
		r.mu.RUnlock()

		if len(missing) == 0 {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return missing, fmt.Errorf("waiting for discovery: %w", ctx.Err())
		case <-changed:
		}
	}
}

// missingLocked returns serials without a record. Caller must hold r.mu.
func (r *Registry) missingLocked(serials []string) []string {
	var missing []string
	for _, s := range serials {
		if _, ok := r.records[s]; !ok {
			missing = append(missing, s)
		}
	}
	return missing
}
