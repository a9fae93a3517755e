package device

import (
	"sync"
	"time"
)

// Store is the mutex-guarded state and sensor snapshot of one device.
//
// Every mutation replaces or merges a fully parsed value inside a single
// critical section, so readers never observe a half-applied message.
//
// All methods are thread-safe.
type Store struct {
	mu     sync.RWMutex
	state  State
	sensor Sensor
	now    func() time.Time
}

// NewStore creates an empty store. All fields start unknown.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Sensor returns a copy of the current sensor readings.
func (s *Store) Sensor() Sensor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sensor
}

// Snapshot returns state and sensor read under one lock.
func (s *Store) Snapshot() (State, Sensor) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.sensor
}

// ReplaceState replaces every CURRENT-STATE field with next.
// Position is owned by LOCATION and carried over.
func (s *Store) ReplaceState(next State) (State, Sensor) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next.Position = s.state.Position
	next.UpdatedAt = s.now().UTC()
	s.state = next
	return s.state, s.sensor
}

// SetPosition updates only the position field.
func (s *Store) SetPosition(position int) (State, Sensor) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Position = position
	return s.state, s.sensor
}

// MergeSensor overwrites the readings present in next and keeps the rest.
func (s *Store) MergeSensor(next sensorReading) (State, Sensor) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merge := func(dst *int, v *int) {
		if v != nil {
			*dst = *v
		}
	}
	merge(&s.sensor.Temperature, next.Temperature)
	merge(&s.sensor.Humidity, next.Humidity)
	merge(&s.sensor.PM25, next.PM25)
	merge(&s.sensor.PM10, next.PM10)
	merge(&s.sensor.VOC, next.VOC)
	merge(&s.sensor.NOx, next.NOx)
	s.sensor.UpdatedAt = s.now().UTC()
	return s.state, s.sensor
}
