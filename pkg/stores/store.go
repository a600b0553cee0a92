package stores

import (
	"context"
	"sync"
)

// Store is per-device auxiliary key/value state. Devices are identified
// by their stable ID (the id-filename form, e.g. "b8:0" or "n2"), so
// entries survive the device object that wrote them.
//
// The rule engine assumes at most one in-flight evaluation per device
// identity; implementations only need to be safe for concurrent access
// across distinct devices.
type Store interface {
	// Get returns the value stored for the device and key.
	Get(ctx context.Context, deviceID, key string) (string, bool, error)

	// Set stores a value for the device and key, replacing any previous
	// value.
	Set(ctx context.Context, deviceID, key, value string) error

	// Remove drops all state for a device. Called when the device goes
	// away.
	Remove(ctx context.Context, deviceID string) error

	Close() error
}

// MemoryStore is a Store backed by a mutex-guarded map. State is lost on
// restart; the daemon uses it when no database path is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	devices map[string]map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{devices: make(map[string]map[string]string)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, deviceID, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.devices[deviceID][key]
	return v, ok, nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, deviceID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dev, ok := s.devices[deviceID]
	if !ok {
		dev = make(map[string]string)
		s.devices[deviceID] = dev
	}
	dev[key] = value
	return nil
}

// Remove implements Store.
func (s *MemoryStore) Remove(_ context.Context, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.devices, deviceID)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
