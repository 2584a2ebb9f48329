package scheduler

import (
	"context"
	"sync"
	"time"
)

// Marker is the durable record of a persistently scheduled key. Markers
// live outside the TTL keyspace so they survive cache-wide clears.
type Marker struct {
	JobID       string        `json:"job_id"`
	Key         string        `json:"key"`
	Interval    time.Duration `json:"interval"`
	ScheduledAt time.Time     `json:"scheduled_at"`
}

// MarkerStore is the non-expiring key/value space backing persistent
// scheduling.
type MarkerStore interface {
	// Put stores or replaces the marker for its key.
	Put(ctx context.Context, marker Marker) error

	// Get returns the marker for a key, or false when none exists.
	Get(ctx context.Context, key string) (Marker, bool, error)

	// List returns all markers.
	List(ctx context.Context) ([]Marker, error)

	// Delete removes the marker for a key. Absent keys are not an error.
	Delete(ctx context.Context, key string) error

	// Close releases resources.
	Close() error
}

// MemoryMarkerStore keeps markers in process memory. Suitable for tests
// and single-process deployments where "durable" means "outlives cache
// clears", not process restarts.
type MemoryMarkerStore struct {
	mu      sync.RWMutex
	markers map[string]Marker
}

// NewMemoryMarkerStore creates an in-memory marker store.
func NewMemoryMarkerStore() *MemoryMarkerStore {
	return &MemoryMarkerStore{markers: make(map[string]Marker)}
}

// Put stores or replaces the marker for its key.
func (m *MemoryMarkerStore) Put(ctx context.Context, marker Marker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markers[marker.Key] = marker
	return nil
}

// Get returns the marker for a key.
func (m *MemoryMarkerStore) Get(ctx context.Context, key string) (Marker, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	marker, ok := m.markers[key]
	return marker, ok, nil
}

// List returns all markers.
func (m *MemoryMarkerStore) List(ctx context.Context) ([]Marker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Marker, 0, len(m.markers))
	for _, marker := range m.markers {
		out = append(out, marker)
	}
	return out, nil
}

// Delete removes the marker for a key.
func (m *MemoryMarkerStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.markers, key)
	return nil
}

// Close releases resources.
func (m *MemoryMarkerStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markers = nil
	return nil
}
