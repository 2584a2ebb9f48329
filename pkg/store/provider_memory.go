package store

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// memoryItem represents a stored item in memory.
type memoryItem struct {
	Value      []byte
	Expiration time.Time
	LastAccess time.Time
}

// isExpired checks if the item has expired.
func (m *memoryItem) isExpired(now time.Time) bool {
	if m.Expiration.IsZero() {
		return false
	}
	return now.After(m.Expiration)
}

// MemoryProvider is an in-memory implementation of the Store interface.
type MemoryProvider struct {
	mu      sync.RWMutex
	items   map[Key]*memoryItem
	options *Options
	hits    atomic.Int64
	misses  atomic.Int64

	// now is swappable so tests can drive a simulated clock.
	now func() time.Time
}

// NewMemoryProvider creates a new in-memory store provider.
func NewMemoryProvider(opts *Options) *MemoryProvider {
	if opts == nil {
		opts = &Options{MaxSize: 10000}
	}

	return &MemoryProvider{
		items:   make(map[Key]*memoryItem),
		options: opts,
		now:     time.Now,
	}
}

// SetClock replaces the provider's clock. Intended for tests that need to
// simulate TTL expiry without sleeping.
func (m *MemoryProvider) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Get retrieves a value from the store by key.
func (m *MemoryProvider) Get(ctx context.Context, key Key) ([]byte, bool) {
	m.mu.RLock()
	item, exists := m.items[key]
	if !exists {
		m.mu.RUnlock()
		m.misses.Add(1)
		return nil, false
	}

	if item.isExpired(m.now()) {
		m.mu.RUnlock()
		m.mu.Lock()
		delete(m.items, key)
		m.mu.Unlock()
		m.misses.Add(1)
		return nil, false
	}

	value := item.Value
	m.mu.RUnlock()

	m.mu.Lock()
	item.LastAccess = m.now()
	m.mu.Unlock()

	m.hits.Add(1)
	return value, true
}

// Set stores a value with the specified TTL. ttl=0 means no expiration.
func (m *MemoryProvider) Set(ctx context.Context, key Key, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setLocked(key, value, ttl)
	return nil
}

func (m *MemoryProvider) setLocked(key Key, value []byte, ttl time.Duration) {
	var expiration time.Time
	if ttl > 0 {
		expiration = m.now().Add(ttl)
	}

	if m.options.MaxSize > 0 && len(m.items) >= m.options.MaxSize {
		if _, exists := m.items[key]; !exists {
			m.evictOne()
		}
	}

	m.items[key] = &memoryItem{
		Value:      value,
		Expiration: expiration,
		LastAccess: m.now(),
	}
}

// CompareAndSwap stores value only if the current value equals expected.
// A nil expected means "store only if the key is absent".
func (m *MemoryProvider) CompareAndSwap(ctx context.Context, key Key, expected, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, exists := m.items[key]
	if exists && item.isExpired(m.now()) {
		delete(m.items, key)
		exists = false
	}

	if expected == nil {
		if exists {
			return false, nil
		}
	} else {
		if !exists || !bytes.Equal(item.Value, expected) {
			return false, nil
		}
	}

	m.setLocked(key, value, ttl)
	return true, nil
}

// Delete removes a key from the store.
func (m *MemoryProvider) Delete(ctx context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.items, key)
	return nil
}

// TTL returns the remaining lifetime of a key, clamped to >= 0.
func (m *MemoryProvider) TTL(ctx context.Context, key Key) (time.Duration, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, exists := m.items[key]
	if !exists || item.isExpired(m.now()) {
		return 0, false
	}

	if item.Expiration.IsZero() {
		return 0, true
	}

	remaining := item.Expiration.Sub(m.now())
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// Keys enumerates the keys of one keyspace, skipping expired items.
func (m *MemoryProvider) Keys(ctx context.Context, kind Kind) ([]Key, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]Key, 0)
	now := m.now()
	for key, item := range m.items {
		if key.Kind == kind && !item.isExpired(now) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Exists checks if a key exists in the store.
func (m *MemoryProvider) Exists(ctx context.Context, key Key) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, exists := m.items[key]
	if !exists {
		return false
	}

	return !item.isExpired(m.now())
}

// Clear removes all items from the store.
func (m *MemoryProvider) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = make(map[Key]*memoryItem)
	m.hits.Store(0)
	m.misses.Store(0)
	return nil
}

// Close closes the provider and releases any resources.
func (m *MemoryProvider) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = nil
	return nil
}

// Stats returns statistics about the store provider.
func (m *MemoryProvider) Stats(ctx context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	validKeys := 0
	now := m.now()
	for _, item := range m.items {
		if !item.isExpired(now) {
			validKeys++
		}
	}

	return &Stats{
		Hits:         m.hits.Load(),
		Misses:       m.misses.Load(),
		Keys:         int64(validKeys),
		ProviderType: "memory",
		ProviderStats: map[string]any{
			"capacity": m.options.MaxSize,
		},
	}, nil
}

// evictOne removes one item from the store using LRU strategy.
// Caller must hold the write lock.
func (m *MemoryProvider) evictOne() {
	var oldestKey Key
	var oldestTime time.Time
	found := false

	now := m.now()
	for key, item := range m.items {
		if item.isExpired(now) {
			delete(m.items, key)
			return
		}

		if !found || item.LastAccess.Before(oldestTime) {
			oldestKey = key
			oldestTime = item.LastAccess
			found = true
		}
	}

	if found {
		delete(m.items, oldestKey)
	}
}

// CleanExpired removes all expired items from the store.
func (m *MemoryProvider) CleanExpired(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	now := m.now()
	for key, item := range m.items {
		if item.isExpired(now) {
			delete(m.items, key)
			count++
		}
	}

	return count
}
