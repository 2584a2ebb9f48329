package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcacheProvider is a Memcache implementation of the Store interface.
//
// Memcache cannot report the remaining TTL of an item, so every value is
// stored inside a small envelope carrying its absolute expiry. TTL reads the
// envelope instead of asking the server.
type MemcacheProvider struct {
	client *memcache.Client
	now    func() time.Time
}

// MemcacheConfig contains Memcache-specific configuration.
type MemcacheConfig struct {
	// Servers is a list of memcache server addresses (e.g., "localhost:11211")
	Servers []string

	// MaxIdleConns is the maximum number of idle connections (default: 2)
	MaxIdleConns int

	// Timeout for connection operations (default: 1 second)
	Timeout time.Duration
}

// NewMemcacheProvider creates a new Memcache store provider.
func NewMemcacheProvider(config *MemcacheConfig) (*MemcacheProvider, error) {
	if config == nil {
		config = &MemcacheConfig{
			Servers: []string{"localhost:11211"},
		}
	}

	if len(config.Servers) == 0 {
		config.Servers = []string{"localhost:11211"}
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 2
	}
	if config.Timeout == 0 {
		config.Timeout = 1 * time.Second
	}

	client := memcache.New(config.Servers...)
	client.MaxIdleConns = config.MaxIdleConns
	client.Timeout = config.Timeout

	if err := client.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to Memcache: %w", err)
	}

	return &MemcacheProvider{
		client: client,
		now:    time.Now,
	}, nil
}

// envelope layout: 8-byte big-endian unix-second expiry (0 = no expiry)
// followed by the raw value.
const envelopeHeader = 8

func wrapValue(value []byte, expiry time.Time) []byte {
	buf := make([]byte, envelopeHeader+len(value))
	if !expiry.IsZero() {
		binary.BigEndian.PutUint64(buf, uint64(expiry.Unix()))
	}
	copy(buf[envelopeHeader:], value)
	return buf
}

func unwrapValue(data []byte) ([]byte, time.Time, error) {
	if len(data) < envelopeHeader {
		return nil, time.Time{}, fmt.Errorf("memcache envelope too short: %d bytes", len(data))
	}
	sec := binary.BigEndian.Uint64(data)
	var expiry time.Time
	if sec != 0 {
		expiry = time.Unix(int64(sec), 0)
	}
	return data[envelopeHeader:], expiry, nil
}

func (m *MemcacheProvider) expirySeconds(ttl time.Duration) int32 {
	if ttl <= 0 {
		return 0
	}
	secs := int64(ttl / time.Second)
	if ttl%time.Second != 0 {
		secs++
	}
	return int32(secs)
}

// Get retrieves a value from the store by key.
func (m *MemcacheProvider) Get(ctx context.Context, key Key) ([]byte, bool) {
	item, err := m.client.Get(key.String())
	if err != nil {
		return nil, false
	}

	value, _, err := unwrapValue(item.Value)
	if err != nil {
		return nil, false
	}
	return value, true
}

// Set stores a value with the specified TTL. ttl=0 means no expiration.
func (m *MemcacheProvider) Set(ctx context.Context, key Key, value []byte, ttl time.Duration) error {
	var expiry time.Time
	if ttl > 0 {
		expiry = m.now().Add(ttl)
	}

	return m.client.Set(&memcache.Item{
		Key:        key.String(),
		Value:      wrapValue(value, expiry),
		Expiration: m.expirySeconds(ttl),
	})
}

// CompareAndSwap stores value only if the current value equals expected,
// using memcache's native CAS ids. A nil expected maps to Add.
func (m *MemcacheProvider) CompareAndSwap(ctx context.Context, key Key, expected, value []byte, ttl time.Duration) (bool, error) {
	var expiry time.Time
	if ttl > 0 {
		expiry = m.now().Add(ttl)
	}

	if expected == nil {
		err := m.client.Add(&memcache.Item{
			Key:        key.String(),
			Value:      wrapValue(value, expiry),
			Expiration: m.expirySeconds(ttl),
		})
		if errors.Is(err, memcache.ErrNotStored) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("memcache add failed: %w", err)
		}
		return true, nil
	}

	item, err := m.client.Get(key.String())
	if errors.Is(err, memcache.ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("memcache get failed: %w", err)
	}

	current, _, err := unwrapValue(item.Value)
	if err != nil {
		return false, err
	}
	if !bytes.Equal(current, expected) {
		return false, nil
	}

	item.Value = wrapValue(value, expiry)
	item.Expiration = m.expirySeconds(ttl)

	err = m.client.CompareAndSwap(item)
	if errors.Is(err, memcache.ErrCASConflict) || errors.Is(err, memcache.ErrNotStored) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("memcache CAS failed: %w", err)
	}
	return true, nil
}

// Delete removes a key from the store.
func (m *MemcacheProvider) Delete(ctx context.Context, key Key) error {
	err := m.client.Delete(key.String())
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	return err
}

// TTL returns the remaining lifetime of a key from its envelope.
func (m *MemcacheProvider) TTL(ctx context.Context, key Key) (time.Duration, bool) {
	item, err := m.client.Get(key.String())
	if err != nil {
		return 0, false
	}

	_, expiry, err := unwrapValue(item.Value)
	if err != nil {
		return 0, false
	}

	if expiry.IsZero() {
		return 0, true
	}

	remaining := expiry.Sub(m.now())
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// Keys is not supported by memcache.
func (m *MemcacheProvider) Keys(ctx context.Context, kind Kind) ([]Key, error) {
	return nil, ErrUnsupported
}

// Exists checks if a key exists in the store.
func (m *MemcacheProvider) Exists(ctx context.Context, key Key) bool {
	_, err := m.client.Get(key.String())
	return err == nil
}

// Clear removes all items from the store.
func (m *MemcacheProvider) Clear(ctx context.Context) error {
	return m.client.FlushAll()
}

// Close closes the provider and releases any resources.
func (m *MemcacheProvider) Close() error {
	// Memcache client doesn't have a close method
	return nil
}

// Stats returns statistics about the store provider. Memcache does not
// expose a portable keyspace count, so only the provider type is reported.
func (m *MemcacheProvider) Stats(ctx context.Context) (*Stats, error) {
	return &Stats{
		ProviderType: "memcache",
	}, nil
}
