package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnsupported is returned by providers for operations the backing store
// cannot perform (for example key enumeration on memcache).
var ErrUnsupported = errors.New("operation not supported by provider")

// Store defines the interface that all cache store providers must implement.
//
// A ttl of 0 always means "no expiration"; providers must not substitute a
// default. Absence of a key is a normal outcome reported through the bool
// return, never an error.
type Store interface {
	// Get retrieves a value by key.
	// Returns nil, false if the key doesn't exist or is expired.
	Get(ctx context.Context, key Key) ([]byte, bool)

	// Set stores a value with the specified TTL. ttl=0 means no expiration.
	Set(ctx context.Context, key Key, value []byte, ttl time.Duration) error

	// CompareAndSwap stores value only if the current value equals expected.
	// A nil expected means "store only if the key is absent". Returns false
	// without error when the comparison fails.
	CompareAndSwap(ctx context.Context, key Key, expected, value []byte, ttl time.Duration) (bool, error)

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key Key) error

	// TTL returns the remaining lifetime of a key, clamped to >= 0.
	// Returns 0, false if the key is absent. Keys stored without expiration
	// report 0, true.
	TTL(ctx context.Context, key Key) (time.Duration, bool)

	// Keys enumerates the keys of one keyspace. Providers without
	// enumeration support return ErrUnsupported.
	Keys(ctx context.Context, kind Kind) ([]Key, error)

	// Exists checks if a key exists and is not expired.
	Exists(ctx context.Context, key Key) bool

	// Clear removes all items from the store.
	Clear(ctx context.Context) error

	// Close closes the provider and releases any resources.
	Close() error

	// Stats returns statistics about the store provider.
	Stats(ctx context.Context) (*Stats, error)
}

// Stats contains store statistics.
type Stats struct {
	Hits          int64          `json:"hits"`
	Misses        int64          `json:"misses"`
	Keys          int64          `json:"keys"`
	ProviderType  string         `json:"provider_type"`
	ProviderStats map[string]any `json:"provider_stats,omitempty"`
}

// Options contains configuration options for store providers.
type Options struct {
	// MaxSize is the maximum number of items (for the in-memory provider).
	MaxSize int
}
