// Package metadata maintains per-key auxiliary records: access counters,
// creation/update timestamps, the originally requested TTL, and free-form
// custom fields. Records never expire on their own and must be deleted
// alongside their owning key.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bitechdev/CacheSpec/pkg/store"
)

// ErrNotFound is returned when no metadata record exists for a key.
var ErrNotFound = errors.New("metadata record not found")

const casRetries = 16

// Record is the metadata stored per cache key.
type Record struct {
	Key         string         `json:"key"`
	AccessCount int64          `json:"access_count"`
	Created     time.Time      `json:"created"`
	Updated     time.Time      `json:"updated"`
	OriginalTTL time.Duration  `json:"original_ttl"`
	Custom      map[string]any `json:"custom,omitempty"`
}

// Store reads and writes metadata records.
type Store struct {
	s   store.Store
	now func() time.Time
}

// NewStore creates a metadata store on top of the given backing store.
func NewStore(s store.Store) *Store {
	return &Store{s: s, now: time.Now}
}

// SetClock replaces the store's clock. Intended for tests.
func (m *Store) SetClock(now func() time.Time) {
	m.now = now
}

// Get returns the metadata record for a key.
func (m *Store) Get(ctx context.Context, key string) (*Record, error) {
	data, ok := m.s.Get(ctx, store.MetadataKey(key))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("corrupt metadata record for %s: %w", key, err)
	}
	return &rec, nil
}

// Touch records a write to key. The first touch creates the record; later
// touches update the timestamp and the original TTL used for decay
// forecasts. The access count is preserved.
func (m *Store) Touch(ctx context.Context, key string, ttl time.Duration) error {
	return m.update(ctx, key, func(rec *Record) {
		rec.Updated = m.now()
		rec.OriginalTTL = ttl
	})
}

// IncrementAccess bumps the access counter for key.
func (m *Store) IncrementAccess(ctx context.Context, key string) error {
	return m.update(ctx, key, func(rec *Record) {
		rec.AccessCount++
	})
}

// SetCustom stores a free-form metadata field for key.
func (m *Store) SetCustom(ctx context.Context, key, field string, value any) error {
	return m.update(ctx, key, func(rec *Record) {
		if rec.Custom == nil {
			rec.Custom = make(map[string]any)
		}
		rec.Custom[field] = value
	})
}

// GetCustom returns a free-form metadata field for key.
func (m *Store) GetCustom(ctx context.Context, key, field string) (any, bool, error) {
	rec, err := m.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	value, ok := rec.Custom[field]
	return value, ok, nil
}

// Delete removes the metadata record for key. Callers delete metadata
// alongside the owning entry so records cannot be orphaned.
func (m *Store) Delete(ctx context.Context, key string) error {
	return m.s.Delete(ctx, store.MetadataKey(key))
}

// update applies fn to the record under a CAS loop, creating the record if
// it does not exist yet.
func (m *Store) update(ctx context.Context, key string, fn func(*Record)) error {
	mkey := store.MetadataKey(key)

	for attempt := 0; attempt < casRetries; attempt++ {
		old, exists := m.s.Get(ctx, mkey)

		var rec Record
		if exists {
			if err := json.Unmarshal(old, &rec); err != nil {
				return fmt.Errorf("corrupt metadata record for %s: %w", key, err)
			}
		} else {
			rec = Record{
				Key:     key,
				Created: m.now(),
				Updated: m.now(),
			}
		}

		fn(&rec)

		data, err := json.Marshal(&rec)
		if err != nil {
			return fmt.Errorf("failed to serialize metadata: %w", err)
		}

		var expected []byte
		if exists {
			expected = old
		}

		// Metadata never expires implicitly.
		ok, err := m.s.CompareAndSwap(ctx, mkey, expected, data, 0)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}

	return fmt.Errorf("updating metadata for %s: %w", key, store.ErrCASConflict)
}
