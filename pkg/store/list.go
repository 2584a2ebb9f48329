package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrCASConflict is returned when a CAS-retried mutation keeps losing the
// race against concurrent writers.
var ErrCASConflict = errors.New("compare-and-swap retry budget exhausted")

// casRetries bounds the read-modify-write loops below. Index records are
// small and contention is short-lived, so a modest budget suffices.
const casRetries = 16

// ReadList reads a JSON string list stored at key. An absent key yields an
// empty list, never an error.
func ReadList(ctx context.Context, s Store, key Key) ([]string, error) {
	data, ok := s.Get(ctx, key)
	if !ok {
		return []string{}, nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("corrupt list record at %s: %w", key, err)
	}
	return list, nil
}

// UpdateList applies fn to the list stored at key under a CAS loop. fn
// returns the new list and whether anything changed; an unchanged list
// short-circuits without a write. Lists are stored without expiration: index
// records live until explicitly cleared.
func UpdateList(ctx context.Context, s Store, key Key, fn func([]string) ([]string, bool)) error {
	for attempt := 0; attempt < casRetries; attempt++ {
		old, exists := s.Get(ctx, key)

		var list []string
		if exists {
			if err := json.Unmarshal(old, &list); err != nil {
				return fmt.Errorf("corrupt list record at %s: %w", key, err)
			}
		}

		next, changed := fn(list)
		if !changed {
			return nil
		}

		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to serialize list: %w", err)
		}

		var expected []byte
		if exists {
			expected = old
		}

		ok, err := s.CompareAndSwap(ctx, key, expected, data, 0)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}

	return fmt.Errorf("updating %s: %w", key, ErrCASConflict)
}

// AppendUnique appends value to the list at key if absent, preserving
// insertion order. Idempotent.
func AppendUnique(ctx context.Context, s Store, key Key, value string) error {
	return UpdateList(ctx, s, key, func(list []string) ([]string, bool) {
		for _, v := range list {
			if v == value {
				return list, false
			}
		}
		return append(list, value), true
	})
}

// RemoveValue removes value from the list at key. Removing an absent value
// is a no-op.
func RemoveValue(ctx context.Context, s Store, key Key, value string) error {
	return UpdateList(ctx, s, key, func(list []string) ([]string, bool) {
		out := list[:0]
		found := false
		for _, v := range list {
			if v == value {
				found = true
				continue
			}
			out = append(out, v)
		}
		return out, found
	})
}
