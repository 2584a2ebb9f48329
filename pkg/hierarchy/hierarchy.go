// Package hierarchy stores cache entries under a parent key and cascades
// clearing and recompute over the parent's ordered child set. Unlike tags,
// the relation is one parent to many children and iteration order follows
// registration order.
package hierarchy

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bitechdev/CacheSpec/pkg/logger"
	"github.com/bitechdev/CacheSpec/pkg/metadata"
	"github.com/bitechdev/CacheSpec/pkg/store"
)

// Producer computes the value for one child key.
type Producer func(ctx context.Context, childKey string) (any, error)

// Index maps parent keys to ordered child key sets.
type Index struct {
	s    store.Store
	meta *metadata.Store
}

// NewIndex creates a hierarchy index on top of the given store.
func NewIndex(s store.Store, meta *metadata.Store) *Index {
	return &Index{s: s, meta: meta}
}

// StoreUnderParent writes the child entry and registers it under the
// parent. Registration is idempotent; re-storing an existing child only
// rewrites its value.
func (ix *Index) StoreUnderParent(ctx context.Context, parent, child string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to serialize child %s: %w", child, err)
	}

	if err := ix.s.Set(ctx, store.Plain(child), data, ttl); err != nil {
		return fmt.Errorf("storing child %s: %w", child, err)
	}
	if err := ix.meta.Touch(ctx, child, ttl); err != nil {
		return err
	}

	if err := store.AppendUnique(ctx, ix.s, store.ChildrenKey(parent), child); err != nil {
		return fmt.Errorf("registering %s under %s: %w", child, parent, err)
	}
	return nil
}

// Children returns the registered children of parent in registration
// order. An unknown parent yields an empty set.
func (ix *Index) Children(ctx context.Context, parent string) ([]string, error) {
	return store.ReadList(ctx, ix.s, store.ChildrenKey(parent))
}

// ClearParent deletes every registered child entry and its metadata, then
// the parent's child-set record.
func (ix *Index) ClearParent(ctx context.Context, parent string) error {
	children, err := ix.Children(ctx, parent)
	if err != nil {
		return err
	}

	for _, child := range children {
		if err := ix.s.Delete(ctx, store.Plain(child)); err != nil {
			return fmt.Errorf("clearing parent %s: deleting %s: %w", parent, child, err)
		}
		if err := ix.meta.Delete(ctx, child); err != nil {
			return fmt.Errorf("clearing parent %s: deleting metadata for %s: %w", parent, child, err)
		}
	}

	if err := ix.s.Delete(ctx, store.ChildrenKey(parent)); err != nil {
		return fmt.Errorf("deleting child-set record for %s: %w", parent, err)
	}

	logger.Debug("Cleared parent %s (%d children)", parent, len(children))
	return nil
}

// RemoveChild unregisters child from parent without touching the child's
// entry.
func (ix *Index) RemoveChild(ctx context.Context, parent, child string) error {
	return store.RemoveValue(ctx, ix.s, store.ChildrenKey(parent), child)
}

// recomputeOne produces and rewrites a single child entry.
func (ix *Index) recomputeOne(ctx context.Context, child string, producer Producer, ttl time.Duration) error {
	value, err := producer(ctx, child)
	if err != nil {
		return fmt.Errorf("producer failed for %s: %w", child, err)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to serialize child %s: %w", child, err)
	}

	if err := ix.s.Set(ctx, store.Plain(child), data, ttl); err != nil {
		return err
	}
	return ix.meta.Touch(ctx, child, ttl)
}
