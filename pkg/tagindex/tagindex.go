// Package tagindex groups cache keys under named tags for bulk retrieval,
// clearing and aggregate analytics.
package tagindex

import (
	"context"
	"fmt"

	"github.com/bitechdev/CacheSpec/pkg/logger"
	"github.com/bitechdev/CacheSpec/pkg/metadata"
	"github.com/bitechdev/CacheSpec/pkg/store"
)

// Index maps tag names to member key sets.
type Index struct {
	s    store.Store
	meta *metadata.Store
}

// NewIndex creates a tag index on top of the given store.
func NewIndex(s store.Store, meta *metadata.Store) *Index {
	return &Index{s: s, meta: meta}
}

// Tag registers key under tag. Tagging the same key twice is a no-op; a key
// appears at most once per tag.
func (ix *Index) Tag(ctx context.Context, key, tag string) error {
	if err := store.AppendUnique(ctx, ix.s, store.TagKey(tag), key); err != nil {
		return fmt.Errorf("tagging %s under %q: %w", key, tag, err)
	}
	return nil
}

// Untag removes key from tag's member set.
func (ix *Index) Untag(ctx context.Context, key, tag string) error {
	return store.RemoveValue(ctx, ix.s, store.TagKey(tag), key)
}

// Keys returns the member keys of a tag. An unknown tag yields an empty
// set, not an error.
func (ix *Index) Keys(ctx context.Context, tag string) ([]string, error) {
	return store.ReadList(ctx, ix.s, store.TagKey(tag))
}

// ClearTag deletes every member key's cache entry and metadata, then the
// tag record itself. Safe to retry: deletes are idempotent and the tag
// record goes last.
func (ix *Index) ClearTag(ctx context.Context, tag string) error {
	keys, err := ix.Keys(ctx, tag)
	if err != nil {
		return err
	}

	for _, key := range keys {
		if err := ix.s.Delete(ctx, store.Plain(key)); err != nil {
			return fmt.Errorf("clearing tag %q: deleting %s: %w", tag, key, err)
		}
		if err := ix.meta.Delete(ctx, key); err != nil {
			return fmt.Errorf("clearing tag %q: deleting metadata for %s: %w", tag, key, err)
		}
	}

	if err := ix.s.Delete(ctx, store.TagKey(tag)); err != nil {
		return fmt.Errorf("deleting tag record %q: %w", tag, err)
	}

	logger.Debug("Cleared tag %q (%d keys)", tag, len(keys))
	return nil
}
