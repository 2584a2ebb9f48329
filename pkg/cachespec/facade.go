package cachespec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bitechdev/CacheSpec/pkg/analytics"
	"github.com/bitechdev/CacheSpec/pkg/depgraph"
	"github.com/bitechdev/CacheSpec/pkg/hierarchy"
	"github.com/bitechdev/CacheSpec/pkg/metadata"
	"github.com/bitechdev/CacheSpec/pkg/metrics"
	"github.com/bitechdev/CacheSpec/pkg/scheduler"
	"github.com/bitechdev/CacheSpec/pkg/store"
	"github.com/bitechdev/CacheSpec/pkg/tagindex"
	"github.com/bitechdev/CacheSpec/pkg/tracing"
	"github.com/bitechdev/CacheSpec/pkg/versions"
)

// Producer computes a value for a single key.
type Producer func(ctx context.Context) (any, error)

// Transform maps the current value of a key (or its absence) to the next
// value during an optimistic update.
type Transform func(current json.RawMessage, exists bool) (any, error)

// Cache is the composition point for the store, the indices, analytics and
// the refresh planner. Values are serialized as JSON.
type Cache struct {
	s        store.Store
	meta     *metadata.Store
	tags     *tagindex.Index
	tree     *hierarchy.Index
	graph    *depgraph.Graph
	registry *versions.Registry
	engine   *analytics.Engine
	planner  *scheduler.Planner

	sf          singleflight.Group
	dedupe      bool
	provider    string
	casRetries  int
	trackAccess bool
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	strategy     analytics.Strategy
	markers      scheduler.MarkerStore
	provider     string
	dedupe       bool
	trackAccess  bool
	casRetries   int
	maxTraversal int
}

// WithStrategy selects the scoring strategy used by analytics and the
// planner.
func WithStrategy(s analytics.Strategy) Option {
	return func(o *options) { o.strategy = s }
}

// WithMarkerStore selects the durable marker store backing persistent
// scheduling.
func WithMarkerStore(m scheduler.MarkerStore) Option {
	return func(o *options) { o.markers = m }
}

// WithProviderName sets the provider label used in metrics.
func WithProviderName(name string) Option {
	return func(o *options) { o.provider = name }
}

// WithoutDeduplication disables singleflight around GetOrCompute
// producers, restoring "every concurrent miss computes" semantics.
func WithoutDeduplication() Option {
	return func(o *options) { o.dedupe = false }
}

// WithoutAccessTracking disables the per-read metadata counter bump for
// read-heavy deployments that do not use analytics.
func WithoutAccessTracking() Option {
	return func(o *options) { o.trackAccess = false }
}

// WithCASRetries overrides the optimistic-update retry budget.
func WithCASRetries(n int) Option {
	return func(o *options) {
		if n >= 1 {
			o.casRetries = n
		}
	}
}

// WithMaxTraversal bounds dependency cascades.
func WithMaxTraversal(n int) Option {
	return func(o *options) { o.maxTraversal = n }
}

// New creates a cache facade over the given store.
func New(s store.Store, opts ...Option) *Cache {
	o := &options{
		provider:    "memory",
		dedupe:      true,
		trackAccess: true,
		casRetries:  16,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.markers == nil {
		o.markers = scheduler.NewMemoryMarkerStore()
	}

	meta := metadata.NewStore(s)
	tags := tagindex.NewIndex(s, meta)
	tree := hierarchy.NewIndex(s, meta)
	graph := depgraph.NewGraph(s, meta)
	if o.maxTraversal > 0 {
		graph.SetMaxTraversal(o.maxTraversal)
	}
	engine := analytics.NewEngine(s, meta, o.strategy)
	planner := scheduler.NewPlanner(s, meta, engine, tags, tree, o.markers)

	return &Cache{
		s:           s,
		meta:        meta,
		tags:        tags,
		tree:        tree,
		graph:       graph,
		registry:    versions.NewRegistry(s),
		engine:      engine,
		planner:     planner,
		dedupe:      o.dedupe,
		provider:    o.provider,
		casRetries:  o.casRetries,
		trackAccess: o.trackAccess,
	}
}

// Store exposes the underlying store adapter.
func (c *Cache) Store() store.Store { return c.s }

// Metadata exposes the per-key metadata store.
func (c *Cache) Metadata() *metadata.Store { return c.meta }

// Tags exposes the tag index.
func (c *Cache) Tags() *tagindex.Index { return c.tags }

// Hierarchy exposes the parent/child index.
func (c *Cache) Hierarchy() *hierarchy.Index { return c.tree }

// Dependencies exposes the dependency graph.
func (c *Cache) Dependencies() *depgraph.Graph { return c.graph }

// Versions exposes the version registry.
func (c *Cache) Versions() *versions.Registry { return c.registry }

// Analytics exposes the analytics engine.
func (c *Cache) Analytics() *analytics.Engine { return c.engine }

// Planner exposes the refresh planner.
func (c *Cache) Planner() *scheduler.Planner { return c.planner }

// Get retrieves and deserializes a value from the cache.
func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	data, err := c.GetBytes(ctx, key)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to deserialize %s: %w", key, err)
	}
	return nil
}

// GetBytes retrieves raw bytes from the cache.
func (c *Cache) GetBytes(ctx context.Context, key string) ([]byte, error) {
	ctx, span := tracing.StartSpan(ctx, "cache.get")
	defer span.End()

	data, exists := c.s.Get(ctx, store.Plain(key))
	if !exists {
		metrics.GetProvider().RecordMiss(c.provider)
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	metrics.GetProvider().RecordHit(c.provider)
	c.recordAccess(ctx, key)
	return data, nil
}

// Set serializes and stores a value with the specified TTL. A ttl of 0
// means no expiration.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %w", key, err)
	}
	return c.SetBytes(ctx, key, data, ttl)
}

// SetBytes stores raw bytes with the specified TTL.
func (c *Cache) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, span := tracing.StartSpan(ctx, "cache.set")
	defer span.End()

	start := time.Now()
	err := c.s.Set(ctx, store.Plain(key), value, ttl)
	metrics.GetProvider().RecordOperation("set", time.Since(start), err)
	if err != nil {
		return err
	}
	return c.meta.Touch(ctx, key, ttl)
}

// SetWithTags stores a value and tags it under each name. The entry is
// written first; tagging is idempotent, so a failed call can be retried
// without duplicating index entries.
func (c *Cache) SetWithTags(ctx context.Context, key string, value any, ttl time.Duration, tags ...string) error {
	if err := c.Set(ctx, key, value, ttl); err != nil {
		return err
	}

	for _, tag := range tags {
		if err := c.tags.Tag(ctx, key, tag); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a key and its metadata.
func (c *Cache) Delete(ctx context.Context, key string) error {
	ctx, span := tracing.StartSpan(ctx, "cache.delete")
	defer span.End()

	if err := c.s.Delete(ctx, store.Plain(key)); err != nil {
		return err
	}
	return c.meta.Delete(ctx, key)
}

// Exists checks if a key exists and is not expired.
func (c *Cache) Exists(ctx context.Context, key string) bool {
	return c.s.Exists(ctx, store.Plain(key))
}

// TTL returns the remaining lifetime of a key, clamped to >= 0.
func (c *Cache) TTL(ctx context.Context, key string) (time.Duration, bool) {
	return c.s.TTL(ctx, store.Plain(key))
}

// Clear removes all items from the store. Durable scheduler markers
// survive; use Planner().RestorePersistent to rebuild marked keys.
func (c *Cache) Clear(ctx context.Context) error {
	return c.s.Clear(ctx)
}

// Stats returns statistics about the underlying store.
func (c *Cache) Stats(ctx context.Context) (*store.Stats, error) {
	return c.s.Stats(ctx)
}

// Close closes the cache and releases any resources.
func (c *Cache) Close() error {
	return c.s.Close()
}

// GetOrCompute returns the stored value for key when present; otherwise it
// invokes producer, stores the result with ttl, and returns it. Concurrent
// misses on the same key share one producer invocation unless
// WithoutDeduplication was set. Producer failures propagate and are never
// cached.
func (c *Cache) GetOrCompute(ctx context.Context, key string, dest any, ttl time.Duration, producer Producer) error {
	data, err := c.GetBytes(ctx, key)
	if err == nil {
		return json.Unmarshal(data, dest)
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}

	compute := func() (any, error) {
		start := time.Now()
		value, err := producer(ctx)
		if err != nil {
			return nil, fmt.Errorf("producer failed for %s: %w", key, err)
		}
		metrics.GetProvider().RecordRecompute("get_or_compute", time.Since(start))

		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize %s: %w", key, err)
		}
		if err := c.SetBytes(ctx, key, encoded, ttl); err != nil {
			return nil, err
		}
		return encoded, nil
	}

	var encoded []byte
	if c.dedupe {
		result, err, _ := c.sf.Do(key, compute)
		if err != nil {
			return err
		}
		encoded = result.([]byte)
	} else {
		result, err := compute()
		if err != nil {
			return err
		}
		encoded = result.([]byte)
	}

	return json.Unmarshal(encoded, dest)
}

// Remember caches the result of producer under key and returns it. Similar
// to GetOrCompute but returns the raw decoded value.
func (c *Cache) Remember(ctx context.Context, key string, ttl time.Duration, producer Producer) (any, error) {
	var result any
	if err := c.GetOrCompute(ctx, key, &result, ttl, producer); err != nil {
		return nil, err
	}
	return result, nil
}

// RememberForever caches the result of producer with no expiration.
func (c *Cache) RememberForever(ctx context.Context, key string, producer Producer) (any, error) {
	return c.Remember(ctx, key, 0, producer)
}

// Pull reads a value and deletes it. Not atomic against concurrent
// readers: two callers pulling the same key may both observe the value.
func (c *Cache) Pull(ctx context.Context, key string, dest any) error {
	if err := c.Get(ctx, key, dest); err != nil {
		return err
	}
	return c.Delete(ctx, key)
}

// AtomicUpdate reads the current value of key (or its absence), applies
// transform, and stores the result with ttl under an optimistic
// compare-and-swap loop. Returns ErrCASConflict when the retry budget is
// exhausted.
func (c *Cache) AtomicUpdate(ctx context.Context, key string, ttl time.Duration, transform Transform) error {
	ctx, span := tracing.StartSpan(ctx, "cache.atomic_update")
	defer span.End()

	pkey := store.Plain(key)

	for attempt := 0; attempt < c.casRetries; attempt++ {
		old, exists := c.s.Get(ctx, pkey)

		next, err := transform(old, exists)
		if err != nil {
			return fmt.Errorf("transform failed for %s: %w", key, err)
		}

		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to serialize %s: %w", key, err)
		}

		var expected []byte
		if exists {
			expected = old
		}

		ok, err := c.s.CompareAndSwap(ctx, pkey, expected, data, ttl)
		if err != nil {
			return err
		}
		if ok {
			return c.meta.Touch(ctx, key, ttl)
		}
	}

	return fmt.Errorf("updating %s: %w", key, ErrCASConflict)
}

// Increment adds delta to the integer stored at key, treating absence as
// zero, and returns the new value.
func (c *Cache) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	var result int64
	err := c.AtomicUpdate(ctx, key, ttl, func(current json.RawMessage, exists bool) (any, error) {
		var n int64
		if exists {
			if err := json.Unmarshal(current, &n); err != nil {
				return nil, fmt.Errorf("value at %s is not an integer: %w", key, err)
			}
		}
		n += delta
		result = n
		return n, nil
	})
	return result, err
}

// Decrement subtracts delta from the integer stored at key.
func (c *Cache) Decrement(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	return c.Increment(ctx, key, -delta, ttl)
}

// InvalidateTag deletes every entry tagged under tag, then the tag record.
func (c *Cache) InvalidateTag(ctx context.Context, tag string) error {
	keys, err := c.tags.Keys(ctx, tag)
	if err != nil {
		return err
	}
	if err := c.tags.ClearTag(ctx, tag); err != nil {
		return err
	}
	metrics.GetProvider().RecordInvalidation("tag", len(keys))
	return nil
}

// Invalidate deletes key and cascades over its transitive dependents.
func (c *Cache) Invalidate(ctx context.Context, key string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "cache.invalidate")
	defer span.End()

	count, err := c.graph.InvalidateWithDependencies(ctx, key)
	metrics.GetProvider().RecordInvalidation("dependency", count)
	return count, err
}

func (c *Cache) recordAccess(ctx context.Context, key string) {
	if !c.trackAccess {
		return
	}
	if err := c.meta.IncrementAccess(ctx, key); err != nil {
		tracing.RecordError(ctx, err)
	}
}
