// Package cachespec layers tag indexing, parent/child hierarchies,
// dependency-driven invalidation, key versioning and TTL analytics over a
// pluggable expiring key-value store.
package cachespec

import (
	"context"
	"fmt"

	"github.com/bitechdev/CacheSpec/pkg/config"
	"github.com/bitechdev/CacheSpec/pkg/scheduler"
	"github.com/bitechdev/CacheSpec/pkg/store"
)

var (
	defaultCache *Cache
)

// Initialize initializes the default cache over the given store.
// If not called, the package will use an in-memory store by default.
func Initialize(s store.Store, opts ...Option) {
	defaultCache = New(s, opts...)
}

// UseMemory configures the default cache to use in-memory storage.
func UseMemory(opts *store.Options) error {
	provider := store.NewMemoryProvider(opts)
	defaultCache = New(provider, WithProviderName("memory"))
	return nil
}

// UseRedis configures the default cache to use Redis storage.
func UseRedis(cfg *store.RedisConfig) error {
	provider, err := store.NewRedisProvider(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis provider: %w", err)
	}
	defaultCache = New(provider, WithProviderName("redis"))
	return nil
}

// UseMemcache configures the default cache to use Memcache storage.
func UseMemcache(cfg *store.MemcacheConfig) error {
	provider, err := store.NewMemcacheProvider(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize Memcache provider: %w", err)
	}
	defaultCache = New(provider, WithProviderName("memcache"))
	return nil
}

// FromConfig builds a cache from the full library configuration: store
// provider, optional compression, marker store and traversal bounds.
func FromConfig(ctx context.Context, cfg *config.Config) (*Cache, error) {
	var (
		s   store.Store
		err error
	)

	switch cfg.Store.Provider {
	case "redis":
		s, err = store.NewRedisProvider(&store.RedisConfig{
			Host:     cfg.Store.Redis.Host,
			Port:     cfg.Store.Redis.Port,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
			PoolSize: cfg.Store.Redis.PoolSize,
		})
	case "memcache":
		s, err = store.NewMemcacheProvider(&store.MemcacheConfig{
			Servers:      cfg.Store.Memcache.Servers,
			MaxIdleConns: cfg.Store.Memcache.MaxIdleConns,
			Timeout:      cfg.Store.Memcache.Timeout,
		})
	case "memory", "":
		s = store.NewMemoryProvider(&store.Options{MaxSize: cfg.Store.MaxSize})
	default:
		return nil, fmt.Errorf("unknown store provider: %s", cfg.Store.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Store.Compression {
		s = store.WithCompression(s, cfg.Store.MinCompressSize)
	}

	opts := []Option{WithProviderName(cfg.Store.Provider)}
	if cfg.Graph.MaxTraversal > 0 {
		opts = append(opts, WithMaxTraversal(cfg.Graph.MaxTraversal))
	}

	switch cfg.Scheduler.MarkerStore {
	case "sqlite":
		markers, err := scheduler.NewSQLiteMarkerStore(ctx, cfg.Scheduler.SQLitePath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithMarkerStore(markers))
	case "memory", "":
		// Default marker store.
	default:
		return nil, fmt.Errorf("unknown marker store: %s", cfg.Scheduler.MarkerStore)
	}

	return New(s, opts...), nil
}

// GetDefaultCache returns the default cache instance.
// Initializes with an in-memory store if not already initialized.
func GetDefaultCache() *Cache {
	if defaultCache == nil {
		_ = UseMemory(&store.Options{MaxSize: 10000})
	}
	return defaultCache
}

// SetDefaultCache sets a custom cache instance as the default cache.
// This is useful for testing or when you want to use a pre-configured cache instance.
func SetDefaultCache(cache *Cache) {
	defaultCache = cache
}

// GetStats returns statistics for the default cache.
func GetStats(ctx context.Context) (*store.Stats, error) {
	cache := GetDefaultCache()
	return cache.Stats(ctx)
}

// Close closes the default cache and releases resources.
func Close() error {
	if defaultCache != nil {
		return defaultCache.Close()
	}
	return nil
}
