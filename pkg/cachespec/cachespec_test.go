package cachespec

import (
	"context"
	"testing"
	"time"

	"github.com/bitechdev/CacheSpec/pkg/config"
	"github.com/bitechdev/CacheSpec/pkg/store"
)

func TestSetDefaultCache(t *testing.T) {
	// Create a custom cache instance
	provider := store.NewMemoryProvider(&store.Options{MaxSize: 50})
	customCache := New(provider)

	// Set it as the default
	SetDefaultCache(customCache)

	// Verify it's now the default
	retrievedCache := GetDefaultCache()
	if retrievedCache != customCache {
		t.Error("SetDefaultCache did not set the cache correctly")
	}

	// Test that we can use it
	ctx := context.Background()
	err := retrievedCache.Set(ctx, "test_key", "test_value", time.Minute)
	if err != nil {
		t.Fatalf("Failed to set value: %v", err)
	}

	var result string
	err = retrievedCache.Get(ctx, "test_key", &result)
	if err != nil {
		t.Fatalf("Failed to get value: %v", err)
	}

	if result != "test_value" {
		t.Errorf("Expected test_value, got %s", result)
	}

	// Clean up - reset to default
	SetDefaultCache(nil)
}

func TestGetDefaultCacheInitialization(t *testing.T) {
	// Reset to nil first
	SetDefaultCache(nil)

	// GetDefaultCache should auto-initialize
	cache := GetDefaultCache()
	if cache == nil {
		t.Error("GetDefaultCache should auto-initialize, got nil")
	}

	// Should be usable
	ctx := context.Background()
	err := cache.Set(ctx, "test", "value", time.Minute)
	if err != nil {
		t.Errorf("Failed to use auto-initialized cache: %v", err)
	}

	// Clean up
	SetDefaultCache(nil)
}

func TestFromConfigMemory(t *testing.T) {
	cfg := &config.Config{}
	cfg.Store.Provider = "memory"
	cfg.Store.MaxSize = 100
	cfg.Store.Compression = true
	cfg.Scheduler.MarkerStore = "memory"
	cfg.Graph.MaxTraversal = 50

	cache, err := FromConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}
	defer cache.Close()

	ctx := context.Background()
	if err := cache.Set(ctx, "a", "value", time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	var got string
	if err := cache.Get(ctx, "a", &got); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "value" {
		t.Errorf("Expected value, got %s", got)
	}
}

func TestFromConfigRejectsUnknownProvider(t *testing.T) {
	cfg := &config.Config{}
	cfg.Store.Provider = "carrier-pigeon"

	if _, err := FromConfig(context.Background(), cfg); err == nil {
		t.Error("Unknown provider should be rejected")
	}
}

func TestFromConfigRejectsUnknownMarkerStore(t *testing.T) {
	cfg := &config.Config{}
	cfg.Store.Provider = "memory"
	cfg.Scheduler.MarkerStore = "papyrus"

	if _, err := FromConfig(context.Background(), cfg); err == nil {
		t.Error("Unknown marker store should be rejected")
	}
}
