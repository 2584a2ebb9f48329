package config

import (
	"os"
	"testing"
)

func TestNewManager(t *testing.T) {
	mgr := NewManager()
	if mgr == nil {
		t.Fatal("Expected manager to be non-nil")
	}

	if mgr.v == nil {
		t.Fatal("Expected viper instance to be non-nil")
	}
}

func TestDefaultValues(t *testing.T) {
	mgr := NewManager()
	if err := mgr.Load(); err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	cfg, err := mgr.GetConfig()
	if err != nil {
		t.Fatalf("Failed to get config: %v", err)
	}

	// Test default values
	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{"store.provider", cfg.Store.Provider, "memory"},
		{"store.max_size", cfg.Store.MaxSize, 10000},
		{"store.compression", cfg.Store.Compression, false},
		{"store.min_compress_size", cfg.Store.MinCompressSize, 512},
		{"store.redis.host", cfg.Store.Redis.Host, "localhost"},
		{"store.redis.port", cfg.Store.Redis.Port, 6379},
		{"store.redis.pool_size", cfg.Store.Redis.PoolSize, 10},
		{"logger.dev", cfg.Logger.Dev, false},
		{"tracing.enabled", cfg.Tracing.Enabled, false},
		{"tracing.service_name", cfg.Tracing.ServiceName, "cachespec"},
		{"metrics.enabled", cfg.Metrics.Enabled, false},
		{"error_tracking.provider", cfg.ErrorTracking.Provider, "noop"},
		{"scheduler.marker_store", cfg.Scheduler.MarkerStore, "memory"},
		{"scheduler.sqlite_path", cfg.Scheduler.SQLitePath, "cachespec_markers.db"},
		{"graph.max_traversal", cfg.Graph.MaxTraversal, 10000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.expected)
			}
		})
	}
}

func TestEnvironmentVariableOverrides(t *testing.T) {
	// Set environment variables
	os.Setenv("CACHESPEC_STORE_PROVIDER", "redis")
	os.Setenv("CACHESPEC_STORE_COMPRESSION", "true")
	os.Setenv("CACHESPEC_LOGGER_DEV", "true")
	os.Setenv("CACHESPEC_GRAPH_MAX_TRAVERSAL", "500")
	defer func() {
		os.Unsetenv("CACHESPEC_STORE_PROVIDER")
		os.Unsetenv("CACHESPEC_STORE_COMPRESSION")
		os.Unsetenv("CACHESPEC_LOGGER_DEV")
		os.Unsetenv("CACHESPEC_GRAPH_MAX_TRAVERSAL")
	}()

	mgr := NewManager()
	if err := mgr.Load(); err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	cfg, err := mgr.GetConfig()
	if err != nil {
		t.Fatalf("Failed to get config: %v", err)
	}

	if cfg.Store.Provider != "redis" {
		t.Errorf("store.provider: got %v, want redis", cfg.Store.Provider)
	}
	if !cfg.Store.Compression {
		t.Error("store.compression: expected true from environment")
	}
	if !cfg.Logger.Dev {
		t.Error("logger.dev: expected true from environment")
	}
	if cfg.Graph.MaxTraversal != 500 {
		t.Errorf("graph.max_traversal: got %v, want 500", cfg.Graph.MaxTraversal)
	}
}

func TestManagerSetAndGet(t *testing.T) {
	mgr := NewManager()
	mgr.Set("store.provider", "memcache")

	if got := mgr.GetString("store.provider"); got != "memcache" {
		t.Errorf("GetString: got %v, want memcache", got)
	}
	if got := mgr.GetInt("store.max_size"); got != 10000 {
		t.Errorf("GetInt: got %v, want 10000", got)
	}
	if got := mgr.GetBool("metrics.enabled"); got {
		t.Error("GetBool: expected false")
	}
}

func TestManagerWithOptions(t *testing.T) {
	mgr := NewManagerWithOptions(
		WithConfigName("custom"),
		WithEnvPrefix("CUSTOMCACHE"),
	)
	if mgr == nil {
		t.Fatal("Expected manager to be non-nil")
	}
}
