package config

import "time"

// Config represents the complete library configuration
type Config struct {
	Store         StoreConfig         `mapstructure:"store"`
	Logger        LoggerConfig        `mapstructure:"logger"`
	Tracing       TracingConfig       `mapstructure:"tracing"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	ErrorTracking ErrorTrackingConfig `mapstructure:"error_tracking"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Graph         GraphConfig         `mapstructure:"graph"`
}

// StoreConfig holds store provider configuration
type StoreConfig struct {
	Provider string         `mapstructure:"provider"` // memory, redis, memcache
	MaxSize  int            `mapstructure:"max_size"` // in-memory provider only
	Redis    RedisConfig    `mapstructure:"redis"`
	Memcache MemcacheConfig `mapstructure:"memcache"`

	// Compression enables transparent value compression for values at or
	// above MinCompressSize bytes.
	Compression     bool `mapstructure:"compression"`
	MinCompressSize int  `mapstructure:"min_compress_size"`
}

// RedisConfig holds Redis-specific configuration
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// MemcacheConfig holds Memcache-specific configuration
type MemcacheConfig struct {
	Servers      []string      `mapstructure:"servers"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Dev  bool   `mapstructure:"dev"`
	Path string `mapstructure:"path"`
}

// TracingConfig holds OpenTelemetry tracing configuration
type TracingConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
	Endpoint       string `mapstructure:"endpoint"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// ErrorTrackingConfig holds error tracking configuration
type ErrorTrackingConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	Provider         string  `mapstructure:"provider"` // sentry, noop
	DSN              string  `mapstructure:"dsn"`
	Environment      string  `mapstructure:"environment"`
	Release          string  `mapstructure:"release"`
	Debug            bool    `mapstructure:"debug"`
	SampleRate       float64 `mapstructure:"sample_rate"`
	TracesSampleRate float64 `mapstructure:"traces_sample_rate"`
}

// SchedulerConfig holds refresh-planner configuration
type SchedulerConfig struct {
	// MarkerStore selects the durable marker backend: memory or sqlite.
	MarkerStore string `mapstructure:"marker_store"`

	// SQLitePath is the marker database path when MarkerStore is sqlite.
	SQLitePath string `mapstructure:"sqlite_path"`
}

// GraphConfig tunes dependency cascades
type GraphConfig struct {
	// MaxTraversal bounds the number of keys one cascade may touch.
	MaxTraversal int `mapstructure:"max_traversal"`
}
