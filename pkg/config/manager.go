package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Manager handles configuration loading from multiple sources
type Manager struct {
	v *viper.Viper
}

// NewManager creates a new configuration manager with defaults
func NewManager() *Manager {
	v := viper.New()

	// Set configuration file settings
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/cachespec")
	v.AddConfigPath("$HOME/.cachespec")

	// Enable environment variable support
	v.SetEnvPrefix("CACHESPEC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set default values
	setDefaults(v)

	return &Manager{v: v}
}

// NewManagerWithOptions creates a new configuration manager with custom options
func NewManagerWithOptions(opts ...Option) *Manager {
	m := NewManager()
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Option is a functional option for configuring the Manager
type Option func(*Manager)

// WithConfigFile sets a specific config file path
func WithConfigFile(path string) Option {
	return func(m *Manager) {
		m.v.SetConfigFile(path)
	}
}

// WithConfigName sets the config file name (without extension)
func WithConfigName(name string) Option {
	return func(m *Manager) {
		m.v.SetConfigName(name)
	}
}

// WithConfigPath adds a path to search for config files
func WithConfigPath(path string) Option {
	return func(m *Manager) {
		m.v.AddConfigPath(path)
	}
}

// WithEnvPrefix sets the environment variable prefix
func WithEnvPrefix(prefix string) Option {
	return func(m *Manager) {
		m.v.SetEnvPrefix(prefix)
	}
}

// Load attempts to load configuration from file and environment
func (m *Manager) Load() error {
	// Try to read config file (not an error if it doesn't exist)
	if err := m.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; will rely on defaults and env vars
	}

	return nil
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() (*Config, error) {
	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Get returns a configuration value by key
func (m *Manager) Get(key string) interface{} {
	return m.v.Get(key)
}

// GetString returns a string configuration value
func (m *Manager) GetString(key string) string {
	return m.v.GetString(key)
}

// GetInt returns an int configuration value
func (m *Manager) GetInt(key string) int {
	return m.v.GetInt(key)
}

// GetBool returns a bool configuration value
func (m *Manager) GetBool(key string) bool {
	return m.v.GetBool(key)
}

// Set sets a configuration value
func (m *Manager) Set(key string, value interface{}) {
	m.v.Set(key, value)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Store defaults
	v.SetDefault("store.provider", "memory")
	v.SetDefault("store.max_size", 10000)
	v.SetDefault("store.compression", false)
	v.SetDefault("store.min_compress_size", 512)
	v.SetDefault("store.redis.host", "localhost")
	v.SetDefault("store.redis.port", 6379)
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.pool_size", 10)
	v.SetDefault("store.memcache.servers", []string{"localhost:11211"})
	v.SetDefault("store.memcache.max_idle_conns", 2)
	v.SetDefault("store.memcache.timeout", "1s")

	// Logger defaults
	v.SetDefault("logger.dev", false)
	v.SetDefault("logger.path", "")

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "cachespec")
	v.SetDefault("tracing.service_version", "1.0.0")
	v.SetDefault("tracing.endpoint", "")

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)

	// Error tracking defaults
	v.SetDefault("error_tracking.enabled", false)
	v.SetDefault("error_tracking.provider", "noop")
	v.SetDefault("error_tracking.sample_rate", 1.0)
	v.SetDefault("error_tracking.traces_sample_rate", 0.0)

	// Scheduler defaults
	v.SetDefault("scheduler.marker_store", "memory")
	v.SetDefault("scheduler.sqlite_path", "cachespec_markers.db")

	// Graph defaults
	v.SetDefault("graph.max_traversal", 10000)
}
