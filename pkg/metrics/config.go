package metrics

// Config holds configuration for the metrics provider
type Config struct {
	// Enabled determines whether metrics collection is enabled
	Enabled bool `mapstructure:"enabled"`

	// Provider specifies which metrics provider to use (prometheus, noop)
	Provider string `mapstructure:"provider"`

	// Namespace is an optional prefix for all metric names
	Namespace string `mapstructure:"namespace"`

	// OperationBuckets defines histogram buckets for cache operation
	// duration (in seconds). Store round-trips dominate, so the buckets
	// skew small.
	OperationBuckets []float64 `mapstructure:"operation_buckets"`

	// RecomputeBuckets defines histogram buckets for producer recompute
	// duration (in seconds). Producers do real work, so the buckets run
	// longer.
	RecomputeBuckets []float64 `mapstructure:"recompute_buckets"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Enabled:          true,
		Provider:         "prometheus",
		OperationBuckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		RecomputeBuckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}
}

// ApplyDefaults fills in any missing values with defaults
func (c *Config) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = "prometheus"
	}
	if len(c.OperationBuckets) == 0 {
		c.OperationBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}
	}
	if len(c.RecomputeBuckets) == 0 {
		c.RecomputeBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	}
}
