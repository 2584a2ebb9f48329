package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusProvider implements the Provider interface using Prometheus
type PrometheusProvider struct {
	hits              *prometheus.CounterVec
	misses            *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	operationTotal    *prometheus.CounterVec
	invalidations     *prometheus.CounterVec
	invalidatedKeys   *prometheus.CounterVec
	recomputeDuration *prometheus.HistogramVec
	keyCount          *prometheus.GaugeVec
}

// NewPrometheusProvider creates a new Prometheus metrics provider
func NewPrometheusProvider(config *Config) *PrometheusProvider {
	if config == nil {
		config = DefaultConfig()
	}
	config.ApplyDefaults()

	return &PrometheusProvider{
		hits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of cache hits",
			},
			[]string{"provider"},
		),
		misses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of cache misses",
			},
			[]string{"provider"},
		),
		operationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Name:      "cache_operation_duration_seconds",
				Help:      "Cache operation duration in seconds",
				Buckets:   config.OperationBuckets,
			},
			[]string{"operation"},
		),
		operationTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "cache_operations_total",
				Help:      "Total number of cache operations",
			},
			[]string{"operation", "status"},
		),
		invalidations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "cache_invalidations_total",
				Help:      "Total number of cascade invalidations",
			},
			[]string{"kind"},
		),
		invalidatedKeys: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Name:      "cache_invalidated_keys_total",
				Help:      "Total number of keys removed by cascade invalidations",
			},
			[]string{"kind"},
		),
		recomputeDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Name:      "cache_recompute_duration_seconds",
				Help:      "Producer recompute duration in seconds",
				Buckets:   config.RecomputeBuckets,
			},
			[]string{"kind"},
		),
		keyCount: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Name:      "cache_keys",
				Help:      "Number of live keys in the store",
			},
			[]string{"provider"},
		),
	}
}

// RecordHit implements Provider interface
func (p *PrometheusProvider) RecordHit(provider string) {
	p.hits.WithLabelValues(provider).Inc()
}

// RecordMiss implements Provider interface
func (p *PrometheusProvider) RecordMiss(provider string) {
	p.misses.WithLabelValues(provider).Inc()
}

// RecordOperation implements Provider interface
func (p *PrometheusProvider) RecordOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	p.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	p.operationTotal.WithLabelValues(operation, status).Inc()
}

// RecordInvalidation implements Provider interface
func (p *PrometheusProvider) RecordInvalidation(kind string, keys int) {
	p.invalidations.WithLabelValues(kind).Inc()
	p.invalidatedKeys.WithLabelValues(kind).Add(float64(keys))
}

// RecordRecompute implements Provider interface
func (p *PrometheusProvider) RecordRecompute(kind string, duration time.Duration) {
	p.recomputeDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// UpdateKeyCount implements Provider interface
func (p *PrometheusProvider) UpdateKeyCount(provider string, keys int64) {
	p.keyCount.WithLabelValues(provider).Set(float64(keys))
}

// Handler implements Provider interface
func (p *PrometheusProvider) Handler() http.Handler {
	return promhttp.Handler()
}
