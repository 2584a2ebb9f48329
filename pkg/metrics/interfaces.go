package metrics

import (
	"net/http"
	"time"

	"github.com/bitechdev/CacheSpec/pkg/logger"
)

// Provider defines the interface for metric collection
type Provider interface {
	// RecordHit records a cache hit
	RecordHit(provider string)

	// RecordMiss records a cache miss
	RecordMiss(provider string)

	// RecordOperation records the duration and outcome of a cache operation
	RecordOperation(operation string, duration time.Duration, err error)

	// RecordInvalidation records a cascade invalidation and the number of
	// keys it removed
	RecordInvalidation(kind string, keys int)

	// RecordRecompute records a producer-driven recompute
	RecordRecompute(kind string, duration time.Duration)

	// UpdateKeyCount updates the live key count gauge
	UpdateKeyCount(provider string, keys int64)

	// Handler returns an HTTP handler for exposing metrics (e.g., /metrics endpoint)
	Handler() http.Handler
}

// globalProvider is the global metrics provider
var globalProvider Provider

// SetProvider sets the global metrics provider
func SetProvider(p Provider) {
	globalProvider = p
}

// GetProvider returns the current metrics provider
func GetProvider() Provider {
	if globalProvider == nil {
		// Return no-op provider if none is set
		return &NoOpProvider{}
	}
	return globalProvider
}

// NoOpProvider is a no-op implementation of Provider
type NoOpProvider struct{}

func (n *NoOpProvider) RecordHit(provider string)                                        {}
func (n *NoOpProvider) RecordMiss(provider string)                                       {}
func (n *NoOpProvider) RecordOperation(operation string, duration time.Duration, err error) {}
func (n *NoOpProvider) RecordInvalidation(kind string, keys int)                         {}
func (n *NoOpProvider) RecordRecompute(kind string, duration time.Duration)              {}
func (n *NoOpProvider) UpdateKeyCount(provider string, keys int64)                       {}
func (n *NoOpProvider) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("Metrics provider not configured"))
		if err != nil {
			logger.Warn("Failed to write. %v", err)
		}
	})
}
