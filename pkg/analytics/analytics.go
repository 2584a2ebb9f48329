// Package analytics derives refresh and eviction priorities from remaining
// TTLs and per-key access metadata. Everything here reads the store and
// metadata; only the percentile eviction deletes.
package analytics

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/bitechdev/CacheSpec/pkg/logger"
	"github.com/bitechdev/CacheSpec/pkg/metadata"
	"github.com/bitechdev/CacheSpec/pkg/store"
)

// Engine computes TTL statistics and heuristic scores over sets of keys.
type Engine struct {
	s        store.Store
	meta     *metadata.Store
	strategy Strategy
	now      func() time.Time
}

// NewEngine creates an analytics engine. A nil strategy selects
// DefaultStrategy.
func NewEngine(s store.Store, meta *metadata.Store, strategy Strategy) *Engine {
	if strategy == nil {
		strategy = DefaultStrategy{}
	}
	return &Engine{s: s, meta: meta, strategy: strategy, now: time.Now}
}

// SetClock replaces the engine's clock. Intended for tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// TTL returns the remaining lifetime of a key, clamped to >= 0. The second
// return is false when the key is absent.
func (e *Engine) TTL(ctx context.Context, key string) (time.Duration, bool) {
	return e.s.TTL(ctx, store.Plain(key))
}

// TTLStats aggregates remaining TTLs over live keys.
type TTLStats struct {
	Count  int           `json:"count"`
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Avg    time.Duration `json:"avg"`
	sorted []time.Duration
}

// Percentile returns the p-th percentile TTL (0..100) of the sampled keys.
func (t *TTLStats) Percentile(p float64) time.Duration {
	if len(t.sorted) == 0 {
		return 0
	}
	idx := int(float64(len(t.sorted)) * p / 100)
	if idx >= len(t.sorted) {
		idx = len(t.sorted) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return t.sorted[idx]
}

// Stats computes TTL aggregates over the given keys. Absent keys are
// skipped.
func (e *Engine) Stats(ctx context.Context, keys []string) *TTLStats {
	stats := &TTLStats{}
	var total time.Duration

	for _, key := range keys {
		ttl, ok := e.TTL(ctx, key)
		if !ok {
			continue
		}

		if stats.Count == 0 || ttl < stats.Min {
			stats.Min = ttl
		}
		if ttl > stats.Max {
			stats.Max = ttl
		}
		total += ttl
		stats.Count++
		stats.sorted = append(stats.sorted, ttl)
	}

	if stats.Count > 0 {
		stats.Avg = total / time.Duration(stats.Count)
	}
	sort.Slice(stats.sorted, func(i, j int) bool { return stats.sorted[i] < stats.sorted[j] })
	return stats
}

// AccessWeights returns the refresh weight of each live key: access count
// over remaining TTL seconds. High access and little life left rank
// highest.
func (e *Engine) AccessWeights(ctx context.Context, keys []string) (map[string]float64, error) {
	weights := make(map[string]float64, len(keys))

	for _, key := range keys {
		ttl, ok := e.TTL(ctx, key)
		if !ok {
			continue
		}

		access, err := e.accessCount(ctx, key)
		if err != nil {
			return nil, err
		}
		weights[key] = e.strategy.Weight(access, ttl)
	}
	return weights, nil
}

// ForecastDecay predicts each key's remaining lifetime from its metadata
// (update time plus originally requested TTL) without querying the live
// store TTL. Keys without metadata are skipped; keys stored without expiry
// forecast zero decay pressure and are skipped too.
func (e *Engine) ForecastDecay(ctx context.Context, keys []string) (map[string]time.Duration, error) {
	forecast := make(map[string]time.Duration, len(keys))

	for _, key := range keys {
		rec, err := e.meta.Get(ctx, key)
		if err != nil {
			if errors.Is(err, metadata.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if rec.OriginalTTL <= 0 {
			continue
		}

		remaining := rec.Updated.Add(rec.OriginalTTL).Sub(e.now())
		if remaining < 0 {
			remaining = 0
		}
		forecast[key] = remaining
	}
	return forecast, nil
}

// DecayScore scores how far through its lifetime a key is, from metadata.
func (e *Engine) DecayScore(ctx context.Context, key string) (float64, error) {
	rec, err := e.meta.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	age := e.now().Sub(rec.Updated)
	return e.strategy.Decay(age, rec.OriginalTTL), nil
}

// HealthScore scores how worth keeping a key is.
func (e *Engine) HealthScore(ctx context.Context, key string) (float64, error) {
	decay, err := e.DecayScore(ctx, key)
	if err != nil {
		return 0, err
	}
	ttl, _ := e.TTL(ctx, key)
	access, err := e.accessCount(ctx, key)
	if err != nil {
		return 0, err
	}
	return e.strategy.Health(access, ttl, decay), nil
}

// PredictiveScore estimates the value of refreshing a key ahead of expiry.
func (e *Engine) PredictiveScore(ctx context.Context, key string) (float64, error) {
	rec, err := e.meta.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	ttl, _ := e.TTL(ctx, key)
	return e.strategy.Predictive(rec.AccessCount, ttl, rec.OriginalTTL), nil
}

// EvictBottomPercentile deletes the keys whose remaining TTL falls at or
// below the percentile threshold. TTLs are sorted ascending and the
// threshold index is floor(count*percentile/100)-1, clamped to >= 0, so
// percentile 100 evicts every sampled key. Returns the evicted keys.
func (e *Engine) EvictBottomPercentile(ctx context.Context, keys []string, percentile float64) ([]string, error) {
	type sample struct {
		key string
		ttl time.Duration
	}

	samples := make([]sample, 0, len(keys))
	for _, key := range keys {
		ttl, ok := e.TTL(ctx, key)
		if !ok {
			continue
		}
		samples = append(samples, sample{key: key, ttl: ttl})
	}
	if len(samples) == 0 {
		return nil, nil
	}

	sort.Slice(samples, func(i, j int) bool { return samples[i].ttl < samples[j].ttl })

	idx := int(float64(len(samples))*percentile/100) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(samples) {
		idx = len(samples) - 1
	}
	threshold := samples[idx].ttl

	evicted := make([]string, 0, idx+1)
	for _, s := range samples {
		if s.ttl > threshold {
			break
		}
		if err := e.s.Delete(ctx, store.Plain(s.key)); err != nil {
			return evicted, err
		}
		if err := e.meta.Delete(ctx, s.key); err != nil {
			return evicted, err
		}
		evicted = append(evicted, s.key)
	}

	logger.Debug("Evicted %d of %d keys at or below TTL %s", len(evicted), len(samples), threshold)
	return evicted, nil
}

func (e *Engine) accessCount(ctx context.Context, key string) (int64, error) {
	rec, err := e.meta.Get(ctx, key)
	if err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return rec.AccessCount, nil
}
