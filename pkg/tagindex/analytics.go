package tagindex

import (
	"context"
	"errors"
	"time"

	"github.com/bitechdev/CacheSpec/pkg/metadata"
	"github.com/bitechdev/CacheSpec/pkg/store"
)

// Stats aggregates remaining TTLs across the live members of a tag.
type Stats struct {
	Tag      string        `json:"tag"`
	Count    int           `json:"count"`
	TotalTTL time.Duration `json:"total_ttl"`
	AvgTTL   time.Duration `json:"avg_ttl"`
	MinTTL   time.Duration `json:"min_ttl"`
	MaxTTL   time.Duration `json:"max_ttl"`
}

// Analytics extends Stats with access counters and a derived priority.
// Priority is total access over average TTL seconds: a tag read often
// relative to how long its entries live is first in line for recompute.
type Analytics struct {
	Stats
	TotalAccess int64   `json:"total_access"`
	Priority    float64 `json:"priority"`
}

// Stats computes TTL aggregates across the live members of tag. Members
// whose entries have expired or disappeared are skipped.
func (ix *Index) Stats(ctx context.Context, tag string) (*Stats, error) {
	keys, err := ix.Keys(ctx, tag)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Tag: tag}
	ix.accumulate(ctx, keys, stats)
	return stats, nil
}

func (ix *Index) accumulate(ctx context.Context, keys []string, stats *Stats) {
	for _, key := range keys {
		ttl, ok := ix.ttlOf(ctx, key)
		if !ok {
			continue
		}

		if stats.Count == 0 || ttl < stats.MinTTL {
			stats.MinTTL = ttl
		}
		if ttl > stats.MaxTTL {
			stats.MaxTTL = ttl
		}
		stats.TotalTTL += ttl
		stats.Count++
	}

	if stats.Count > 0 {
		stats.AvgTTL = stats.TotalTTL / time.Duration(stats.Count)
	}
}

// Analytics computes Stats plus access totals and recompute priority for
// one tag.
func (ix *Index) Analytics(ctx context.Context, tag string) (*Analytics, error) {
	keys, err := ix.Keys(ctx, tag)
	if err != nil {
		return nil, err
	}
	return ix.analyze(ctx, tag, keys)
}

// CrossAnalytics aggregates analytics across several tags. A key tagged
// under more than one of the given tags is counted once.
func (ix *Index) CrossAnalytics(ctx context.Context, tags ...string) (*Analytics, error) {
	seen := make(map[string]struct{})
	var keys []string

	for _, tag := range tags {
		members, err := ix.Keys(ctx, tag)
		if err != nil {
			return nil, err
		}
		for _, key := range members {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}

	return ix.analyze(ctx, "", keys)
}

func (ix *Index) analyze(ctx context.Context, tag string, keys []string) (*Analytics, error) {
	result := &Analytics{Stats: Stats{Tag: tag}}
	ix.accumulate(ctx, keys, &result.Stats)

	for _, key := range keys {
		rec, err := ix.meta.Get(ctx, key)
		if err != nil {
			if errors.Is(err, metadata.ErrNotFound) {
				continue
			}
			return nil, err
		}
		result.TotalAccess += rec.AccessCount
	}

	avgSeconds := result.AvgTTL.Seconds()
	if avgSeconds < 1 {
		avgSeconds = 1
	}
	result.Priority = float64(result.TotalAccess) / avgSeconds

	return result, nil
}

// ttlOf returns a member's remaining TTL, treating "no expiry" as zero
// remaining pressure and absent keys as gone.
func (ix *Index) ttlOf(ctx context.Context, key string) (time.Duration, bool) {
	ttl, ok := ix.s.TTL(ctx, store.Plain(key))
	if !ok {
		return 0, false
	}
	if ttl < 0 {
		ttl = 0
	}
	return ttl, true
}
