package hierarchy

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"

	"github.com/bitechdev/CacheSpec/pkg/store"
)

// Predicate decides whether a child's current value warrants a refresh.
// It receives the raw stored JSON; a true return triggers recompute.
type Predicate func(current json.RawMessage) bool

// RecomputeChildren re-invokes producer for every registered child of
// parent and rewrites it, regardless of the child's current TTL. It returns
// the number of children recomputed.
func (ix *Index) RecomputeChildren(ctx context.Context, parent string, producer Producer, ttl time.Duration) (int, error) {
	children, err := ix.Children(ctx, parent)
	if err != nil {
		return 0, err
	}

	for i, child := range children {
		if err := ix.recomputeOne(ctx, child, producer, ttl); err != nil {
			return i, err
		}
	}
	return len(children), nil
}

// RefreshChildrenBelowTTL recomputes only the children whose remaining TTL
// is below threshold, or which are missing entirely. It returns the number
// of children refreshed.
func (ix *Index) RefreshChildrenBelowTTL(ctx context.Context, parent string, producer Producer, ttl, threshold time.Duration) (int, error) {
	children, err := ix.Children(ctx, parent)
	if err != nil {
		return 0, err
	}

	refreshed := 0
	for _, child := range children {
		remaining, ok := ix.s.TTL(ctx, store.Plain(child))
		// remaining==0 with ok means the child never expires.
		if ok && (remaining == 0 || remaining >= threshold) {
			continue
		}

		if err := ix.recomputeOne(ctx, child, producer, ttl); err != nil {
			return refreshed, err
		}
		refreshed++
	}
	return refreshed, nil
}

// RefreshChildrenIf recomputes the children whose current value satisfies
// predicate. Missing children always refresh. It returns the number of
// children refreshed.
func (ix *Index) RefreshChildrenIf(ctx context.Context, parent string, producer Producer, ttl time.Duration, predicate Predicate) (int, error) {
	children, err := ix.Children(ctx, parent)
	if err != nil {
		return 0, err
	}

	refreshed := 0
	for _, child := range children {
		current, exists := ix.s.Get(ctx, store.Plain(child))
		if exists && !predicate(current) {
			continue
		}

		if err := ix.recomputeOne(ctx, child, producer, ttl); err != nil {
			return refreshed, err
		}
		refreshed++
	}
	return refreshed, nil
}

// JSONPathPredicate builds a Predicate that extracts path from the current
// value with gjson and hands the result to match. Values the path does not
// resolve against are treated as stale.
func JSONPathPredicate(path string, match func(gjson.Result) bool) Predicate {
	return func(current json.RawMessage) bool {
		result := gjson.GetBytes(current, path)
		if !result.Exists() {
			return true
		}
		return match(result)
	}
}
