// Package depgraph tracks which keys depend on which, and cascades
// invalidation and recompute across the transitive closure of dependents.
//
// Edges point from a dependency to its dependents, so invalidating an
// upstream key can reach everything built on it. Traversal is iterative
// with a visited set and a hard size bound: a cyclic graph terminates and
// is reported as a caller error instead of recursing forever.
package depgraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bitechdev/CacheSpec/pkg/logger"
	"github.com/bitechdev/CacheSpec/pkg/metadata"
	"github.com/bitechdev/CacheSpec/pkg/store"
)

var (
	// ErrCycleDetected reports that the dependency graph reached an
	// already-visited key during traversal. The traversal still completes
	// over the acyclic reachable set before this is returned.
	ErrCycleDetected = errors.New("dependency cycle detected")

	// ErrTraversalLimit reports that a cascade touched more keys than the
	// configured bound allows.
	ErrTraversalLimit = errors.New("dependency traversal limit exceeded")
)

// DefaultMaxTraversal bounds the number of keys one cascade may touch.
const DefaultMaxTraversal = 10000

// Producer computes the value for one dependent key.
type Producer func(ctx context.Context, key string) (any, error)

// Graph maintains the reverse dependency index.
type Graph struct {
	s            store.Store
	meta         *metadata.Store
	maxTraversal int
}

// NewGraph creates a dependency graph on top of the given store.
func NewGraph(s store.Store, meta *metadata.Store) *Graph {
	return &Graph{s: s, meta: meta, maxTraversal: DefaultMaxTraversal}
}

// SetMaxTraversal overrides the traversal bound. Values below 1 are ignored.
func (g *Graph) SetMaxTraversal(n int) {
	if n >= 1 {
		g.maxTraversal = n
	}
}

// DependsOn registers key as a dependent of each given dependency.
// Registration is idempotent.
func (g *Graph) DependsOn(ctx context.Context, key string, dependencies ...string) error {
	for _, dep := range dependencies {
		if err := store.AppendUnique(ctx, g.s, store.DependentsKey(dep), key); err != nil {
			return fmt.Errorf("registering %s as dependent of %s: %w", key, dep, err)
		}
	}
	return nil
}

// Dependents returns the keys registered as depending on key. An unknown
// key yields an empty set.
func (g *Graph) Dependents(ctx context.Context, key string) ([]string, error) {
	return store.ReadList(ctx, g.s, store.DependentsKey(key))
}

// RemoveDependent unregisters dependent from key's dependents record.
func (g *Graph) RemoveDependent(ctx context.Context, key, dependent string) error {
	return store.RemoveValue(ctx, g.s, store.DependentsKey(key), dependent)
}

// InvalidateWithDependencies deletes key, every transitive dependent of
// key, their metadata, and the visited dependents records. It returns the
// number of keys invalidated.
//
// A cycle in the graph does not prevent the reachable set from being
// invalidated; it is reported afterwards as ErrCycleDetected.
func (g *Graph) InvalidateWithDependencies(ctx context.Context, key string) (int, error) {
	count := 0
	err := g.walk(ctx, key, func(ctx context.Context, k string) error {
		if err := g.s.Delete(ctx, store.Plain(k)); err != nil {
			return fmt.Errorf("invalidating %s: %w", k, err)
		}
		if err := g.meta.Delete(ctx, k); err != nil {
			return fmt.Errorf("deleting metadata for %s: %w", k, err)
		}
		if err := g.s.Delete(ctx, store.DependentsKey(k)); err != nil {
			return fmt.Errorf("deleting dependents record for %s: %w", k, err)
		}
		count++
		return nil
	})

	if count > 0 {
		logger.Debug("Invalidated %d keys starting from %s", count, key)
	}
	return count, err
}

// RecomputeDependents recomputes every transitive dependent of key using
// producer and rewrites it with ttl. The root key itself is not recomputed.
// It returns the number of dependents recomputed.
func (g *Graph) RecomputeDependents(ctx context.Context, key string, producer Producer, ttl time.Duration) (int, error) {
	count := 0
	err := g.walk(ctx, key, func(ctx context.Context, k string) error {
		if k == key {
			return nil
		}

		value, err := producer(ctx, k)
		if err != nil {
			return fmt.Errorf("producer failed for %s: %w", k, err)
		}

		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to serialize %s: %w", k, err)
		}

		if err := g.s.Set(ctx, store.Plain(k), data, ttl); err != nil {
			return err
		}
		if err := g.meta.Touch(ctx, k, ttl); err != nil {
			return err
		}
		count++
		return nil
	})

	return count, err
}

// walk visits key and its transitive dependents breadth-first, applying
// visit to each. Dependents records are read before visit runs so visit may
// delete them.
func (g *Graph) walk(ctx context.Context, key string, visit func(context.Context, string) error) error {
	visited := map[string]struct{}{key: {}}
	queue := []string{key}
	cycle := false

	for len(queue) > 0 {
		if len(visited) > g.maxTraversal {
			return fmt.Errorf("cascade from %s: %w (limit %d)", key, ErrTraversalLimit, g.maxTraversal)
		}

		current := queue[0]
		queue = queue[1:]

		dependents, err := g.Dependents(ctx, current)
		if err != nil {
			return err
		}

		if err := visit(ctx, current); err != nil {
			return err
		}

		for _, dep := range dependents {
			// An edge back to the origin or to the node itself is a cycle.
			// Other re-encounters are diamonds: legal, skipped silently.
			if dep == key || dep == current {
				cycle = true
				continue
			}
			if _, seen := visited[dep]; seen {
				continue
			}
			visited[dep] = struct{}{}
			queue = append(queue, dep)
		}
	}

	if cycle {
		return fmt.Errorf("cascade from %s: %w", key, ErrCycleDetected)
	}
	return nil
}
