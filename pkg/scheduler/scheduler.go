// Package scheduler decides what to refresh next. It produces (key,
// producer, ttl) tasks for an external scheduler to execute on a wall-clock
// cadence; nothing here runs a timer. Persistently scheduled keys are
// backed by a durable marker store so they survive cache-wide clears.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/bitechdev/CacheSpec/pkg/analytics"
	"github.com/bitechdev/CacheSpec/pkg/hierarchy"
	"github.com/bitechdev/CacheSpec/pkg/logger"
	"github.com/bitechdev/CacheSpec/pkg/metadata"
	"github.com/bitechdev/CacheSpec/pkg/store"
	"github.com/bitechdev/CacheSpec/pkg/tagindex"
)

// Producer computes a fresh value for one key.
type Producer func(ctx context.Context, key string) (any, error)

// Task is one unit of refresh work for the external scheduler. The
// executor must guarantee at most one in-flight execution per key if the
// producer is not reentrant-safe.
type Task struct {
	ID       string
	Key      string
	TTL      time.Duration
	Producer Producer
}

// Planner selects refresh work from markers, tags and hierarchies.
type Planner struct {
	s       store.Store
	meta    *metadata.Store
	engine  *analytics.Engine
	tags    *tagindex.Index
	tree    *hierarchy.Index
	markers MarkerStore
	now     func() time.Time
}

// NewPlanner creates a planner over the given components.
func NewPlanner(s store.Store, meta *metadata.Store, engine *analytics.Engine, tags *tagindex.Index, tree *hierarchy.Index, markers MarkerStore) *Planner {
	return &Planner{
		s:       s,
		meta:    meta,
		engine:  engine,
		tags:    tags,
		tree:    tree,
		markers: markers,
		now:     time.Now,
	}
}

// SchedulePersistent computes the value for key if it is missing, stores it
// with ttl = interval, and records a durable marker so the key can be
// restored after a cache-wide clear.
func (p *Planner) SchedulePersistent(ctx context.Context, key string, interval time.Duration, producer Producer) error {
	if !p.s.Exists(ctx, store.Plain(key)) {
		if err := p.refresh(ctx, key, interval, producer); err != nil {
			return err
		}
	}

	marker := Marker{
		JobID:       uuid.NewString(),
		Key:         key,
		Interval:    interval,
		ScheduledAt: p.now(),
	}
	if err := p.markers.Put(ctx, marker); err != nil {
		return fmt.Errorf("persisting marker for %s: %w", key, err)
	}

	logger.Debug("Scheduled %s persistently every %s (job %s)", key, interval, marker.JobID)
	return nil
}

// Unschedule removes the durable marker for key. The cached entry is left
// alone.
func (p *Planner) Unschedule(ctx context.Context, key string) error {
	return p.markers.Delete(ctx, key)
}

// Plan returns a task for every marked key that is missing or inside the
// refresh window (remaining TTL below a quarter of its interval). The
// producer on each task re-stores the key with its marker interval.
func (p *Planner) Plan(ctx context.Context, producer Producer) ([]Task, error) {
	markers, err := p.markers.List(ctx)
	if err != nil {
		return nil, err
	}

	var tasks []Task
	for _, marker := range markers {
		remaining, ok := p.s.TTL(ctx, store.Plain(marker.Key))
		if ok && (remaining == 0 || remaining > marker.Interval/4) {
			continue
		}

		tasks = append(tasks, Task{
			ID:       marker.JobID,
			Key:      marker.Key,
			TTL:      marker.Interval,
			Producer: producer,
		})
	}
	return tasks, nil
}

// RestorePersistent recomputes every marked key that is absent from the
// store. Call it after a bulk clear. It returns the number of keys
// restored.
func (p *Planner) RestorePersistent(ctx context.Context, producer Producer) (int, error) {
	markers, err := p.markers.List(ctx)
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, marker := range markers {
		if p.s.Exists(ctx, store.Plain(marker.Key)) {
			continue
		}
		if err := p.refresh(ctx, marker.Key, marker.Interval, producer); err != nil {
			return restored, err
		}
		restored++
	}

	if restored > 0 {
		logger.Info("Restored %d persistently scheduled keys", restored)
	}
	return restored, nil
}

// PlanTagRefresh ranks the members of tag by refresh weight, descending,
// and returns tasks for the top n.
func (p *Planner) PlanTagRefresh(ctx context.Context, tag string, n int, ttl time.Duration, producer Producer) ([]Task, error) {
	keys, err := p.tags.Keys(ctx, tag)
	if err != nil {
		return nil, err
	}
	return p.topByWeight(ctx, keys, n, ttl, producer)
}

// PlanParentRefresh ranks the children of parent by refresh weight,
// descending, and returns tasks for the top n.
func (p *Planner) PlanParentRefresh(ctx context.Context, parent string, n int, ttl time.Duration, producer Producer) ([]Task, error) {
	children, err := p.tree.Children(ctx, parent)
	if err != nil {
		return nil, err
	}
	return p.topByWeight(ctx, children, n, ttl, producer)
}

func (p *Planner) topByWeight(ctx context.Context, keys []string, n int, ttl time.Duration, producer Producer) ([]Task, error) {
	weights, err := p.engine.AccessWeights(ctx, keys)
	if err != nil {
		return nil, err
	}

	ranked := make([]string, 0, len(weights))
	for key := range weights {
		ranked = append(ranked, key)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if weights[ranked[i]] != weights[ranked[j]] {
			return weights[ranked[i]] > weights[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})

	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}

	tasks := make([]Task, 0, len(ranked))
	for _, key := range ranked {
		tasks = append(tasks, Task{
			ID:       uuid.NewString(),
			Key:      key,
			TTL:      ttl,
			Producer: producer,
		})
	}
	return tasks, nil
}

// Execute runs a batch of tasks immediately on behalf of the external
// scheduler. Producer failures abort the batch and propagate.
func (p *Planner) Execute(ctx context.Context, tasks []Task) error {
	for _, task := range tasks {
		if err := p.refresh(ctx, task.Key, task.TTL, task.Producer); err != nil {
			return err
		}
	}
	return nil
}

func (p *Planner) refresh(ctx context.Context, key string, ttl time.Duration, producer Producer) error {
	value, err := producer(ctx, key)
	if err != nil {
		return fmt.Errorf("producer failed for %s: %w", key, err)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %w", key, err)
	}

	if err := p.s.Set(ctx, store.Plain(key), data, ttl); err != nil {
		return err
	}
	return p.meta.Touch(ctx, key, ttl)
}
