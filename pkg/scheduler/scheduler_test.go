package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitechdev/CacheSpec/pkg/analytics"
	"github.com/bitechdev/CacheSpec/pkg/hierarchy"
	"github.com/bitechdev/CacheSpec/pkg/metadata"
	"github.com/bitechdev/CacheSpec/pkg/store"
	"github.com/bitechdev/CacheSpec/pkg/tagindex"
)

type fixture struct {
	planner *Planner
	s       *store.MemoryProvider
	meta    *metadata.Store
	tags    *tagindex.Index
	tree    *hierarchy.Index
	markers *MemoryMarkerStore
}

func newFixture() *fixture {
	s := store.NewMemoryProvider(nil)
	meta := metadata.NewStore(s)
	engine := analytics.NewEngine(s, meta, nil)
	tags := tagindex.NewIndex(s, meta)
	tree := hierarchy.NewIndex(s, meta)
	markers := NewMemoryMarkerStore()
	return &fixture{
		planner: NewPlanner(s, meta, engine, tags, tree, markers),
		s:       s,
		meta:    meta,
		tags:    tags,
		tree:    tree,
		markers: markers,
	}
}

func countingProducer(calls *[]string) Producer {
	return func(ctx context.Context, key string) (any, error) {
		*calls = append(*calls, key)
		return "value:" + key, nil
	}
}

func TestSchedulePersistentComputesMissingKey(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	var calls []string
	err := f.planner.SchedulePersistent(ctx, "report", time.Minute, countingProducer(&calls))
	require.NoError(t, err)

	assert.Equal(t, []string{"report"}, calls)
	assert.True(t, f.s.Exists(ctx, store.Plain("report")))

	marker, ok, err := f.markers.Get(ctx, "report")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Minute, marker.Interval)
	assert.NotEmpty(t, marker.JobID)

	// The entry's TTL equals the refresh interval.
	remaining, ok := f.s.TTL(ctx, store.Plain("report"))
	assert.True(t, ok)
	assert.Greater(t, remaining, time.Duration(0))
}

func TestSchedulePersistentLeavesExistingValue(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.s.Set(ctx, store.Plain("report"), []byte(`"cached"`), time.Hour))

	var calls []string
	err := f.planner.SchedulePersistent(ctx, "report", time.Minute, countingProducer(&calls))
	require.NoError(t, err)
	assert.Empty(t, calls, "producer must not run when the key exists")
}

func TestMarkersSurviveClear(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	var calls []string
	producer := countingProducer(&calls)
	require.NoError(t, f.planner.SchedulePersistent(ctx, "a", time.Minute, producer))
	require.NoError(t, f.planner.SchedulePersistent(ctx, "b", time.Minute, producer))

	require.NoError(t, f.s.Clear(ctx))
	assert.False(t, f.s.Exists(ctx, store.Plain("a")))

	restored, err := f.planner.RestorePersistent(ctx, producer)
	require.NoError(t, err)
	assert.Equal(t, 2, restored)
	assert.True(t, f.s.Exists(ctx, store.Plain("a")))
	assert.True(t, f.s.Exists(ctx, store.Plain("b")))
}

func TestRestoreSkipsLiveKeys(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	var calls []string
	producer := countingProducer(&calls)
	require.NoError(t, f.planner.SchedulePersistent(ctx, "a", time.Minute, producer))
	calls = nil

	restored, err := f.planner.RestorePersistent(ctx, producer)
	require.NoError(t, err)
	assert.Zero(t, restored)
	assert.Empty(t, calls)
}

func TestPlanSelectsKeysInsideRefreshWindow(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	now := time.Now()
	f.s.SetClock(func() time.Time { return now })

	interval := time.Minute
	require.NoError(t, f.markers.Put(ctx, Marker{JobID: "j1", Key: "dying", Interval: interval}))
	require.NoError(t, f.markers.Put(ctx, Marker{JobID: "j2", Key: "healthy", Interval: interval}))
	require.NoError(t, f.markers.Put(ctx, Marker{JobID: "j3", Key: "missing", Interval: interval}))
	require.NoError(t, f.markers.Put(ctx, Marker{JobID: "j4", Key: "forever", Interval: interval}))

	// Inside the window: remaining < interval/4.
	f.s.Set(ctx, store.Plain("dying"), []byte(`1`), 10*time.Second)
	f.s.Set(ctx, store.Plain("healthy"), []byte(`1`), 50*time.Second)
	f.s.Set(ctx, store.Plain("forever"), []byte(`1`), 0)

	tasks, err := f.planner.Plan(ctx, countingProducer(new([]string)))
	require.NoError(t, err)

	keys := make(map[string]bool)
	for _, task := range tasks {
		keys[task.Key] = true
		assert.Equal(t, interval, task.TTL)
	}
	assert.Len(t, tasks, 2)
	assert.True(t, keys["dying"], "near-expiry key should be planned")
	assert.True(t, keys["missing"], "missing key should be planned")
}

func TestUnschedule(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	var calls []string
	require.NoError(t, f.planner.SchedulePersistent(ctx, "a", time.Minute, countingProducer(&calls)))
	require.NoError(t, f.planner.Unschedule(ctx, "a"))

	_, ok, err := f.markers.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPlanTagRefreshRanksByWeight(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	now := time.Now()
	f.s.SetClock(func() time.Time { return now })

	for _, key := range []string{"hot", "warm", "cold"} {
		require.NoError(t, f.s.Set(ctx, store.Plain(key), []byte(`1`), 10*time.Second))
		require.NoError(t, f.tags.Tag(ctx, key, "grp"))
	}
	for i := 0; i < 30; i++ {
		f.meta.IncrementAccess(ctx, "hot")
	}
	for i := 0; i < 10; i++ {
		f.meta.IncrementAccess(ctx, "warm")
	}

	tasks, err := f.planner.PlanTagRefresh(ctx, "grp", 2, time.Minute, countingProducer(new([]string)))
	require.NoError(t, err)

	require.Len(t, tasks, 2)
	assert.Equal(t, "hot", tasks[0].Key)
	assert.Equal(t, "warm", tasks[1].Key)
}

func TestPlanParentRefreshHonorsLimit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	for _, child := range []string{"a", "b", "c"} {
		require.NoError(t, f.tree.StoreUnderParent(ctx, "p", child, 1, time.Minute))
	}

	tasks, err := f.planner.PlanParentRefresh(ctx, "p", 2, time.Minute, countingProducer(new([]string)))
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestExecuteRunsTasks(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	var calls []string
	tasks := []Task{
		{ID: "1", Key: "a", TTL: time.Minute, Producer: countingProducer(&calls)},
		{ID: "2", Key: "b", TTL: time.Minute, Producer: countingProducer(&calls)},
	}

	require.NoError(t, f.planner.Execute(ctx, tasks))
	assert.Equal(t, []string{"a", "b"}, calls)
	assert.True(t, f.s.Exists(ctx, store.Plain("a")))
	assert.True(t, f.s.Exists(ctx, store.Plain("b")))

	// Refresh records metadata for later analytics.
	rec, err := f.meta.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, rec.OriginalTTL)
}

func TestMemoryMarkerStore(t *testing.T) {
	m := NewMemoryMarkerStore()
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, Marker{JobID: "j", Key: "a", Interval: time.Minute}))
	require.NoError(t, m.Put(ctx, Marker{JobID: "j2", Key: "a", Interval: time.Hour}))

	marker, ok, err := m.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Hour, marker.Interval, "Put replaces the marker for a key")

	list, err := m.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, m.Delete(ctx, "a"))
	require.NoError(t, m.Delete(ctx, "a")) // absent delete is a no-op

	_, ok, err = m.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}
