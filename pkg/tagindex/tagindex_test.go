package tagindex

import (
	"context"
	"testing"
	"time"

	"github.com/bitechdev/CacheSpec/pkg/metadata"
	"github.com/bitechdev/CacheSpec/pkg/store"
)

func newTestIndex() (*Index, *store.MemoryProvider, *metadata.Store) {
	s := store.NewMemoryProvider(nil)
	meta := metadata.NewStore(s)
	return NewIndex(s, meta), s, meta
}

func TestTagAndKeys(t *testing.T) {
	ix, _, _ := newTestIndex()
	ctx := context.Background()

	if err := ix.Tag(ctx, "user:1", "users"); err != nil {
		t.Fatalf("Tag failed: %v", err)
	}
	if err := ix.Tag(ctx, "user:2", "users"); err != nil {
		t.Fatalf("Tag failed: %v", err)
	}

	keys, err := ix.Keys(ctx, "users")
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 2 || keys[0] != "user:1" || keys[1] != "user:2" {
		t.Errorf("Expected [user:1 user:2], got %v", keys)
	}
}

func TestTagIsIdempotent(t *testing.T) {
	ix, _, _ := newTestIndex()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := ix.Tag(ctx, "user:1", "users"); err != nil {
			t.Fatalf("Tag failed: %v", err)
		}
	}

	keys, err := ix.Keys(ctx, "users")
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 1 {
		t.Errorf("Repeated tagging should keep one membership, got %v", keys)
	}
}

func TestUnknownTagYieldsEmptySet(t *testing.T) {
	ix, _, _ := newTestIndex()

	keys, err := ix.Keys(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("Expected empty set for unknown tag, got %v", keys)
	}
}

func TestUntag(t *testing.T) {
	ix, s, _ := newTestIndex()
	ctx := context.Background()

	ix.Tag(ctx, "user:1", "users")
	ix.Tag(ctx, "user:2", "users")
	s.Set(ctx, store.Plain("user:1"), []byte(`1`), 0)

	if err := ix.Untag(ctx, "user:1", "users"); err != nil {
		t.Fatalf("Untag failed: %v", err)
	}

	keys, _ := ix.Keys(ctx, "users")
	if len(keys) != 1 || keys[0] != "user:2" {
		t.Errorf("Expected [user:2], got %v", keys)
	}

	// Untag removes membership only, not the entry itself.
	if !s.Exists(ctx, store.Plain("user:1")) {
		t.Error("Untag must not delete the cache entry")
	}
}

func TestClearTagDeletesEntriesAndMetadata(t *testing.T) {
	ix, s, meta := newTestIndex()
	ctx := context.Background()

	for _, key := range []string{"user:1", "user:2"} {
		s.Set(ctx, store.Plain(key), []byte(`1`), time.Minute)
		meta.Touch(ctx, key, time.Minute)
		ix.Tag(ctx, key, "users")
	}

	if err := ix.ClearTag(ctx, "users"); err != nil {
		t.Fatalf("ClearTag failed: %v", err)
	}

	for _, key := range []string{"user:1", "user:2"} {
		if s.Exists(ctx, store.Plain(key)) {
			t.Errorf("Entry %s should be gone after ClearTag", key)
		}
		if _, err := meta.Get(ctx, key); err == nil {
			t.Errorf("Metadata for %s should be gone after ClearTag", key)
		}
	}

	keys, _ := ix.Keys(ctx, "users")
	if len(keys) != 0 {
		t.Errorf("Tag record should be empty after ClearTag, got %v", keys)
	}
}

func TestStats(t *testing.T) {
	ix, s, _ := newTestIndex()
	ctx := context.Background()

	now := time.Now()
	s.SetClock(func() time.Time { return now })

	s.Set(ctx, store.Plain("a"), []byte(`1`), 10*time.Second)
	s.Set(ctx, store.Plain("b"), []byte(`2`), 30*time.Second)
	ix.Tag(ctx, "a", "grp")
	ix.Tag(ctx, "b", "grp")
	ix.Tag(ctx, "gone", "grp") // member with no live entry

	stats, err := ix.Stats(ctx, "grp")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Count != 2 {
		t.Errorf("Expected 2 live members, got %d", stats.Count)
	}
	if stats.MinTTL != 10*time.Second || stats.MaxTTL != 30*time.Second {
		t.Errorf("Expected min 10s max 30s, got min %v max %v", stats.MinTTL, stats.MaxTTL)
	}
	if stats.AvgTTL != 20*time.Second {
		t.Errorf("Expected avg 20s, got %v", stats.AvgTTL)
	}
}

func TestAnalyticsPriority(t *testing.T) {
	ix, s, meta := newTestIndex()
	ctx := context.Background()

	now := time.Now()
	s.SetClock(func() time.Time { return now })

	s.Set(ctx, store.Plain("hot"), []byte(`1`), 10*time.Second)
	ix.Tag(ctx, "hot", "grp")
	for i := 0; i < 20; i++ {
		meta.IncrementAccess(ctx, "hot")
	}

	a, err := ix.Analytics(ctx, "grp")
	if err != nil {
		t.Fatalf("Analytics failed: %v", err)
	}
	if a.TotalAccess != 20 {
		t.Errorf("Expected total access 20, got %d", a.TotalAccess)
	}
	if a.Priority != 2 {
		t.Errorf("Expected priority 20/10s = 2, got %v", a.Priority)
	}
}

func TestCrossAnalyticsDeduplicates(t *testing.T) {
	ix, s, meta := newTestIndex()
	ctx := context.Background()

	s.Set(ctx, store.Plain("shared"), []byte(`1`), time.Minute)
	ix.Tag(ctx, "shared", "a")
	ix.Tag(ctx, "shared", "b")
	meta.IncrementAccess(ctx, "shared")

	a, err := ix.CrossAnalytics(ctx, "a", "b")
	if err != nil {
		t.Fatalf("CrossAnalytics failed: %v", err)
	}
	if a.Count != 1 {
		t.Errorf("Shared key should be counted once, got count %d", a.Count)
	}
	if a.TotalAccess != 1 {
		t.Errorf("Shared key's accesses should be counted once, got %d", a.TotalAccess)
	}
}
