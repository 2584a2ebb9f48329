package hierarchy

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/bitechdev/CacheSpec/pkg/metadata"
	"github.com/bitechdev/CacheSpec/pkg/store"
)

func newTestIndex() (*Index, *store.MemoryProvider, *metadata.Store) {
	s := store.NewMemoryProvider(nil)
	meta := metadata.NewStore(s)
	return NewIndex(s, meta), s, meta
}

func TestStoreUnderParentAndChildren(t *testing.T) {
	ix, s, _ := newTestIndex()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		child := fmt.Sprintf("order:%d", i)
		if err := ix.StoreUnderParent(ctx, "account:7", child, map[string]int{"n": i}, time.Minute); err != nil {
			t.Fatalf("StoreUnderParent failed: %v", err)
		}
	}

	children, err := ix.Children(ctx, "account:7")
	if err != nil {
		t.Fatalf("Children failed: %v", err)
	}
	// Registration order is preserved.
	want := []string{"order:1", "order:2", "order:3"}
	if len(children) != len(want) {
		t.Fatalf("Expected %d children, got %v", len(want), children)
	}
	for i, child := range want {
		if children[i] != child {
			t.Errorf("Expected child %s at position %d, got %s", child, i, children[i])
		}
	}

	if !s.Exists(ctx, store.Plain("order:2")) {
		t.Error("Child entry should exist")
	}
}

func TestReStoringChildKeepsSingleRegistration(t *testing.T) {
	ix, _, _ := newTestIndex()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := ix.StoreUnderParent(ctx, "p", "c", i, time.Minute); err != nil {
			t.Fatalf("StoreUnderParent failed: %v", err)
		}
	}

	children, _ := ix.Children(ctx, "p")
	if len(children) != 1 {
		t.Errorf("Re-storing should not duplicate registration, got %v", children)
	}
}

func TestClearParentCascades(t *testing.T) {
	ix, s, meta := newTestIndex()
	ctx := context.Background()

	ix.StoreUnderParent(ctx, "p", "a", 1, time.Minute)
	ix.StoreUnderParent(ctx, "p", "b", 2, time.Minute)

	if err := ix.ClearParent(ctx, "p"); err != nil {
		t.Fatalf("ClearParent failed: %v", err)
	}

	for _, child := range []string{"a", "b"} {
		if s.Exists(ctx, store.Plain(child)) {
			t.Errorf("Child %s should be gone after ClearParent", child)
		}
		if _, err := meta.Get(ctx, child); err == nil {
			t.Errorf("Metadata for %s should be gone after ClearParent", child)
		}
	}

	children, _ := ix.Children(ctx, "p")
	if len(children) != 0 {
		t.Errorf("Child set should be empty after ClearParent, got %v", children)
	}
}

func TestRemoveChildKeepsEntry(t *testing.T) {
	ix, s, _ := newTestIndex()
	ctx := context.Background()

	ix.StoreUnderParent(ctx, "p", "a", 1, time.Minute)
	if err := ix.RemoveChild(ctx, "p", "a"); err != nil {
		t.Fatalf("RemoveChild failed: %v", err)
	}

	children, _ := ix.Children(ctx, "p")
	if len(children) != 0 {
		t.Errorf("Expected no children, got %v", children)
	}
	if !s.Exists(ctx, store.Plain("a")) {
		t.Error("RemoveChild must not delete the entry")
	}
}

func TestRecomputeChildren(t *testing.T) {
	ix, s, _ := newTestIndex()
	ctx := context.Background()

	ix.StoreUnderParent(ctx, "p", "a", "old", time.Minute)
	ix.StoreUnderParent(ctx, "p", "b", "old", time.Minute)

	produced := 0
	n, err := ix.RecomputeChildren(ctx, "p", func(ctx context.Context, child string) (any, error) {
		produced++
		return "new:" + child, nil
	}, time.Minute)
	if err != nil {
		t.Fatalf("RecomputeChildren failed: %v", err)
	}
	if n != 2 || produced != 2 {
		t.Errorf("Expected 2 recomputes, got n=%d produced=%d", n, produced)
	}

	data, _ := s.Get(ctx, store.Plain("a"))
	var value string
	json.Unmarshal(data, &value)
	if value != "new:a" {
		t.Errorf("Expected new:a, got %s", value)
	}
}

func TestRefreshChildrenBelowTTL(t *testing.T) {
	ix, s, _ := newTestIndex()
	ctx := context.Background()

	now := time.Now()
	s.SetClock(func() time.Time { return now })

	ix.StoreUnderParent(ctx, "p", "dying", 1, 5*time.Second)
	ix.StoreUnderParent(ctx, "p", "healthy", 2, time.Hour)
	ix.StoreUnderParent(ctx, "p", "forever", 3, 0)
	store.AppendUnique(ctx, s, store.ChildrenKey("p"), "missing")

	var refreshed []string
	n, err := ix.RefreshChildrenBelowTTL(ctx, "p", func(ctx context.Context, child string) (any, error) {
		refreshed = append(refreshed, child)
		return "fresh", nil
	}, time.Minute, 30*time.Second)
	if err != nil {
		t.Fatalf("RefreshChildrenBelowTTL failed: %v", err)
	}

	// Only the near-expiry child and the missing child refresh; the healthy
	// and never-expiring children are left alone.
	if n != 2 {
		t.Fatalf("Expected 2 refreshes, got %d (%v)", n, refreshed)
	}
	if refreshed[0] != "dying" || refreshed[1] != "missing" {
		t.Errorf("Expected [dying missing], got %v", refreshed)
	}
}

func TestRefreshChildrenIf(t *testing.T) {
	ix, s, _ := newTestIndex()
	ctx := context.Background()

	ix.StoreUnderParent(ctx, "p", "stale", map[string]any{"version": 1}, time.Minute)
	ix.StoreUnderParent(ctx, "p", "current", map[string]any{"version": 2}, time.Minute)
	store.AppendUnique(ctx, s, store.ChildrenKey("p"), "missing")

	predicate := JSONPathPredicate("version", func(r gjson.Result) bool {
		return r.Int() < 2
	})

	var refreshed []string
	n, err := ix.RefreshChildrenIf(ctx, "p", func(ctx context.Context, child string) (any, error) {
		refreshed = append(refreshed, child)
		return map[string]any{"version": 2}, nil
	}, time.Minute, predicate)
	if err != nil {
		t.Fatalf("RefreshChildrenIf failed: %v", err)
	}

	if n != 2 {
		t.Fatalf("Expected 2 refreshes, got %d (%v)", n, refreshed)
	}
	if refreshed[0] != "stale" || refreshed[1] != "missing" {
		t.Errorf("Expected [stale missing], got %v", refreshed)
	}
}

func TestJSONPathPredicateUnresolvedPathIsStale(t *testing.T) {
	predicate := JSONPathPredicate("deep.field", func(r gjson.Result) bool {
		return false
	})
	if !predicate(json.RawMessage(`{"other": 1}`)) {
		t.Error("Unresolved path should be treated as stale")
	}
}
