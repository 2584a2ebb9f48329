// Package versions keeps multiple coexisting versions of a logical key,
// with fallback reads, promotion and archival.
//
// Layout per base key: each version's value lives in its own version slot,
// the "latest" pointer is a separate record, and the set of stored versions
// is tracked explicitly so counting never relies on store-side key scans.
package versions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/bitechdev/CacheSpec/pkg/logger"
	"github.com/bitechdev/CacheSpec/pkg/store"
)

var (
	// ErrNotFound is returned when no stored version satisfies a read.
	ErrNotFound = errors.New("version not found")

	// ErrNoVersions is returned when a base key has no versions at all.
	ErrNoVersions = errors.New("no versions stored")
)

// Producer computes a fresh value for a base key.
type Producer func(ctx context.Context) (any, error)

// Registry manages versioned keys.
type Registry struct {
	s store.Store
}

// NewRegistry creates a version registry on top of the given store.
func NewRegistry(s store.Store) *Registry {
	return &Registry{s: s}
}

// SetVersion writes value into the version slot of base and registers the
// version. The latest pointer advances when version exceeds it, so the
// pointer always names a version that exists.
func (r *Registry) SetVersion(ctx context.Context, base string, version int, value any, ttl time.Duration) error {
	if version < 1 {
		return fmt.Errorf("version must be >= 1, got %d", version)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to serialize %s v%d: %w", base, version, err)
	}

	if err := r.s.Set(ctx, store.VersionKey(base, version), data, ttl); err != nil {
		return fmt.Errorf("storing %s v%d: %w", base, version, err)
	}

	if err := r.registerVersion(ctx, base, version); err != nil {
		return err
	}

	latest, err := r.Latest(ctx, base)
	if err != nil && !errors.Is(err, ErrNoVersions) {
		return err
	}
	if version > latest {
		return r.setLatest(ctx, base, version)
	}
	return nil
}

// GetVersion reads one version of base into dest.
func (r *Registry) GetVersion(ctx context.Context, base string, version int, dest any) error {
	data, ok := r.s.Get(ctx, store.VersionKey(base, version))
	if !ok {
		return fmt.Errorf("%w: %s v%d", ErrNotFound, base, version)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to deserialize %s v%d: %w", base, version, err)
	}
	return nil
}

// GetVersionWithFallback reads version, falling back to fallbackVersion
// when the requested one is absent. Returns ErrNotFound when both are
// absent.
func (r *Registry) GetVersionWithFallback(ctx context.Context, base string, version, fallbackVersion int, dest any) error {
	err := r.GetVersion(ctx, base, version, dest)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return err
	}
	return r.GetVersion(ctx, base, fallbackVersion, dest)
}

// Latest returns the current latest-version pointer for base.
func (r *Registry) Latest(ctx context.Context, base string) (int, error) {
	data, ok := r.s.Get(ctx, store.VersionPtrKey(base))
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoVersions, base)
	}

	latest, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, fmt.Errorf("corrupt latest pointer for %s: %w", base, err)
	}
	return latest, nil
}

// GetLatest reads the version named by the latest pointer into dest.
func (r *Registry) GetLatest(ctx context.Context, base string, dest any) error {
	latest, err := r.Latest(ctx, base)
	if err != nil {
		return err
	}
	return r.GetVersion(ctx, base, latest, dest)
}

// RecomputeWithFallback scans versions from maxVersion down to 1 and
// returns the first stored value. When none exists, it invokes producer,
// stores the result at maxVersion, and returns it.
func (r *Registry) RecomputeWithFallback(ctx context.Context, base string, maxVersion int, producer Producer, ttl time.Duration) (json.RawMessage, error) {
	for version := maxVersion; version >= 1; version-- {
		if data, ok := r.s.Get(ctx, store.VersionKey(base, version)); ok {
			return data, nil
		}
	}

	value, err := producer(ctx)
	if err != nil {
		return nil, fmt.Errorf("producer failed for %s: %w", base, err)
	}

	if err := r.SetVersion(ctx, base, maxVersion, value, ttl); err != nil {
		return nil, err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s: %w", base, err)
	}
	return data, nil
}

// PromoteVersion makes version the latest for base. The version must exist;
// promotion only moves the pointer, so pointer and promoted value can never
// diverge.
func (r *Registry) PromoteVersion(ctx context.Context, base string, version int) error {
	if !r.s.Exists(ctx, store.VersionKey(base, version)) {
		return fmt.Errorf("cannot promote %s v%d: %w", base, version, ErrNotFound)
	}

	if err := r.setLatest(ctx, base, version); err != nil {
		return err
	}
	logger.Debug("Promoted %s to v%d", base, version)
	return nil
}

// ArchiveOldVersions deletes every version of base strictly older than
// latest minus keepLatest. It returns the number of versions deleted.
func (r *Registry) ArchiveOldVersions(ctx context.Context, base string, keepLatest int) (int, error) {
	latest, err := r.Latest(ctx, base)
	if err != nil {
		if errors.Is(err, ErrNoVersions) {
			return 0, nil
		}
		return 0, err
	}

	stored, err := r.versionSet(ctx, base)
	if err != nil {
		return 0, err
	}

	cutoff := latest - keepLatest
	deleted := 0
	for _, version := range stored {
		if version >= cutoff {
			continue
		}
		if err := r.s.Delete(ctx, store.VersionKey(base, version)); err != nil {
			return deleted, fmt.Errorf("archiving %s v%d: %w", base, version, err)
		}
		if err := r.unregisterVersion(ctx, base, version); err != nil {
			return deleted, err
		}
		deleted++
	}

	if deleted > 0 {
		logger.Debug("Archived %d versions of %s below v%d", deleted, base, cutoff)
	}
	return deleted, nil
}

// CountVersions returns the number of stored versions of base, from the
// explicit version set rather than a store-side key scan.
func (r *Registry) CountVersions(ctx context.Context, base string) (int, error) {
	stored, err := r.versionSet(ctx, base)
	if err != nil {
		return 0, err
	}
	return len(stored), nil
}

// Versions returns the stored versions of base in ascending order.
func (r *Registry) Versions(ctx context.Context, base string) ([]int, error) {
	return r.versionSet(ctx, base)
}

func (r *Registry) setLatest(ctx context.Context, base string, version int) error {
	if err := r.s.Set(ctx, store.VersionPtrKey(base), []byte(strconv.Itoa(version)), 0); err != nil {
		return fmt.Errorf("updating latest pointer for %s: %w", base, err)
	}
	return nil
}

func (r *Registry) registerVersion(ctx context.Context, base string, version int) error {
	return store.UpdateList(ctx, r.s, store.VersionSetKey(base), func(list []string) ([]string, bool) {
		v := strconv.Itoa(version)
		for _, existing := range list {
			if existing == v {
				return list, false
			}
		}
		return append(list, v), true
	})
}

func (r *Registry) unregisterVersion(ctx context.Context, base string, version int) error {
	return store.RemoveValue(ctx, r.s, store.VersionSetKey(base), strconv.Itoa(version))
}

func (r *Registry) versionSet(ctx context.Context, base string) ([]int, error) {
	list, err := store.ReadList(ctx, r.s, store.VersionSetKey(base))
	if err != nil {
		return nil, err
	}

	versions := make([]int, 0, len(list))
	for _, v := range list {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("corrupt version set for %s: %w", base, err)
		}
		versions = append(versions, n)
	}
	sort.Ints(versions)
	return versions, nil
}
