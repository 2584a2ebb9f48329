package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// markerRow is the bun model backing the SQLite marker store.
type markerRow struct {
	bun.BaseModel `bun:"table:cache_markers"`

	Key         string `bun:"key,pk"`
	JobID       string `bun:"job_id,notnull"`
	IntervalNS  int64  `bun:"interval_ns,notnull"`
	ScheduledAt int64  `bun:"scheduled_at,notnull"`
}

// SQLiteMarkerStore persists markers in a SQLite database through bun, so
// persistently scheduled keys survive both cache clears and process
// restarts.
type SQLiteMarkerStore struct {
	db *bun.DB
}

// NewSQLiteMarkerStore opens (or creates) path and ensures the marker
// table exists. Use ":memory:" for an ephemeral store.
func NewSQLiteMarkerStore(ctx context.Context, path string) (*SQLiteMarkerStore, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, path)
	if err != nil {
		return nil, fmt.Errorf("opening marker store at %s: %w", path, err)
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())

	if _, err := db.NewCreateTable().
		Model((*markerRow)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating marker table: %w", err)
	}

	return &SQLiteMarkerStore{db: db}, nil
}

// Put stores or replaces the marker for its key.
func (s *SQLiteMarkerStore) Put(ctx context.Context, marker Marker) error {
	row := &markerRow{
		Key:         marker.Key,
		JobID:       marker.JobID,
		IntervalNS:  int64(marker.Interval),
		ScheduledAt: marker.ScheduledAt.UnixNano(),
	}

	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (key) DO UPDATE").
		Set("job_id = EXCLUDED.job_id").
		Set("interval_ns = EXCLUDED.interval_ns").
		Set("scheduled_at = EXCLUDED.scheduled_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("storing marker for %s: %w", marker.Key, err)
	}
	return nil
}

// Get returns the marker for a key.
func (s *SQLiteMarkerStore) Get(ctx context.Context, key string) (Marker, bool, error) {
	row := new(markerRow)
	err := s.db.NewSelect().
		Model(row).
		Where("key = ?", key).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return Marker{}, false, nil
	}
	if err != nil {
		return Marker{}, false, fmt.Errorf("reading marker for %s: %w", key, err)
	}
	return rowToMarker(row), true, nil
}

// List returns all markers.
func (s *SQLiteMarkerStore) List(ctx context.Context) ([]Marker, error) {
	var rows []markerRow
	if err := s.db.NewSelect().
		Model(&rows).
		Order("key ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("listing markers: %w", err)
	}

	markers := make([]Marker, 0, len(rows))
	for i := range rows {
		markers = append(markers, rowToMarker(&rows[i]))
	}
	return markers, nil
}

// Delete removes the marker for a key.
func (s *SQLiteMarkerStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.NewDelete().
		Model((*markerRow)(nil)).
		Where("key = ?", key).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("deleting marker for %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteMarkerStore) Close() error {
	return s.db.Close()
}

func rowToMarker(row *markerRow) Marker {
	return Marker{
		JobID:       row.JobID,
		Key:         row.Key,
		Interval:    time.Duration(row.IntervalNS),
		ScheduledAt: time.Unix(0, row.ScheduledAt),
	}
}
