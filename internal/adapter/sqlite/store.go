// Package sqlite persists resolved elevations across runs so repeated
// coordinates never reach the remote elevation service twice.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/couchcryptid/incident-elevation-etl/internal/domain"
	"github.com/couchcryptid/incident-elevation-etl/internal/observability"
)

const schema = `
CREATE TABLE IF NOT EXISTS elevations (
	lat_e6     INTEGER  NOT NULL,
	lon_e6     INTEGER  NOT NULL,
	elevation  REAL     NOT NULL,
	fetched_at DATETIME NOT NULL,
	PRIMARY KEY (lat_e6, lon_e6)
)`

// Elevation is one persisted lookup.
type Elevation struct {
	LatE6     int64     `db:"lat_e6"`
	LonE6     int64     `db:"lon_e6"`
	Elevation float64   `db:"elevation"`
	FetchedAt time.Time `db:"fetched_at"`
}

// Store is a SQLite-backed elevation cache. It decorates another resolver:
// hits are served from disk and misses are fetched then written through.
type Store struct {
	db      *sqlx.DB
	inner   domain.ElevationResolver
	metrics *observability.Metrics
	logger  *slog.Logger
}

// Open creates or opens the cache database at path and ensures the schema exists.
func Open(ctx context.Context, path string, inner domain.ElevationResolver, metrics *observability.Metrics, logger *slog.Logger) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open elevation cache %s: %w", path, err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create elevation cache schema: %w", err)
	}

	return &Store{db: db, inner: inner, metrics: metrics, logger: logger}, nil
}

// ResolveElevation implements domain.ElevationResolver.
func (s *Store) ResolveElevation(ctx context.Context, lat, lon float64) (float64, error) {
	latE6, lonE6 := toMicro(lat), toMicro(lon)

	cached, err := s.Get(ctx, latE6, lonE6)
	switch {
	case err == nil:
		s.metrics.ElevationCache.WithLabelValues("sqlite", "hit").Inc()
		return cached.Elevation, nil
	case !errors.Is(err, sql.ErrNoRows):
		// A broken cache should not fail the lookup.
		s.logger.Warn("elevation cache read failed", "lat", lat, "lon", lon, "error", err)
	}
	s.metrics.ElevationCache.WithLabelValues("sqlite", "miss").Inc()

	elevation, err := s.inner.ResolveElevation(ctx, lat, lon)
	if err != nil {
		return 0, err
	}

	if err := s.Put(ctx, Elevation{
		LatE6:     latE6,
		LonE6:     lonE6,
		Elevation: elevation,
		FetchedAt: domain.Now(),
	}); err != nil {
		s.logger.Warn("elevation cache write failed", "lat", lat, "lon", lon, "error", err)
	}
	return elevation, nil
}

// Get returns the cached elevation at a micro-degree coordinate, or sql.ErrNoRows.
func (s *Store) Get(ctx context.Context, latE6, lonE6 int64) (Elevation, error) {
	const query = `
		SELECT lat_e6, lon_e6, elevation, fetched_at
		FROM elevations
		WHERE lat_e6 = ? AND lon_e6 = ?`

	var e Elevation
	if err := s.db.GetContext(ctx, &e, query, latE6, lonE6); err != nil {
		return Elevation{}, err
	}
	return e, nil
}

// Put inserts or replaces a cached elevation.
func (s *Store) Put(ctx context.Context, e Elevation) error {
	const query = `
		INSERT INTO elevations (lat_e6, lon_e6, elevation, fetched_at)
		VALUES (:lat_e6, :lon_e6, :elevation, :fetched_at)
		ON CONFLICT (lat_e6, lon_e6) DO UPDATE SET
			elevation = excluded.elevation,
			fetched_at = excluded.fetched_at`

	if _, err := s.db.NamedExecContext(ctx, query, e); err != nil {
		return fmt.Errorf("upsert elevation: %w", err)
	}
	return nil
}

// Count returns the number of cached coordinates.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM elevations`); err != nil {
		return 0, fmt.Errorf("count elevations: %w", err)
	}
	return n, nil
}

// CheckReadiness reports whether the cache database is reachable.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func toMicro(deg float64) int64 {
	return int64(math.Round(deg * 1e6))
}
