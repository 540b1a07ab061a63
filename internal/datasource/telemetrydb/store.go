// Package telemetrydb is a compute inventory backed by a PostgreSQL table of
// resources and a table of CPU utilization telemetry.
package telemetrydb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// registers the "pgx" database/sql driver
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"

	"github.com/rshade/carbon-aware-sci/internal/carbon"
	"github.com/rshade/carbon-aware-sci/internal/datasource"
)

// Name is the data source name reported in logs and errors.
const Name = "telemetrydb"

// Schema is the DDL expected by Store.
//
//	compute_resources: one row per resource, keyed by name
//	cpu_utilization:   one row per sample; cpu_percent is 0-100
const Schema = `
CREATE TABLE IF NOT EXISTS compute_resources (
  name           TEXT PRIMARY KEY,
  region         TEXT NOT NULL,
  cloud_provider TEXT NOT NULL DEFAULT '',
  vm_size        TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS cpu_utilization (
  resource_name    TEXT             NOT NULL REFERENCES compute_resources(name),
  timestamp        TIMESTAMPTZ      NOT NULL,
  cpu_percent      DOUBLE PRECISION NOT NULL,
  duration_seconds INTEGER          NOT NULL
);
CREATE INDEX IF NOT EXISTS cpu_utilization_resource_ts ON cpu_utilization (resource_name, timestamp);
`

// Store implements datasource.ComputeInventory over a *sql.DB.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

var _ datasource.ComputeInventory = (*Store)(nil)

// Open connects to PostgreSQL through the pgx driver and verifies the
// connection.
func Open(ctx context.Context, dsn string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", Name, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: ping: %w", Name, err)
	}
	return New(db, logger), nil
}

// New wraps an existing *sql.DB.
func New(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{db: db, logger: logger.With().Str("source", Name).Logger()}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("%s: ensure schema: %w", Name, err)
	}
	return nil
}

// Name implements datasource.ComputeInventory.
func (s *Store) Name() string {
	return Name
}

// LookupResource implements datasource.ComputeInventory.
func (s *Store) LookupResource(ctx context.Context, resource carbon.ComputeResource) (datasource.ResourceInfo, error) {
	const q = `
SELECT region, cloud_provider, vm_size
FROM compute_resources
WHERE name = $1
`
	var info datasource.ResourceInfo
	err := s.db.QueryRowContext(ctx, q, resource.Name).Scan(
		&info.Location.RegionName,
		&info.Location.CloudProvider,
		&info.VMSize,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return datasource.ResourceInfo{}, fmt.Errorf("%s: resource %q: %w", Name, resource.Name, datasource.ErrNotFound)
	}
	if err != nil {
		return datasource.ResourceInfo{}, fmt.Errorf("%s: lookup resource: %w", Name, err)
	}
	return info, nil
}

// GetUtilization returns the samples of a resource overlapping [start, end),
// oldest first. Zero bounds are unbounded.
func (s *Store) GetUtilization(ctx context.Context, resource carbon.ComputeResource, start, end time.Time) ([]carbon.UtilizationSample, error) {
	base := `
SELECT timestamp, cpu_percent, duration_seconds
FROM cpu_utilization
WHERE resource_name = $1
`
	args := []any{resource.Name}
	argIdx := 2

	if !start.IsZero() {
		base += fmt.Sprintf(" AND timestamp + make_interval(secs => duration_seconds) > $%d", argIdx)
		args = append(args, start)
		argIdx++
	}
	if !end.IsZero() {
		base += fmt.Sprintf(" AND timestamp < $%d", argIdx)
		args = append(args, end)
	}
	base += " ORDER BY timestamp ASC"

	rows, err := s.db.QueryContext(ctx, base, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: query utilization: %w", Name, err)
	}
	defer rows.Close()

	var out []carbon.UtilizationSample
	for rows.Next() {
		var (
			ts      time.Time
			percent float64
			seconds int64
		)
		if err := rows.Scan(&ts, &percent, &seconds); err != nil {
			return nil, fmt.Errorf("%s: scan utilization: %w", Name, err)
		}
		out = append(out, carbon.UtilizationSample{
			Timestamp:      ts.UTC(),
			CPUUtilization: percent / 100,
			Duration:       time.Duration(seconds) * time.Second,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows error: %w", Name, err)
	}

	s.logger.Debug().
		Str("resource", resource.Name).
		Int("samples", len(out)).
		Msg("utilization fetched")
	return out, nil
}
