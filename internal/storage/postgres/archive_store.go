// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/korostylevkirill70-stack/tgstat-parser/internal/scrape"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ArchiveStoreConfig controls the Postgres connection pool used for archived
// task rows.
type ArchiveStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// ArchiveStore writes one durable row per completed parsing task.
type ArchiveStore struct {
	pool  execCloser
	table string
}

var _ scrape.Archiver = (*ArchiveStore)(nil)

// NewArchiveStore creates a Postgres-backed ArchiveStore using the config.
func NewArchiveStore(ctx context.Context, cfg ArchiveStoreConfig) (*ArchiveStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "parsing_results"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ArchiveStore{pool: pool, table: table}, nil
}

// NewArchiveStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewArchiveStoreWithPool(pool execCloser, table string) (*ArchiveStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "parsing_results"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ArchiveStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *ArchiveStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Archive inserts the completed-task row. Results and listing types are
// stored as JSONB.
func (s *ArchiveStore) Archive(ctx context.Context, record scrape.ArchiveRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("archive store is not configured")
	}
	if record.TaskID == "" {
		return fmt.Errorf("task id is required")
	}
	resultsJSON, err := json.Marshal(record.Results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	listingTypesJSON, err := json.Marshal(record.ListingTypes)
	if err != nil {
		return fmt.Errorf("marshal listing types: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	task_id,
	category,
	listing_types,
	max_pages,
	results,
	created_at,
	completed_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
)`, s.table)

	args := []any{
		record.TaskID,
		record.Category,
		listingTypesJSON,
		record.MaxPages,
		resultsJSON,
		record.CreatedAt,
		record.CompletedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert archived task: %w", err)
	}
	return nil
}
