// Package postgres persists run history in Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/a11y-tracker/internal/store"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// RunStore implements store.RunRepository.
type RunStore struct {
	pool  pool
	table string
}

var _ store.RunRepository = (*RunStore)(nil)

// NewRunStore connects to Postgres.
func NewRunStore(ctx context.Context, cfg Config) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("history.dsn is required")
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewRunStoreWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewRunStoreWithPool wraps an existing pool.
func NewRunStoreWithPool(p pool, table string) (*RunStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if table == "" {
		table = "a11y_runs"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RunStore{pool: p, table: table}, nil
}

// Close releases the pool.
func (s *RunStore) Close() {
	s.pool.Close()
}

// Migrate creates the runs table when it is missing.
func (s *RunStore) Migrate(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id            UUID PRIMARY KEY,
			site          TEXT NOT NULL,
			target_url    TEXT NOT NULL DEFAULT '',
			started_at    TIMESTAMPTZ NOT NULL,
			finished_at   TIMESTAMPTZ,
			status        TEXT NOT NULL,
			stage         TEXT NOT NULL,
			records       BIGINT NOT NULL DEFAULT 0,
			total         BIGINT NOT NULL DEFAULT 0,
			score         DOUBLE PRECISION,
			sheet_url     TEXT NOT NULL DEFAULT '',
			error_message TEXT
		);
		CREATE INDEX IF NOT EXISTS %[1]s_site_started_idx ON %[1]s (site, started_at DESC);`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("migrate %s: %w", s.table, err)
	}
	return nil
}

// StartRun inserts a running row.
func (s *RunStore) StartRun(ctx context.Context, id uuid.UUID, site, targetURL string, startedAt time.Time) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, site, target_url, started_at, status, stage)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING;`, s.table)
	_, err := s.pool.Exec(ctx, query, id, site, targetURL, startedAt, string(store.RunRunning), "locked")
	if err != nil {
		return fmt.Errorf("insert run start: %w", err)
	}
	return nil
}

// FinishRun upserts the final row; contended runs never had a start row.
func (s *RunStore) FinishRun(ctx context.Context, run store.Run) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, site, target_url, started_at, finished_at, status, stage,
			records, total, score, sheet_url, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			status = EXCLUDED.status,
			stage = EXCLUDED.stage,
			records = EXCLUDED.records,
			total = EXCLUDED.total,
			score = EXCLUDED.score,
			sheet_url = EXCLUDED.sheet_url,
			error_message = EXCLUDED.error_message;`, s.table)
	_, err := s.pool.Exec(ctx, query,
		run.ID,
		run.Site,
		run.TargetURL,
		run.StartedAt,
		run.FinishedAt,
		string(run.Status),
		run.Stage,
		run.Records,
		run.Total,
		run.Score,
		run.SheetURL,
		run.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("upsert run finish: %w", err)
	}
	return nil
}

const runColumns = `id, site, target_url, started_at, finished_at, status, stage,
	records, total, score, sheet_url, error_message`

// GetRun loads one run.
func (s *RunStore) GetRun(ctx context.Context, id uuid.UUID) (store.Run, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1;`, runColumns, s.table)
	run, err := scanRun(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *RunStore) ListRuns(ctx context.Context, filter store.RunFilter) ([]store.Run, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE ($1 = '' OR site = $1) AND ($2 = '' OR status = $2)
		ORDER BY started_at DESC
		LIMIT $3 OFFSET $4;`, runColumns, s.table)
	rows, err := s.pool.Query(ctx, query, filter.Site, string(filter.Status), limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (store.Run, error) {
	var (
		run    store.Run
		status string
	)
	err := row.Scan(
		&run.ID,
		&run.Site,
		&run.TargetURL,
		&run.StartedAt,
		&run.FinishedAt,
		&status,
		&run.Stage,
		&run.Records,
		&run.Total,
		&run.Score,
		&run.SheetURL,
		&run.ErrorMessage,
	)
	run.Status = store.RunStatus(status)
	return run, err
}
