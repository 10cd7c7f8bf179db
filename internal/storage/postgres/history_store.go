// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/progress-poller/internal/store"
)

// Schema holds the DDL statements for the poll history tables, applied in order
// by EnsureSchema.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS poll_sessions (
	id            UUID PRIMARY KEY,
	job_id        TEXT NOT NULL,
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ,
	result        TEXT NOT NULL,
	error_message TEXT
)`,
	`CREATE TABLE IF NOT EXISTS poll_ticks (
	session_id  UUID NOT NULL REFERENCES poll_sessions(id) ON DELETE CASCADE,
	seq         INTEGER NOT NULL,
	at          TIMESTAMPTZ NOT NULL,
	progress    DOUBLE PRECISION NOT NULL,
	message     TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	failed      BOOLEAN NOT NULL,
	note        TEXT NOT NULL,
	duration_ms BIGINT NOT NULL,
	PRIMARY KEY (session_id, seq)
)`,
	`CREATE INDEX IF NOT EXISTS poll_sessions_job_id_idx ON poll_sessions (job_id, started_at DESC)`,
}

// HistoryStoreConfig controls the Postgres connection pool used for poll history.
type HistoryStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// HistoryStore implements store.HistoryRepository using Postgres.
type HistoryStore struct {
	pool pool
}

var _ store.HistoryRepository = (*HistoryStore)(nil)

// NewHistoryStore connects a pgxpool using cfg.
func NewHistoryStore(ctx context.Context, cfg HistoryStoreConfig) (*HistoryStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
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
	return &HistoryStore{pool: p}, nil
}

// NewHistoryStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewHistoryStoreWithPool(p pool) (*HistoryStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &HistoryStore{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *HistoryStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the history tables when they are missing.
func (s *HistoryStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range Schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// StartSession inserts a running session row.
func (s *HistoryStore) StartSession(ctx context.Context, sessionID uuid.UUID, jobID string, startedAt time.Time) error {
	const query = `
		INSERT INTO poll_sessions (id, job_id, started_at, result)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING;
	`
	if _, err := s.pool.Exec(ctx, query, sessionID, jobID, startedAt, string(store.ResultRunning)); err != nil {
		return fmt.Errorf("insert poll session: %w", err)
	}
	return nil
}

// RecordTick upserts one tick row keyed by (session_id, seq).
func (s *HistoryStore) RecordTick(ctx context.Context, tick store.Tick) error {
	if tick.Seq < 1 {
		return fmt.Errorf("tick seq must be >= 1, got %d", tick.Seq)
	}
	const query = `
		INSERT INTO poll_ticks (session_id, seq, at, progress, message, status_code, failed, note, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id, seq) DO UPDATE
		SET at = EXCLUDED.at,
			progress = EXCLUDED.progress,
			message = EXCLUDED.message,
			status_code = EXCLUDED.status_code,
			failed = EXCLUDED.failed,
			note = EXCLUDED.note,
			duration_ms = EXCLUDED.duration_ms;
	`
	_, err := s.pool.Exec(
		ctx,
		query,
		tick.SessionID,
		tick.Seq,
		tick.At,
		tick.Progress,
		tick.Message,
		tick.StatusCode,
		tick.Failed,
		tick.Note,
		tick.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert poll tick: %w", err)
	}
	return nil
}

// FinishSession stamps finished_at and result on a session.
func (s *HistoryStore) FinishSession(
	ctx context.Context,
	sessionID uuid.UUID,
	finishedAt time.Time,
	result store.SessionResult,
	errMsg *string,
) error {
	const query = `
		UPDATE poll_sessions
		SET finished_at = $1, result = $2, error_message = $3
		WHERE id = $4;
	`
	tag, err := s.pool.Exec(ctx, query, finishedAt, string(result), errMsg, sessionID)
	if err != nil {
		return fmt.Errorf("finish poll session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListTicks returns up to limit ticks for a session ordered by seq. A
// non-positive limit returns every tick.
func (s *HistoryStore) ListTicks(ctx context.Context, sessionID uuid.UUID, limit int) ([]store.Tick, error) {
	query := `
		SELECT session_id, seq, at, progress, message, status_code, failed, note, duration_ms
		FROM poll_ticks
		WHERE session_id = $1
		ORDER BY seq ASC`
	args := []any{sessionID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list poll ticks: %w", err)
	}
	defer rows.Close()

	var ticks []store.Tick
	for rows.Next() {
		var (
			tick  store.Tick
			durMS int64
		)
		err := rows.Scan(
			&tick.SessionID,
			&tick.Seq,
			&tick.At,
			&tick.Progress,
			&tick.Message,
			&tick.StatusCode,
			&tick.Failed,
			&tick.Note,
			&durMS,
		)
		if err != nil {
			return nil, fmt.Errorf("scan poll tick: %w", err)
		}
		tick.Duration = time.Duration(durMS) * time.Millisecond
		ticks = append(ticks, tick)
	}
	if err := rows.Err(); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ticks, nil
		}
		return nil, fmt.Errorf("iterate poll ticks: %w", err)
	}
	return ticks, nil
}
