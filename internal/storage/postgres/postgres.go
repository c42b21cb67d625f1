// Package postgres registers the PostgreSQL backend (pgx connection pool).
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/modreports/internal/report"
	"github.com/JonMunkholm/modreports/internal/storage"
)

func init() {
	storage.Register("postgres", New)
}

// Store implements storage.Store over a pgx pool.
type Store struct {
	pool  *pgxpool.Pool
	table string

	selectAll      string
	selectByTarget string
}

// New parses cfg.DSN, applies the pool limits and pings the server.
func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return NewFromPool(pool, cfg.TableName()), nil
}

// NewFromPool wraps an existing pool.
func NewFromPool(pool *pgxpool.Pool, table string) *Store {
	return &Store{
		pool:           pool,
		table:          table,
		selectAll:      storage.SelectReports(storage.Postgres, table, false, asText),
		selectByTarget: storage.SelectReports(storage.Postgres, table, true, asText),
	}
}

// asText lets reports be read from tables whose columns are typed
// (timestamptz, uuid) rather than text.
func asText(col string) string { return col + "::text" }

func (s *Store) Dialect() storage.Dialect { return storage.Postgres }

const columnsQuery = `
SELECT column_name
FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = $1
ORDER BY ordinal_position`

func (s *Store) Columns(ctx context.Context, table string) ([]string, error) {
	rows, err := s.pool.Query(ctx, columnsQuery, table)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

func (s *Store) AllReports(ctx context.Context) ([]report.Report, error) {
	rows, err := s.pool.Query(ctx, s.selectAll)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[report.Report])
}

func (s *Store) ReportsByTarget(ctx context.Context, targetID string) ([]report.Report, error) {
	rows, err := s.pool.Query(ctx, s.selectByTarget, targetID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[report.Report])
}

func (s *Store) Exec(ctx context.Context, stmt string) (int64, error) {
	tag, err := s.pool.Exec(ctx, stmt)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() { s.pool.Close() }

// Tx isolates each insert in its own savepoint since PostgreSQL aborts the
// entire transaction on any error.
type Tx struct {
	tx  pgx.Tx
	seq int
}

func (t *Tx) Insert(ctx context.Context, stmt string, args []any) error {
	t.seq++
	open, rollback, release := storage.Postgres.Savepoint(fmt.Sprintf("sp_%d", t.seq))

	if _, err := t.tx.Exec(ctx, open); err != nil {
		return fmt.Errorf("%w: create: %w", storage.ErrSavepoint, err)
	}

	if _, err := t.tx.Exec(ctx, stmt, args...); err != nil {
		if isBusy(err) {
			return fmt.Errorf("%w: %w", storage.ErrBusy, err)
		}
		// Rollback to savepoint to recover transaction state
		if _, rbErr := t.tx.Exec(ctx, rollback); rbErr != nil {
			return fmt.Errorf("%w: rollback after %v: %w", storage.ErrSavepoint, err, rbErr)
		}
		return err
	}

	if _, err := t.tx.Exec(ctx, release); err != nil {
		return fmt.Errorf("%w: release: %w", storage.ErrSavepoint, err)
	}
	return nil
}

// SQLSTATEs for lock contention with another transaction.
const (
	codeDeadlockDetected = "40P01"
	codeLockNotAvailable = "55P03"
)

func isBusy(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == codeDeadlockDetected || pgErr.Code == codeLockNotAvailable
}

func (t *Tx) Commit(ctx context.Context) error { return t.tx.Commit(ctx) }

// Rollback ignores pgx.ErrTxClosed so it can be deferred unconditionally.
func (t *Tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

var _ storage.Store = (*Store)(nil)
