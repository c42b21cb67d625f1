// Package sqlstore implements storage.Store on top of database/sql via sqlx.
// The sqlite and mssql backends wrap it with their driver and column lookup.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/JonMunkholm/modreports/internal/report"
	"github.com/JonMunkholm/modreports/internal/storage"
)

// ColumnLister returns the column names of table in definition order.
type ColumnLister func(ctx context.Context, db *sqlx.DB, table string) ([]string, error)

// Store is a database/sql backed storage.Store.
type Store struct {
	db      *sqlx.DB
	dialect storage.Dialect
	table   string
	columns ColumnLister

	isBusy func(error) bool

	selectAll      string
	selectByTarget string
}

// Option customizes a Store.
type Option func(*Store)

// WithBusyCheck sets the driver-specific test for lock contention errors.
// Insert wraps a matching error in storage.ErrBusy.
func WithBusyCheck(f func(error) bool) Option {
	return func(s *Store) { s.isBusy = f }
}

// New wraps an open connection. The caller transfers ownership of db.
func New(db *sqlx.DB, d storage.Dialect, table string, columns ColumnLister, opts ...Option) *Store {
	s := &Store{
		db:             db,
		dialect:        d,
		table:          table,
		columns:        columns,
		selectAll:      storage.SelectReports(d, table, false, nil),
		selectByTarget: storage.SelectReports(d, table, true, nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens driverName with dsn, applies the pool limits and pings.
func Open(ctx context.Context, driverName, dsn string, maxConns, minConns int) (*sqlx.DB, error) {
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	if minConns > 0 {
		db.SetMaxIdleConns(minConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driverName, err)
	}
	return db, nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *sqlx.DB { return s.db }

func (s *Store) Dialect() storage.Dialect { return s.dialect }

func (s *Store) Columns(ctx context.Context, table string) ([]string, error) {
	return s.columns(ctx, s.db, table)
}

func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx, dialect: s.dialect, isBusy: s.isBusy}, nil
}

func (s *Store) AllReports(ctx context.Context) ([]report.Report, error) {
	var out []report.Report
	if err := s.db.SelectContext(ctx, &out, s.selectAll); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ReportsByTarget(ctx context.Context, targetID string) ([]report.Report, error) {
	var out []report.Report
	if err := s.db.SelectContext(ctx, &out, s.selectByTarget, targetID); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Exec(ctx context.Context, stmt string) (int64, error) {
	res, err := s.db.ExecContext(ctx, stmt)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		// Some statements (DDL, PRAGMA) have no meaningful count.
		return 0, nil
	}
	return n, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() { _ = s.db.Close() }

// Tx is a database/sql transaction with per-statement isolation.
type Tx struct {
	tx      *sqlx.Tx
	dialect storage.Dialect
	isBusy  func(error) bool
	seq     int
	done    bool
}

// Insert executes stmt inside a savepoint when the dialect needs one, so a
// failed row leaves the transaction usable.
func (t *Tx) Insert(ctx context.Context, stmt string, args []any) error {
	t.seq++
	open, rollback, release := t.dialect.Savepoint(fmt.Sprintf("sp_%d", t.seq))

	if open != "" {
		if _, err := t.tx.ExecContext(ctx, open); err != nil {
			return fmt.Errorf("%w: create: %w", storage.ErrSavepoint, err)
		}
	}

	if _, err := t.tx.ExecContext(ctx, stmt, args...); err != nil {
		if t.isBusy != nil && t.isBusy(err) {
			return fmt.Errorf("%w: %w", storage.ErrBusy, err)
		}
		if rollback != "" {
			if _, rbErr := t.tx.ExecContext(ctx, rollback); rbErr != nil {
				return fmt.Errorf("%w: rollback after %v: %w", storage.ErrSavepoint, err, rbErr)
			}
		}
		return err
	}

	if release != "" {
		if _, err := t.tx.ExecContext(ctx, release); err != nil {
			return fmt.Errorf("%w: release: %w", storage.ErrSavepoint, err)
		}
	}
	return nil
}

func (t *Tx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(); err != nil {
		return err
	}
	t.done = true
	return nil
}

func (t *Tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

var _ storage.Store = (*Store)(nil)
