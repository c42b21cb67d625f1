// Package sqlite registers the SQLite backend (modernc.org/sqlite, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/JonMunkholm/modreports/internal/storage"
	"github.com/JonMunkholm/modreports/internal/storage/sqlstore"
)

func init() {
	storage.Register("sqlite", New)
}

// busyTimeoutMillis is how long a connection waits for another process's
// write lock before failing with SQLITE_BUSY.
const busyTimeoutMillis = 5000

// New opens a SQLite database. cfg.DSN is a file path or a modernc URI
// such as "file::memory:?cache=shared".
//
// The pool is capped at one connection whatever cfg.MaxConns says: SQLite
// has a single writer, so concurrent imports in this process queue for the
// connection instead of failing with SQLITE_BUSY. An in-memory database also
// lives only as long as its connection. Transactions begin IMMEDIATE and wait
// up to busyTimeoutMillis for writers in other processes.
func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	db, err := sqlstore.Open(ctx, "sqlite", withDefaults(cfg.DSN), 1, cfg.MinConns)
	if err != nil {
		return nil, err
	}
	return sqlstore.New(db, storage.SQLite, cfg.TableName(), listColumns,
		sqlstore.WithBusyCheck(isBusy)), nil
}

// withDefaults adds the busy timeout and transaction lock mode to dsn unless
// the caller set them.
func withDefaults(dsn string) string {
	var params []string
	if !strings.Contains(dsn, "busy_timeout") {
		params = append(params, fmt.Sprintf("_pragma=busy_timeout(%d)", busyTimeoutMillis))
	}
	if !strings.Contains(dsn, "_txlock=") {
		params = append(params, "_txlock=immediate")
	}
	if len(params) == 0 {
		return dsn
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

// isBusy reports whether err is SQLITE_BUSY or SQLITE_LOCKED, including
// their extended codes.
func isBusy(err error) bool {
	var e *msqlite.Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// pragmaColumn is one row of PRAGMA table_info.
type pragmaColumn struct {
	CID       int            `db:"cid"`
	Name      string         `db:"name"`
	Type      string         `db:"type"`
	NotNull   int            `db:"notnull"`
	DfltValue sql.NullString `db:"dflt_value"`
	PK        int            `db:"pk"`
}

func listColumns(ctx context.Context, db *sqlx.DB, table string) ([]string, error) {
	var cols []pragmaColumn
	q := fmt.Sprintf("PRAGMA table_info(%s)", storage.SQLite.Quote(table))
	if err := db.SelectContext(ctx, &cols, q); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(cols))
	for _, c := range cols {
		out = append(out, c.Name)
	}
	return out, nil
}
