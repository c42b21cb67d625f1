// Package mssql registers the Microsoft SQL Server backend.
package mssql

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
	_ "github.com/microsoft/go-mssqldb"

	"github.com/JonMunkholm/modreports/internal/storage"
	"github.com/JonMunkholm/modreports/internal/storage/sqlstore"
)

// Conservative defaults for bursty imports.
const defaultMaxConns = 16

func init() {
	storage.Register("sqlserver", New)
}

// New opens a SQL Server database using a sqlserver:// DSN.
func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}

	db, err := sqlstore.Open(ctx, "sqlserver", cfg.DSN, maxConns, cfg.MinConns)
	if err != nil {
		return nil, err
	}
	return sqlstore.New(db, storage.SQLServer, cfg.TableName(), listColumns,
		sqlstore.WithBusyCheck(isBusy)), nil
}

// Lock errors after which the transaction cannot go on. A deadlock victim's
// transaction has already been rolled back by the server.
const (
	errDeadlockVictim = 1205
	errLockTimeout    = 1222
)

func isBusy(err error) bool {
	var numbered interface{ SQLErrorNumber() int32 }
	if !errors.As(err, &numbered) {
		return false
	}
	switch numbered.SQLErrorNumber() {
	case errDeadlockVictim, errLockTimeout:
		return true
	}
	return false
}

const columnsQuery = `
SELECT COLUMN_NAME
FROM INFORMATION_SCHEMA.COLUMNS
WHERE TABLE_NAME = @p1 AND TABLE_SCHEMA = SCHEMA_NAME()
ORDER BY ORDINAL_POSITION`

func listColumns(ctx context.Context, db *sqlx.DB, table string) ([]string, error) {
	var cols []string
	if err := db.SelectContext(ctx, &cols, columnsQuery, table); err != nil {
		return nil, err
	}
	return cols, nil
}
