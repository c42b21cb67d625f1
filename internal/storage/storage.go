// Package storage defines the relational store used by the report importer
// and a registry of backends selected by driver name.
//
// Backends register themselves from init(); import storage/all to link every
// backend into a binary.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/modreports/internal/report"
)

// ErrUnknownDriver is returned by Open when no backend is registered under
// the requested driver name.
var ErrUnknownDriver = errors.New("unknown storage driver")

// ErrSavepoint marks a Tx.Insert failure that left the transaction unusable,
// as opposed to a rejected row.
var ErrSavepoint = errors.New("savepoint failed")

// ErrBusy marks a statement that failed because another writer holds a lock
// the backend would not wait for. The row is fine; the run cannot continue.
var ErrBusy = errors.New("database busy")

// Config is the minimal configuration needed to open a Store.
type Config struct {
	Driver   string // postgres, sqlite or sqlserver
	DSN      string
	Table    string // defaults to report.Table
	MaxConns int
	MinConns int

	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// TableName returns the configured table or the default reports table.
func (c Config) TableName() string {
	if c.Table == "" {
		return report.Table
	}
	return c.Table
}

// Store is a relational store holding moderation reports.
//
// Each backend implements these operations in its own idiomatic way; the
// importer only depends on this interface.
type Store interface {
	// Dialect describes placeholder and identifier syntax for statements
	// executed against this store.
	Dialect() Dialect

	// Columns returns the live column names of table in definition order.
	// A missing table yields an empty slice, not an error.
	Columns(ctx context.Context, table string) ([]string, error)

	// Begin opens a transaction for a batch import.
	Begin(ctx context.Context) (Tx, error)

	// AllReports returns every stored report in store order.
	AllReports(ctx context.Context) ([]report.Report, error)

	// ReportsByTarget returns the reports whose target_id equals targetID,
	// newest created_at first.
	ReportsByTarget(ctx context.Context, targetID string) ([]report.Report, error)

	// Exec runs an arbitrary statement and returns the affected row count
	// when the driver reports one. Errors are returned unchanged.
	Exec(ctx context.Context, stmt string) (int64, error)

	Ping(ctx context.Context) error
	Close()
}

// Tx is an open import transaction.
//
// Insert must isolate a failed statement: after Insert returns an error the
// transaction is still usable and keeps every previously inserted row.
type Tx interface {
	Insert(ctx context.Context, stmt string, args []any) error
	Commit(ctx context.Context) error
	// Rollback is a no-op after a successful Commit.
	Rollback(ctx context.Context) error
}

// Factory opens a Store for a registered driver.
type Factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under driver.
//
// Panics if driver is empty, f is nil, or driver is already registered.
func Register(driver string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if driver == "" {
		panic("storage: Register called with empty driver")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[driver]; exists {
		panic(fmt.Sprintf("storage: factory already registered for driver=%q", driver))
	}

	factories[driver] = f
}

// Drivers returns the registered driver names, sorted.
func Drivers() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Open constructs a Store using the factory registered for cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Driver == "" {
		return nil, fmt.Errorf("storage: missing driver")
	}

	mu.RLock()
	f := factories[cfg.Driver]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownDriver, cfg.Driver, Drivers())
	}
	return f(ctx, cfg)
}
