// Package app assembles the runtime shared by the server and the CLI:
// error reporting, the metrics backend, the store and the service.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JonMunkholm/modreports/internal/config"
	"github.com/JonMunkholm/modreports/internal/core"
	"github.com/JonMunkholm/modreports/internal/logging"
	"github.com/JonMunkholm/modreports/internal/metrics"
	"github.com/JonMunkholm/modreports/internal/metrics/datadog"
	"github.com/JonMunkholm/modreports/internal/storage"
	_ "github.com/JonMunkholm/modreports/internal/storage/all" // register backends
)

// App owns the long-lived dependencies. Close releases them in reverse order.
type App struct {
	Config  *config.Config
	Store   storage.Store
	Service *core.Service

	closers []func()
}

// New starts Sentry and the metrics backend, opens the store and builds the
// service. Logging must already be configured.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	a.closers = append(a.closers, logging.SetupSentry(cfg.Sentry.DSN, cfg.Sentry.Environment, cfg.Sentry.TracesSampleRate))

	if err := a.setupMetrics(ctx); err != nil {
		a.Close()
		return nil, err
	}

	store, err := storage.Open(ctx, storage.Config{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.URL,
		Table:           cfg.Import.Table,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open %s store: %w", cfg.Database.Driver, err)
	}
	a.Store = store
	a.closers = append(a.closers, store.Close)
	slog.Info("connected to database", "driver", cfg.Database.Driver, "table", cfg.Import.Table)

	svc, err := core.NewService(store, cfg.Import)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Service = svc

	return a, nil
}

func (a *App) setupMetrics(ctx context.Context) error {
	if !strings.EqualFold(a.Config.Metrics.Backend, "datadog") {
		return nil
	}

	b, err := datadog.NewBackend(context.WithoutCancel(ctx), datadog.Options{
		JobName:    a.Config.Metrics.JobName,
		Tags:       datadog.ParseTagsCSV(a.Config.Metrics.Tags),
		FlushEvery: a.Config.Metrics.FlushEvery,
	})
	if err != nil {
		return fmt.Errorf("datadog metrics: %w", err)
	}

	metrics.SetBackend(b)
	a.closers = append(a.closers, func() {
		metrics.SetBackend(nil)
		if err := b.Close(); err != nil {
			slog.Warn("final metrics flush failed", "error", err)
		}
	})
	slog.Info("metrics enabled", "backend", "datadog", "flush_every", a.Config.Metrics.FlushEvery)
	return nil
}

// Close releases everything New acquired.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
