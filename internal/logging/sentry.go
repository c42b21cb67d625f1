package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryFlushTimeout bounds the wait for queued events at shutdown.
const SentryFlushTimeout = 2 * time.Second

// SetupSentry initializes error reporting when dsn is set. The returned
// function flushes pending events and is safe to defer even when Sentry is
// disabled or failed to initialize.
func SetupSentry(dsn, environment string, tracesSampleRate float64) func() {
	if dsn == "" {
		return func() {}
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		EnableTracing:    tracesSampleRate > 0,
		TracesSampleRate: tracesSampleRate,
		Environment:      environment,
	}); err != nil {
		slog.Error("sentry init failed", "error", err)
		return func() {}
	}

	slog.Info("sentry enabled", "environment", environment)
	return func() { sentry.Flush(SentryFlushTimeout) }
}

// CaptureError reports err with the given tags. It uses the hub attached to
// ctx by the HTTP middleware when present. Without an initialized client
// this is a no-op.
func CaptureError(ctx context.Context, err error, tags map[string]string) {
	if err == nil {
		return
	}

	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}

	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		hub.CaptureException(err)
	})
}
