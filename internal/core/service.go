package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/modreports/internal/config"
	"github.com/JonMunkholm/modreports/internal/logging"
	"github.com/JonMunkholm/modreports/internal/metrics"
	"github.com/JonMunkholm/modreports/internal/report"
	"github.com/JonMunkholm/modreports/internal/storage"
)

// Service is the entry point used by the HTTP API and the CLI.
type Service struct {
	store       storage.Store
	importer    *Importer
	limiter     *ImportLimiter
	timeout     time.Duration
	execEnabled bool
}

// NewService builds a Service over store using the import settings in cfg.
func NewService(store storage.Store, cfg config.ImportConfig) (*Service, error) {
	im, err := NewImporter(store, ImporterOptions{
		Table:          cfg.Table,
		MaxFileSize:    cfg.MaxFileSize,
		SourceEncoding: cfg.SourceEncoding,
	})
	if err != nil {
		return nil, fmt.Errorf("new importer: %w", err)
	}

	return &Service{
		store:       store,
		importer:    im,
		limiter:     NewImportLimiter(cfg.MaxConcurrent, cfg.MaxWaitTime),
		timeout:     cfg.Timeout,
		execEnabled: cfg.ExecEnabled,
	}, nil
}

// Table returns the destination table of imports.
func (s *Service) Table() string { return s.importer.Table() }

// ImportFile imports the CSV file at path. A file that cannot be opened is
// logged and counted like any other failed import.
func (s *Service) ImportFile(ctx context.Context, path string) (*ImportResult, error) {
	name := filepath.Base(path)

	f, err := os.Open(path)
	if err != nil {
		id := uuid.NewString()
		log := logging.WithFields(ctx, "import_id", id, "source", name, "table", s.Table())
		res := &ImportResult{ImportID: id, Source: name, Table: s.Table(), Phase: PhaseRead}
		return res, s.finish(ctx, log, res, newImportError(PhaseRead, ErrIO, err))
	}
	defer f.Close()

	return s.ImportReader(ctx, name, f)
}

// ImportReader imports the CSV read from r; name identifies the source in
// logs and in the result.
//
// The result is never nil. A non-nil error is either ErrTooManyImports, a
// ctx error while waiting for a slot, or an *ImportError from the run.
func (s *Service) ImportReader(ctx context.Context, name string, r io.Reader) (*ImportResult, error) {
	id := uuid.NewString()
	log := logging.WithFields(ctx, "import_id", id, "source", name, "table", s.Table())

	if err := s.limiter.Acquire(ctx); err != nil {
		log.Warn("import rejected", "error", err, "active", s.limiter.Active())
		metrics.IncCounter(metrics.ImportsTotal, 1, metrics.Labels{"status": "rejected"})
		return &ImportResult{ImportID: id, Source: name, Table: s.Table(), Phase: PhaseRead}, err
	}
	defer s.limiter.Release()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	log.Info("import started")

	res, err := s.importer.Import(ctx, name, r)
	res.ImportID = id

	return res, s.finish(ctx, log, res, err)
}

// finish logs the outcome of a run, records its metrics and reports a fatal
// error to Sentry. It returns err unchanged.
func (s *Service) finish(ctx context.Context, log *slog.Logger, res *ImportResult, err error) error {
	for _, re := range res.RowErrors {
		log.Warn("row skipped", "line", re.Line, "reason", re.Reason)
	}

	status := "committed"
	if err != nil {
		status = "failed"
	}
	metrics.IncCounter(metrics.ImportsTotal, 1, metrics.Labels{"status": status})
	metrics.IncCounter(metrics.RowsTotal, float64(res.Inserted), metrics.Labels{"kind": "inserted"})
	metrics.IncCounter(metrics.RowsTotal, float64(res.Skipped), metrics.Labels{"kind": "skipped"})
	metrics.ObserveDuration(metrics.ImportDurationSeconds, res.Duration, metrics.Labels{"status": status})

	if err != nil {
		log.Error("import failed",
			"phase", res.Phase,
			"attempted", res.Attempted,
			"error", err,
		)
		logging.CaptureError(ctx, err, map[string]string{
			"import_id": res.ImportID,
			"phase":     string(res.Phase),
			"table":     s.Table(),
		})
		return err
	}

	log.Info("import finished",
		"attempted", res.Attempted,
		"inserted", res.Inserted,
		"skipped", res.Skipped,
		"duration", res.Duration,
	)
	return nil
}

// Reports returns every stored report.
func (s *Service) Reports(ctx context.Context) ([]report.Report, error) {
	out, err := s.store.AllReports(ctx)
	countQuery("all", err)
	return out, err
}

// ReportsByTarget returns the reports about targetID, newest first.
func (s *Service) ReportsByTarget(ctx context.Context, targetID string) ([]report.Report, error) {
	out, err := s.store.ReportsByTarget(ctx, targetID)
	countQuery("by_target", err)
	return out, err
}

// Exec runs a raw statement. Store errors are returned unchanged.
func (s *Service) Exec(ctx context.Context, stmt string) (int64, error) {
	if !s.execEnabled {
		return 0, ErrExecDisabled
	}

	n, err := s.store.Exec(ctx, stmt)
	countQuery("exec", err)
	if err != nil {
		logging.FromContext(ctx).Warn("exec failed", "error", err)
		return 0, err
	}
	logging.FromContext(ctx).Info("exec finished", "rows_affected", n)
	return n, nil
}

// Ping checks store connectivity.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) LimiterStatus() LimiterStatus { return s.limiter.Status() }

// WaitForImports blocks until in-flight imports finish or ctx is done.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

func countQuery(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.IncCounter(metrics.QueriesTotal, 1, metrics.Labels{"op": op, "status": status})
}
