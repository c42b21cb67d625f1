// Package metrics is a small process-wide facade over a pluggable metrics
// backend. Without a backend every call is a no-op.
package metrics

import (
	"sync"
	"time"
)

// Metric names emitted by the importer.
const (
	ImportsTotal          = "reports_imports_total"           // labels: status
	RowsTotal             = "reports_rows_total"              // labels: kind (inserted|skipped)
	ImportDurationSeconds = "reports_import_duration_seconds" // labels: status
	QueriesTotal          = "reports_queries_total"           // labels: op, status
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric updates.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by backends that buffer.
type Flusher interface {
	Flush() error
}

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}

// SetBackend installs b as the process backend. nil restores the no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter adds delta to the named counter.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// ObserveDuration records d in seconds.
func ObserveDuration(name string, d time.Duration, labels Labels) {
	ObserveHistogram(name, d.Seconds(), labels)
}

// Flush flushes the backend if it buffers.
func Flush() error {
	if f, ok := current().(Flusher); ok {
		return f.Flush()
	}
	return nil
}
