// Package metrics is the process-wide metrics facade.
//
// Pipeline and analytics code record through the package functions; a
// concrete backend (Datadog, Prometheus Pushgateway) is installed once by the
// command with SetBackend. Until then every call is a no-op.
package metrics

import (
	"sync"
	"time"
)

// Labels are metric dimensions, e.g. {"step": "load", "status": "ok"}.
type Labels map[string]string

// Backend receives metric events. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by backends that buffer.
type Flusher interface {
	Flush() error
}

// Metric names shared by all backends.
const (
	StepTotal      = "etl_step_total"
	StepDuration   = "etl_step_duration_seconds"
	RecordsTotal   = "etl_records_total"
	BatchesTotal   = "etl_batches_total"
	QueriesTotal   = "etl_queries_total"
	QueryDuration  = "etl_query_duration_seconds"
	CacheHitsTotal = "etl_cache_hits_total"
)

type nop struct{}

func (nop) IncCounter(string, float64, Labels)       {}
func (nop) ObserveHistogram(string, float64, Labels) {}

var (
	mu      sync.RWMutex
	backend Backend = nop{}
)

// SetBackend installs b. A nil b restores the no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nop{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush flushes the installed backend when it buffers.
func Flush() error {
	if f, ok := current().(Flusher); ok {
		return f.Flush()
	}
	return nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordStep counts one execution of a pipeline step and its duration.
func RecordStep(step string, start time.Time, err error) {
	l := Labels{"step": step, "status": status(err)}
	b := current()
	b.IncCounter(StepTotal, 1, l)
	b.ObserveHistogram(StepDuration, time.Since(start).Seconds(), l)
}

// RecordRows adds n to the record counter for kind ("read", "loaded",
// "invalid", "coerce_failed").
func RecordRows(kind string, n int) {
	if n <= 0 {
		return
	}
	current().IncCounter(RecordsTotal, float64(n), Labels{"kind": kind})
}

// RecordBatch counts one insert batch.
func RecordBatch() {
	current().IncCounter(BatchesTotal, 1, nil)
}

// RecordQuery counts one catalog query execution.
func RecordQuery(query string, start time.Time, err error) {
	l := Labels{"query": query, "status": status(err)}
	b := current()
	b.IncCounter(QueriesTotal, 1, l)
	b.ObserveHistogram(QueryDuration, time.Since(start).Seconds(), l)
}

// RecordCacheHit counts a result served from the cache.
func RecordCacheHit(query string) {
	current().IncCounter(CacheHitsTotal, 1, Labels{"query": query})
}
