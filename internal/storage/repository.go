package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Config selects and configures a backend.
//
// Edge cases:
//   - Kind must match a registered backend (see package all).
//   - DSN is backend-specific and passed through unchanged.
//   - Table is the postings table; its run log is <Table>_ingest_runs.
//   - BatchSize caps rows per INSERT statement; 0 lets the dialect decide.
type Config struct {
	Kind      string
	DSN       string
	Table     string
	BatchSize int
}

// Rows is a fully materialized query result.
type Rows struct {
	Columns []string
	Values  [][]any
}

// IngestRun records one completed load.
type IngestRun struct {
	RunID       string
	Fingerprint string
	Rows        int64
	Source      string
	LoadedAt    time.Time
}

// Identity is the cache identity of the table state this run produced.
func (r IngestRun) Identity() string {
	return r.RunID + ":" + r.Fingerprint
}

// Querier runs read-only SQL written for its Dialect.
type Querier interface {
	Dialect() Dialect
	// Query runs q with positional args and materializes every row.
	Query(ctx context.Context, q string, args ...any) (Rows, error)
}

// Repository is the single-table store behind ingest and the aggregate
// engine.
type Repository interface {
	Querier

	// ReplaceTable drops spec.Name, recreates it, inserts rows and appends
	// run to the run log, all or nothing. It returns the number of rows
	// written.
	ReplaceTable(ctx context.Context, spec TableSpec, rows [][]any, run IngestRun) (int64, error)

	// Close releases connections. Call once.
	Close()
}

type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available to New under kind. Backends call it
// from init.
//
// Panics:
//   - If kind is empty, f is nil, or kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New opens a Repository using the factory registered for cfg.Kind.
//
// Errors:
//   - cfg.Kind empty or unregistered.
//   - whatever the backend factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds lists the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
