// Package ingest loads a job postings dataset into the configured store,
// replacing whatever the table held before.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"jobmarket/internal/cache"
	"jobmarket/internal/config"
	"jobmarket/internal/datasource"
	apperrors "jobmarket/internal/errors"
	"jobmarket/internal/metrics"
	"jobmarket/internal/parser/csv"
	"jobmarket/internal/storage"
	"jobmarket/internal/transformer"
)

// Runner executes one pipeline. The zero value is usable: it opens stores
// through storage.New, logs nowhere and uses the wall clock.
type Runner struct {
	// NewRepository opens the destination store. nil means storage.New.
	NewRepository func(ctx context.Context, cfg storage.Config) (storage.Repository, error)

	Logger *slog.Logger
	Clock  clockwork.Clock

	// Cache, when set, is cleared after a successful load.
	Cache cache.Cache

	// BackOff returns the policy between store open attempts. nil means
	// exponential.
	BackOff func() backoff.BackOff
}

// Result describes a completed load.
type Result struct {
	Run     storage.IngestRun
	Table   string
	Columns []string

	// ParseErrors counts malformed CSV records that were skipped.
	ParseErrors int64
	// CoerceFailures counts values stored as NULL because they were not
	// numeric.
	CoerceFailures int64
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func (r *Runner) clock() clockwork.Clock {
	if r.Clock != nil {
		return r.Clock
	}
	return clockwork.NewRealClock()
}

// Run streams the source through parse and transform, then replaces the
// configured table with the result in a single store operation. The
// returned Result.Run.Rows is the number of rows written.
//
// Errors:
//   - InvalidConfig when p fails validation or the header lacks a required
//     column.
//   - SourceNotFound when the input does not exist.
//   - StoreUnavailable when the store cannot be opened or written.
func (r *Runner) Run(ctx context.Context, p config.Pipeline) (Result, error) {
	log := r.logger().With("job", p.Job)
	start := time.Now()

	res, err := r.run(ctx, p, log)
	metrics.RecordStep("ingest", start, err)
	if err != nil {
		log.Error("ingest failed", "error", err, "duration", time.Since(start))
		return Result{}, err
	}
	log.Info("ingest ok",
		"table", res.Table,
		"rows", res.Run.Rows,
		"run_id", res.Run.RunID,
		"parse_errors", res.ParseErrors,
		"coerce_failures", res.CoerceFailures,
		"duration", time.Since(start))
	return res, nil
}

func (r *Runner) run(ctx context.Context, p config.Pipeline, log *slog.Logger) (Result, error) {
	if issues := config.ValidatePipeline(p); config.HasErrors(issues) {
		msgs := make([]string, 0, len(issues))
		for _, is := range issues {
			if is.Severity == config.SeverityError {
				msgs = append(msgs, is.Path+": "+is.Message)
			}
		}
		return Result{}, apperrors.InvalidConfig("pipeline: "+strings.Join(msgs, "; "), nil)
	}

	source := datasource.Name(p.Source)
	src, err := datasource.Open(ctx, p.Source)
	if err != nil {
		return Result{}, err
	}
	reader, err := csv.Open(src, p.Parser.Options)
	if err != nil {
		return Result{}, apperrors.InvalidConfig("parse "+source, err)
	}
	defer reader.Close()

	columns := reader.Columns()
	contract, err := p.Contract()
	if err != nil {
		return Result{}, err
	}
	if contract != nil {
		if missing := contract.Missing(columns); len(missing) > 0 {
			return Result{}, apperrors.InvalidConfig(
				fmt.Sprintf("%s: missing required columns %s", source, strings.Join(missing, ", ")), nil)
		}
	}

	spec := transformer.Spec{
		Coerce:                 transformer.CoerceSpec{Types: p.CoerceTypes()},
		CanonicalizeExperience: len(p.TransformsOf("canonicalize_experience")) > 0,
	}
	if err := transformer.ValidateSpecSanity(spec); err != nil {
		return Result{}, apperrors.InvalidConfig("coerce spec", err)
	}

	parseStart := time.Now()
	c, err := collect(ctx, reader, columns, spec, p.Runtime, log)
	metrics.RecordStep("parse", parseStart, err)
	if err != nil {
		return Result{}, err
	}
	metrics.RecordRows("read", len(c.rows)+int(c.parseErrors))
	metrics.RecordRows("invalid", int(c.parseErrors))
	metrics.RecordRows("coerce_failed", int(c.coerceFailures))
	log.Info("stage ok", "stage", "parse", "rows", len(c.rows), "duration", time.Since(parseStart))

	run := storage.IngestRun{
		RunID:       uuid.NewString(),
		Fingerprint: c.fingerprint,
		Rows:        int64(len(c.rows)),
		Source:      source,
		LoadedAt:    r.clock().Now().UTC(),
	}
	table := TableSpec(p.Storage.Table, columns, spec.Coerce.Types)

	storeCfg := storage.Config{
		Kind:      p.Storage.Kind,
		DSN:       p.Storage.ExpandedDSN(),
		Table:     p.Storage.Table,
		BatchSize: p.Runtime.BatchSize,
	}
	repo, err := r.openStore(ctx, storeCfg, p.Runtime.StoreRetries, log)
	if err != nil {
		return Result{}, err
	}
	defer repo.Close()

	loadStart := time.Now()
	written, err := repo.ReplaceTable(ctx, table, c.rows, run)
	metrics.RecordStep("load", loadStart, err)
	if err != nil {
		return Result{}, apperrors.StoreUnavailable(p.Storage.Kind, fmt.Errorf("replace %s: %w", table.Name, err))
	}
	metrics.RecordRows("loaded", int(written))
	log.Info("stage ok", "stage", "load", "table", table.Name, "rows", written, "duration", time.Since(loadStart))
	run.Rows = written

	if r.Cache != nil {
		if err := r.Cache.Clear(ctx); err != nil {
			// entries are keyed by run identity, so stale ones can no longer hit
			log.Warn("results cache not cleared", "error", err)
		}
	}

	return Result{
		Run:            run,
		Table:          table.Name,
		Columns:        columns,
		ParseErrors:    c.parseErrors,
		CoerceFailures: c.coerceFailures,
	}, nil
}

// TableSpec builds the destination layout: columns in source order, typed
// from the coerce types (anything else is text).
func TableSpec(name string, columns []string, types map[string]string) storage.TableSpec {
	spec := storage.TableSpec{Name: name, Columns: make([]storage.ColumnSpec, len(columns))}
	for i, col := range columns {
		typ := "text"
		switch strings.ToLower(types[col]) {
		case "int", "integer", "bigint":
			typ = "int"
		case "float", "double", "real", "numeric", "decimal":
			typ = "float"
		}
		spec.Columns[i] = storage.ColumnSpec{Name: col, Type: typ}
	}
	return spec
}

func (r *Runner) openStore(ctx context.Context, cfg storage.Config, retries int, log *slog.Logger) (storage.Repository, error) {
	open := r.NewRepository
	if open == nil {
		if !slices.Contains(storage.Kinds(), cfg.Kind) {
			return nil, apperrors.InvalidConfig(
				fmt.Sprintf("storage.kind=%s is not compiled in (registered: %v)", cfg.Kind, storage.Kinds()), nil)
		}
		open = storage.New
	}
	if retries < 0 {
		retries = 0
	}

	var bo backoff.BackOff
	if r.BackOff != nil {
		bo = r.BackOff()
	} else {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = 500 * time.Millisecond
		exp.MaxInterval = 10 * time.Second
		bo = exp
	}
	bo = backoff.WithContext(backoff.WithMaxRetries(bo, uint64(retries)), ctx)

	var repo storage.Repository
	attempt := 0
	op := func() error {
		attempt++
		var err error
		repo, err = open(ctx, cfg)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("store open failed; retrying", "kind", cfg.Kind, "attempt", attempt, "in", wait, "error", err)
	}
	if err := backoff.RetryNotify(op, bo, notify); err != nil {
		return nil, apperrors.StoreUnavailable(cfg.Kind, err)
	}
	return repo, nil
}

type collected struct {
	rows           [][]any
	fingerprint    string
	parseErrors    int64
	coerceFailures int64
}

// collect runs reader -> transform workers -> collector and joins every
// stage before returning. Rows come back in source order whatever the
// worker count.
func collect(
	ctx context.Context,
	reader *csv.Reader,
	columns []string,
	spec transformer.Spec,
	rt config.Runtime,
	log *slog.Logger,
) (collected, error) {
	buf := rt.ChannelBuffer
	if buf <= 0 {
		buf = 256
	}
	workers := rt.TransformWorkers
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rawCh := make(chan *transformer.Row, buf)
	outCh := make(chan *transformer.Row, buf)

	var parseErrors, coerceFailures atomic.Int64
	onParseErr := func(line int, err error) {
		parseErrors.Add(1)
		log.Warn("row skipped", "line", line, "error", err)
	}
	onCoerceFail := func(line int, column, value string) {
		coerceFailures.Add(1)
		log.Debug("value not numeric; stored as NULL", "line", line, "column", column, "value", value)
	}

	var streamErr error
	var wgReader sync.WaitGroup
	wgReader.Add(1)
	go func() {
		defer wgReader.Done()
		defer close(rawCh)
		if err := reader.Stream(ctx, rawCh, onParseErr); err != nil && ctx.Err() == nil {
			streamErr = err
			cancel()
		}
	}()

	var wgTransformers sync.WaitGroup
	wgTransformers.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wgTransformers.Done()
			transformer.TransformLoopRows(ctx, columns, rawCh, outCh, spec, onCoerceFail)
		}()
	}
	go func() {
		wgTransformers.Wait()
		close(outCh)
	}()

	type lined struct {
		line int
		v    []any
	}
	var out []lined
	for row := range outCh {
		out = append(out, lined{line: row.Line, v: row.Values()})
		row.Free()
	}
	wgReader.Wait()

	if streamErr != nil {
		return collected{}, streamErr
	}
	if err := ctx.Err(); err != nil {
		return collected{}, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].line < out[j].line })
	fp := transformer.NewFingerprint(columns)
	rows := make([][]any, len(out))
	for i, r := range out {
		fp.Add(r.v)
		rows[i] = r.v
	}
	return collected{
		rows:           rows,
		fingerprint:    fp.Sum(),
		parseErrors:    parseErrors.Load(),
		coerceFailures: coerceFailures.Load(),
	}, nil
}
