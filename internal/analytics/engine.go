package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"slices"
	"time"

	"jobmarket/internal/cache"
	apperrors "jobmarket/internal/errors"
	"jobmarket/internal/metrics"
	"jobmarket/internal/storage"
	"jobmarket/pkg/records"
)

// Result is one executed catalog query. Rows follow the query's ordering.
type Result struct {
	Name    string           `json:"name"`
	Title   string           `json:"title"`
	Columns []string         `json:"columns"`
	Rows    []records.Record `json:"rows"`
}

// Outcome pairs a catalog entry with its result or error; exactly one of
// Result and Err is set.
type Outcome struct {
	Spec   QuerySpec
	Result *Result
	Err    error
}

// Engine runs catalog queries against one table.
//
// Repo and Table are required. Cache may be nil, in which case every Run
// hits the store. Logger defaults to a discard logger.
type Engine struct {
	Repo     storage.Querier
	Table    string
	Cache    cache.Cache
	CacheTTL time.Duration
	Logger   *slog.Logger
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.Logger
}

// Run executes spec with filter f.
//
// Results are cached under (table identity, spec name, filter) when a
// cache is configured and the table has an ingest run; a table without a
// run log is always queried directly.
//
// Errors:
//   - QueryFailed when the QuerySpec does not compile or the store rejects it.
func (e *Engine) Run(ctx context.Context, spec QuerySpec, f Filter) (*Result, error) {
	start := time.Now()
	log := e.logger().With("query", spec.Name)

	key := e.cacheKey(ctx, spec, f)
	if key != "" {
		var cached Result
		err := e.Cache.Get(ctx, key, &cached)
		switch {
		case err == nil:
			restoreNumbers(cached.Rows)
			metrics.RecordCacheHit(spec.Name)
			log.Debug("stage=query cache=hit", "rows", len(cached.Rows))
			return &cached, nil
		case !errors.Is(err, cache.ErrNotFound):
			log.Warn("cache read failed", "err", err)
		}
	}

	res, err := e.run(ctx, spec, f)
	metrics.RecordQuery(spec.Name, start, err)
	if err != nil {
		log.Error("stage=query status=error", "duration", time.Since(start), "err", err)
		return nil, err
	}
	log.Debug("stage=query ok", "duration", time.Since(start), "rows", len(res.Rows))

	if key != "" {
		if err := e.Cache.Set(ctx, key, res, e.CacheTTL); err != nil {
			log.Warn("cache write failed", "err", err)
		}
	}
	return res, nil
}

func (e *Engine) run(ctx context.Context, spec QuerySpec, f Filter) (*Result, error) {
	c, err := Compile(e.Repo.Dialect(), e.Table, spec, f)
	if err != nil {
		return nil, err
	}
	rows, err := e.Repo.Query(ctx, c.SQL, c.Args...)
	if err != nil {
		return nil, apperrors.QueryFailed(spec.Name, err)
	}

	kinds := map[string]AggFunc{}
	for _, a := range spec.Aggregates {
		kinds[a.Alias] = a.Func
	}

	res := &Result{Name: spec.Name, Title: spec.Title, Columns: rows.Columns, Rows: make([]records.Record, 0, len(rows.Values))}
	for _, v := range rows.Values {
		rec := make(records.Record, len(rows.Columns))
		for i, col := range rows.Columns {
			rec[col] = resultValue(kinds[col], v[i])
		}
		res.Rows = append(res.Rows, rec)
	}
	return res, nil
}

// resultValue normalizes a driver value: counts become int64, averages are
// rounded half away from zero to int64, group values become string or
// int64.
func resultValue(fn AggFunc, v any) any {
	r := records.Record{"v": v}
	switch fn {
	case Count:
		if n, ok := r.Int64("v"); ok {
			return n
		}
	case Avg:
		if f, ok := r.Float64("v"); ok {
			return int64(math.Round(f))
		}
	}
	switch t := v.(type) {
	case []byte:
		return string(t)
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case int16:
		return int64(t)
	case uint64:
		return int64(t)
	case uint32:
		return int64(t)
	case uint16:
		return int64(t)
	}
	return v
}

// restoreNumbers turns the float64 values JSON decoding produces back into
// int64 where they are integral.
func restoreNumbers(rows []records.Record) {
	for _, r := range rows {
		for k, v := range r {
			if f, ok := v.(float64); ok && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
				r[k] = int64(f)
			}
		}
	}
}

func (e *Engine) cacheKey(ctx context.Context, spec QuerySpec, f Filter) string {
	if e.Cache == nil {
		return ""
	}
	run, err := storage.LatestIngest(ctx, e.Repo, e.Table)
	if err != nil || run == nil {
		e.logger().Debug("results not cached: no ingest run", "table", e.Table, "err", err)
		return ""
	}
	return cache.Key(e.Table, run.Identity(), spec.Name, filterKey(f))
}

func filterKey(f Filter) string {
	if f.IsZero() {
		return "all"
	}
	norm := Filter{JobTitles: slices.Clone(f.JobTitles), ExperienceLevels: slices.Clone(f.ExperienceLevels)}
	slices.Sort(norm.JobTitles)
	slices.Sort(norm.ExperienceLevels)
	b, _ := json.Marshal(norm)
	return string(b)
}

// RunAll runs every spec in order. A failing query does not stop the
// others; its Outcome carries the error.
func (e *Engine) RunAll(ctx context.Context, specs []QuerySpec, f Filter) []Outcome {
	out := make([]Outcome, 0, len(specs))
	for _, spec := range specs {
		res, err := e.Run(ctx, spec, f)
		if err != nil && !apperrors.Is(err, apperrors.KindQueryFailed) {
			err = apperrors.QueryFailed(spec.Name, err)
		}
		out = append(out, Outcome{Spec: spec, Result: res, Err: err})
	}
	return out
}
