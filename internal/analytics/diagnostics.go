package analytics

import (
	"context"
	"fmt"
	"slices"

	apperrors "jobmarket/internal/errors"
	"jobmarket/internal/schema"
	"jobmarket/internal/storage"
	"jobmarket/pkg/records"
)

// DefaultPreviewRows is how many filtered rows Preview returns by default.
const DefaultPreviewRows = 100

// Columns returns the stored column names in table order.
func (e *Engine) Columns(ctx context.Context) ([]string, error) {
	if !identRe.MatchString(e.Table) {
		return nil, apperrors.QueryFailed("columns", fmt.Errorf("malformed table name %q", e.Table))
	}
	cols, err := storage.TableColumns(ctx, e.Repo, e.Table)
	if err != nil {
		return nil, apperrors.QueryFailed("columns", err)
	}
	return cols, nil
}

// Distinct returns the non-null distinct values of column as text, sorted.
//
// Errors:
//   - QueryFailed when column is not a stored column.
func (e *Engine) Distinct(ctx context.Context, column string) ([]string, error) {
	cols, err := e.Columns(ctx)
	if err != nil {
		return nil, err
	}
	if !identRe.MatchString(column) || !slices.Contains(cols, column) {
		return nil, apperrors.QueryFailed("distinct", fmt.Errorf("unknown column %q (have %v)", column, cols))
	}

	d := e.Repo.Dialect()
	c := d.Ident(column)
	rows, err := e.Repo.Query(ctx, fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL ORDER BY %s", c, d.Ident(e.Table), c, c))
	if err != nil {
		return nil, apperrors.QueryFailed("distinct", err)
	}
	out := make([]string, 0, len(rows.Values))
	for _, v := range rows.Values {
		out = append(out, storage.NormalizeKey(v[0]))
	}
	return out, nil
}

// FilterOptions are the selectable filter values of a loaded table.
type FilterOptions struct {
	JobTitles []string
	// DefaultJobTitles are the five most frequent titles.
	DefaultJobTitles []string
	ExperienceLevels []string
}

// FilterOptions lists every title, the default title selection and every
// experience level in canonical order.
func (e *Engine) FilterOptions(ctx context.Context) (FilterOptions, error) {
	var opts FilterOptions
	var err error
	if opts.JobTitles, err = e.Distinct(ctx, schema.ColJobTitle); err != nil {
		return opts, err
	}
	if opts.ExperienceLevels, err = e.Distinct(ctx, schema.ColExperienceLevel); err != nil {
		return opts, err
	}
	schema.OrderBy(opts.ExperienceLevels, schema.ExperienceOrder)

	top, _ := Lookup("demand_ranking")
	top.Name, top.Limit = "default_job_titles", 5
	res, err := e.Run(ctx, top, Filter{})
	if err != nil {
		return opts, err
	}
	for _, r := range res.Rows {
		opts.DefaultJobTitles = append(opts.DefaultJobTitles, r.String(schema.ColJobTitle))
	}
	return opts, nil
}

// Preview returns the first n filtered rows with every stored column.
// n <= 0 uses DefaultPreviewRows.
func (e *Engine) Preview(ctx context.Context, f Filter, n int) (*Result, error) {
	if !identRe.MatchString(e.Table) {
		return nil, apperrors.QueryFailed("preview", fmt.Errorf("malformed table name %q", e.Table))
	}
	if n <= 0 {
		n = DefaultPreviewRows
	}
	d := e.Repo.Dialect()
	var args []any
	q := d.WithLimit("SELECT", "* FROM "+d.Ident(e.Table)+filterClause(d, f, &args), n)
	rows, err := e.Repo.Query(ctx, q, args...)
	if err != nil {
		return nil, apperrors.QueryFailed("preview", err)
	}
	res := &Result{Name: "preview", Title: "Raw data preview", Columns: rows.Columns, Rows: make([]records.Record, 0, len(rows.Values))}
	for _, v := range rows.Values {
		rec := make(records.Record, len(rows.Columns))
		for i, col := range rows.Columns {
			rec[col] = resultValue("", v[i])
		}
		res.Rows = append(res.Rows, rec)
	}
	return res, nil
}
