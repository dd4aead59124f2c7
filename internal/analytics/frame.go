package analytics

import (
	"context"
	"fmt"
	"strings"

	"jobmarket/internal/classify"
	apperrors "jobmarket/internal/errors"
	"jobmarket/internal/schema"
	"jobmarket/internal/storage"
	"jobmarket/pkg/records"
)

// Posting is one stored row, typed, with its derived role category.
type Posting struct {
	JobTitle        string
	JobCategory     string
	ExperienceLevel string
	WorkSetting     string
	CompanySize     string
	CompanyLocation string
	WorkYear        *int64
	Salary          *float64
	Role            classify.Category
}

var frameColumns = []string{
	schema.ColJobTitle,
	schema.ColJobCategory,
	schema.ColExperienceLevel,
	schema.ColWorkSetting,
	schema.ColCompanySize,
	schema.ColCompanyLocation,
	schema.ColWorkYear,
	schema.ColSalaryInUSD,
}

// filterClause renders f as " WHERE ..." with bound parameters numbered
// after the args already in *args. It returns "" for a zero filter.
func filterClause(d storage.Dialect, f Filter, args *[]any) string {
	var conds []string
	in := func(col string, values []string) {
		ph := make([]string, len(values))
		for i, v := range values {
			*args = append(*args, v)
			ph[i] = d.Param(len(*args))
		}
		conds = append(conds, fmt.Sprintf("%s IN (%s)", d.Ident(col), strings.Join(ph, ", ")))
	}
	if len(f.JobTitles) > 0 {
		in(schema.ColJobTitle, f.JobTitles)
	}
	if len(f.ExperienceLevels) > 0 {
		in(schema.ColExperienceLevel, f.ExperienceLevels)
	}
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

// LoadFrame reads the filtered postings and classifies each title.
func (e *Engine) LoadFrame(ctx context.Context, f Filter) ([]Posting, error) {
	if !identRe.MatchString(e.Table) {
		return nil, apperrors.QueryFailed("frame", fmt.Errorf("malformed table name %q", e.Table))
	}
	d := e.Repo.Dialect()
	cols := make([]string, len(frameColumns))
	for i, c := range frameColumns {
		cols[i] = d.Ident(c)
	}
	var args []any
	q := "SELECT " + strings.Join(cols, ", ") + " FROM " + d.Ident(e.Table) + filterClause(d, f, &args)

	rows, err := e.Repo.Query(ctx, q, args...)
	if err != nil {
		return nil, apperrors.QueryFailed("frame", err)
	}

	out := make([]Posting, 0, len(rows.Values))
	for _, v := range rows.Values {
		rec := make(records.Record, len(frameColumns))
		for i, c := range frameColumns {
			rec[c] = v[i]
		}
		p := Posting{
			JobTitle:        rec.String(schema.ColJobTitle),
			JobCategory:     rec.String(schema.ColJobCategory),
			ExperienceLevel: rec.String(schema.ColExperienceLevel),
			WorkSetting:     rec.String(schema.ColWorkSetting),
			CompanySize:     rec.String(schema.ColCompanySize),
			CompanyLocation: rec.String(schema.ColCompanyLocation),
			Role:            classify.ClassifyValue(rec[schema.ColJobTitle]),
		}
		if n, ok := rec.Int64(schema.ColWorkYear); ok {
			p.WorkYear = &n
		}
		if s, ok := rec.Float64(schema.ColSalaryInUSD); ok {
			p.Salary = &s
		}
		out = append(out, p)
	}
	e.logger().Debug("stage=frame ok", "rows", len(out))
	return out, nil
}

// Salaries returns the non-null salaries of frame.
func Salaries(frame []Posting) []float64 {
	out := make([]float64, 0, len(frame))
	for _, p := range frame {
		if p.Salary != nil {
			out = append(out, *p.Salary)
		}
	}
	return out
}

// Summary computes the KPIs of the filtered postings.
func (e *Engine) Summary(ctx context.Context, f Filter) (Summary, error) {
	frame, err := e.LoadFrame(ctx, f)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(frame), nil
}
