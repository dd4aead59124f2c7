package analytics

import (
	"context"

	"jobmarket/internal/schema"
)

// Crosstab is a zero-filled contingency table of posting counts: every
// (row, column) pair over the observed domains has an entry.
type Crosstab struct {
	RowKey string
	ColKey string
	Rows   []string
	Cols   []string
	Counts map[string]map[string]int64
}

// Count returns the count at (row, col); 0 for pairs outside the domains.
func (c *Crosstab) Count(row, col string) int64 {
	return c.Counts[row][col]
}

// RowTotal sums one row.
func (c *Crosstab) RowTotal(row string) int64 {
	var n int64
	for _, v := range c.Counts[row] {
		n += v
	}
	return n
}

// Crosstab counts postings per experience level and company size. Rows are
// ordered EN, MI, SE, EX and columns S, M, L, with other observed values
// after them alphabetically.
func (e *Engine) Crosstab(ctx context.Context, f Filter) (*Crosstab, error) {
	res, err := e.Run(ctx, crosstabSpec(), f)
	if err != nil {
		return nil, err
	}
	return pivot(res, schema.ColExperienceLevel, schema.ColCompanySize, schema.ExperienceOrder, schema.CompanySizeOrder), nil
}

func pivot(res *Result, rowKey, colKey string, rowOrder, colOrder []string) *Crosstab {
	ct := &Crosstab{RowKey: rowKey, ColKey: colKey, Counts: map[string]map[string]int64{}}
	seenCol := map[string]bool{}
	for _, r := range res.Rows {
		row, col := r.String(rowKey), r.String(colKey)
		n, _ := r.Int64(AliasCount)
		if _, ok := ct.Counts[row]; !ok {
			ct.Counts[row] = map[string]int64{}
			ct.Rows = append(ct.Rows, row)
		}
		if !seenCol[col] {
			seenCol[col] = true
			ct.Cols = append(ct.Cols, col)
		}
		ct.Counts[row][col] += n
	}
	for _, row := range ct.Rows {
		for _, col := range ct.Cols {
			if _, ok := ct.Counts[row][col]; !ok {
				ct.Counts[row][col] = 0
			}
		}
	}
	schema.OrderBy(ct.Rows, rowOrder)
	schema.OrderBy(ct.Cols, colOrder)
	return ct
}
