package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

type ColumnSpec struct {
	Name string `json:"name"`
	// Type is text, int or float.
	Type string `json:"type"`
}

type TableSpec struct {
	Name    string       `json:"name"`
	Columns []ColumnSpec `json:"columns"`
}

// ColumnNames returns the column names in declaration order.
func (t TableSpec) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// RunsTable is the name of the run log kept next to table.
func RunsTable(table string) string {
	return table + "_ingest_runs"
}

// RunsSpec is the run log layout. loaded_at is stored as fixed-width UTC
// text so that it sorts the same in every backend.
func RunsSpec(table string) TableSpec {
	return TableSpec{
		Name: RunsTable(table),
		Columns: []ColumnSpec{
			{Name: "run_id", Type: "text"},
			{Name: "fingerprint", Type: "text"},
			{Name: "row_count", Type: "int"},
			{Name: "source", Type: "text"},
			{Name: "loaded_at", Type: "text"},
		},
	}
}

const loadedAtLayout = "2006-01-02T15:04:05.000000Z"

// RunValues returns run as a row matching RunsSpec.
func RunValues(run IngestRun) []any {
	return []any{run.RunID, run.Fingerprint, run.Rows, run.Source, run.LoadedAt.UTC().Format(loadedAtLayout)}
}

// LatestIngest returns the most recent run recorded for table, or nil when
// the run log is empty.
//
// Errors:
//   - the run log does not exist (table never loaded by this tool).
func LatestIngest(ctx context.Context, q Querier, table string) (*IngestRun, error) {
	d := q.Dialect()
	sql := d.WithLimit("SELECT",
		fmt.Sprintf("%s, %s, %s, %s, %s FROM %s ORDER BY %s DESC",
			d.Ident("run_id"), d.Ident("fingerprint"), d.Ident("row_count"), d.Ident("source"), d.Ident("loaded_at"),
			d.Ident(RunsTable(table)), d.Ident("loaded_at")),
		1)
	rows, err := q.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", RunsTable(table), err)
	}
	if len(rows.Values) == 0 {
		return nil, nil
	}
	v := rows.Values[0]
	run := &IngestRun{
		RunID:       NormalizeKey(v[0]),
		Fingerprint: NormalizeKey(v[1]),
		Source:      NormalizeKey(v[3]),
	}
	if n, err := strconv.ParseInt(NormalizeKey(v[2]), 10, 64); err == nil {
		run.Rows = n
	}
	if ts, err := time.Parse(loadedAtLayout, NormalizeKey(v[4])); err == nil {
		run.LoadedAt = ts
	}
	return run, nil
}

// Sample returns the first n rows of table in storage order.
func Sample(ctx context.Context, q Querier, table string, n int) (Rows, error) {
	d := q.Dialect()
	return q.Query(ctx, d.WithLimit("SELECT", "* FROM "+d.Ident(table), n))
}

// TableColumns returns the column names of table.
func TableColumns(ctx context.Context, q Querier, table string) ([]string, error) {
	rows, err := q.Query(ctx, "SELECT * FROM "+q.Dialect().Ident(table)+" WHERE 1 = 0")
	if err != nil {
		return nil, err
	}
	return rows.Columns, nil
}

// CountRows returns SELECT COUNT(*) for table.
func CountRows(ctx context.Context, q Querier, table string) (int64, error) {
	rows, err := q.Query(ctx, "SELECT COUNT(*) FROM "+q.Dialect().Ident(table))
	if err != nil {
		return 0, err
	}
	if len(rows.Values) == 0 || len(rows.Values[0]) == 0 {
		return 0, fmt.Errorf("count %s: empty result", table)
	}
	n, err := strconv.ParseInt(NormalizeKey(rows.Values[0][0]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}
