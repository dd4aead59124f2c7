package storage

import (
	"context"
	"database/sql"
	"fmt"

	"jobmarket/internal/metrics"
)

// SQLDB implements Querier and ReplaceTable on top of database/sql for
// backends whose drivers support ordinary transactions. Backends embed it
// and add their own factory and Close.
type SQLDB struct {
	DB        *sql.DB
	D         Dialect
	BatchSize int
}

func (s *SQLDB) Dialect() Dialect { return s.D }

func (s *SQLDB) Query(ctx context.Context, q string, args ...any) (Rows, error) {
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return Rows{}, err
	}
	defer rows.Close()
	return ScanAll(rows)
}

// ScanAll materializes rows. []byte values are copied to strings.
func ScanAll(rows *sql.Rows) (Rows, error) {
	cols, err := rows.Columns()
	if err != nil {
		return Rows{}, err
	}
	out := Rows{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Rows{}, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		out.Values = append(out.Values, vals)
	}
	return out, rows.Err()
}

// ReplaceTable drops and recreates spec.Name, inserts rows in multi-row
// batches and records run, inside one transaction.
func (s *SQLDB) ReplaceTable(ctx context.Context, spec TableSpec, rows [][]any, run IngestRun) (int64, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	n, err := ReplaceInTx(ctx, tx, s.D, spec, rows, run, s.BatchSize)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// Execer is satisfied by *sql.Tx and *sql.DB.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ReplaceInTx runs the drop/create/insert/record sequence on ex.
func ReplaceInTx(ctx context.Context, ex Execer, d Dialect, spec TableSpec, rows [][]any, run IngestRun, batchSize int) (int64, error) {
	if _, err := ex.ExecContext(ctx, d.DropTable(spec.Name)); err != nil {
		return 0, fmt.Errorf("drop %s: %w", spec.Name, err)
	}
	if _, err := ex.ExecContext(ctx, d.CreateTable(spec, false)); err != nil {
		return 0, fmt.Errorf("create %s: %w", spec.Name, err)
	}

	cols := spec.ColumnNames()
	per := d.RowsPerStatement(len(cols), batchSize)
	var written int64
	args := make([]any, 0, per*len(cols))
	for start := 0; start < len(rows); start += per {
		end := start + per
		if end > len(rows) {
			end = len(rows)
		}
		args = args[:0]
		for _, r := range rows[start:end] {
			if len(r) != len(cols) {
				return 0, fmt.Errorf("insert %s: row has %d values, table has %d columns", spec.Name, len(r), len(cols))
			}
			args = append(args, r...)
		}
		if _, err := ex.ExecContext(ctx, d.Insert(spec.Name, cols, end-start), args...); err != nil {
			return 0, fmt.Errorf("insert %s rows %d-%d: %w", spec.Name, start+1, end, err)
		}
		written += int64(end - start)
		metrics.RecordBatch()
	}

	runs := RunsSpec(spec.Name)
	if _, err := ex.ExecContext(ctx, d.CreateTable(runs, true)); err != nil {
		return 0, fmt.Errorf("create %s: %w", runs.Name, err)
	}
	if _, err := ex.ExecContext(ctx, d.Insert(runs.Name, runs.ColumnNames(), 1), RunValues(run)...); err != nil {
		return 0, fmt.Errorf("record run: %w", err)
	}
	return written, nil
}
