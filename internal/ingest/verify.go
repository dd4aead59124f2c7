package ingest

import (
	"context"

	apperrors "jobmarket/internal/errors"
	"jobmarket/internal/storage"
)

const DefaultVerifyRows = 3

// Verification is the read-back produced by Verify.
type Verification struct {
	Sample storage.Rows
	Total  int64
	Run    *storage.IngestRun
}

// Verify reads back the first n rows of table (n <= 0 means
// DefaultVerifyRows) together with its row count and latest run.
// Run is nil for tables loaded by other tools.
//
// Errors:
//   - QueryFailed when the table or an existing run log cannot be read.
func Verify(ctx context.Context, q storage.Querier, table string, n int) (Verification, error) {
	if n <= 0 {
		n = DefaultVerifyRows
	}
	sample, err := storage.Sample(ctx, q, table, n)
	if err != nil {
		return Verification{}, apperrors.QueryFailed("verify "+table, err)
	}
	total, err := storage.CountRows(ctx, q, table)
	if err != nil {
		return Verification{}, apperrors.QueryFailed("verify "+table, err)
	}
	// a table loaded by another tool has no run log
	if cols, err := storage.TableColumns(ctx, q, storage.RunsTable(table)); err != nil || len(cols) == 0 {
		return Verification{Sample: sample, Total: total}, nil
	}
	run, err := storage.LatestIngest(ctx, q, table)
	if err != nil {
		return Verification{}, apperrors.QueryFailed("verify "+table, err)
	}
	return Verification{Sample: sample, Total: total, Run: run}, nil
}
