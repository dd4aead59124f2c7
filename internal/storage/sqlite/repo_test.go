package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"jobmarket/internal/storage"
)

func newRepo(t *testing.T, dsn string) storage.Repository {
	t.Helper()
	repo, err := New(context.Background(), storage.Config{Kind: "sqlite", DSN: dsn, BatchSize: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(repo.Close)
	return repo
}

var spec = storage.TableSpec{Name: "job_postings", Columns: []storage.ColumnSpec{
	{Name: "job_title", Type: "text"},
	{Name: "work_year", Type: "int"},
	{Name: "salary_in_usd", Type: "float"},
}}

func rows() [][]any {
	return [][]any{
		{"Data Analyst", int64(2023), 60000.0},
		{"ML Engineer", int64(2024), nil},
		{"Data Scientist", nil, 150000.0},
	}
}

func TestReplaceTable_TwiceSameCount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newRepo(t, filepath.Join(t.TempDir(), "nested", "jobs.db"))

	for i := 1; i <= 2; i++ {
		run := storage.IngestRun{RunID: "run", Fingerprint: "fp", Rows: 3, Source: "test.csv", LoadedAt: time.Unix(int64(i), 0)}
		n, err := repo.ReplaceTable(ctx, spec, rows(), run)
		if err != nil {
			t.Fatalf("ReplaceTable #%d: %v", i, err)
		}
		if n != 3 {
			t.Fatalf("ReplaceTable #%d wrote %d, want 3", i, n)
		}
		count, err := storage.CountRows(ctx, repo, "job_postings")
		if err != nil {
			t.Fatalf("CountRows: %v", err)
		}
		if count != 3 {
			t.Fatalf("after run %d count=%d, want 3", i, count)
		}
	}

	runs, err := storage.CountRows(ctx, repo, storage.RunsTable("job_postings"))
	if err != nil {
		t.Fatalf("count runs: %v", err)
	}
	if runs != 2 {
		t.Fatalf("run log has %d entries, want 2", runs)
	}
}

func TestReplaceTable_ReadBack(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newRepo(t, ":memory:")

	loaded := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if _, err := repo.ReplaceTable(ctx, spec, rows(), storage.IngestRun{RunID: "r1", Fingerprint: "abc", Rows: 3, Source: "s", LoadedAt: loaded}); err != nil {
		t.Fatalf("ReplaceTable: %v", err)
	}

	cols, err := storage.TableColumns(ctx, repo, "job_postings")
	if err != nil {
		t.Fatalf("TableColumns: %v", err)
	}
	if len(cols) != 3 || cols[0] != "job_title" || cols[2] != "salary_in_usd" {
		t.Fatalf("columns=%v", cols)
	}

	sample, err := storage.Sample(ctx, repo, "job_postings", 2)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if len(sample.Values) != 2 {
		t.Fatalf("sample rows=%d, want 2", len(sample.Values))
	}
	if sample.Values[0][0] != "Data Analyst" || sample.Values[0][1] != int64(2023) {
		t.Fatalf("first row=%v", sample.Values[0])
	}
	if sample.Values[1][2] != nil {
		t.Fatalf("NULL salary read back as %v", sample.Values[1][2])
	}

	run, err := storage.LatestIngest(ctx, repo, "job_postings")
	if err != nil {
		t.Fatalf("LatestIngest: %v", err)
	}
	if run == nil || run.RunID != "r1" || run.Rows != 3 || !run.LoadedAt.Equal(loaded) {
		t.Fatalf("run=%+v", run)
	}
}

func TestReplaceTable_RowWidthMismatchRollsBack(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newRepo(t, ":memory:")

	if _, err := repo.ReplaceTable(ctx, spec, rows(), storage.IngestRun{RunID: "ok", LoadedAt: time.Unix(1, 0)}); err != nil {
		t.Fatalf("first ReplaceTable: %v", err)
	}

	bad := append(rows(), []any{"short"})
	if _, err := repo.ReplaceTable(ctx, spec, bad, storage.IngestRun{RunID: "bad", LoadedAt: time.Unix(2, 0)}); err == nil {
		t.Fatalf("expected error for short row")
	}

	count, err := storage.CountRows(ctx, repo, "job_postings")
	if err != nil {
		t.Fatalf("CountRows: %v", err)
	}
	if count != 3 {
		t.Fatalf("count=%d after failed replace, want previous 3", count)
	}
	run, err := storage.LatestIngest(ctx, repo, "job_postings")
	if err != nil || run == nil || run.RunID != "ok" {
		t.Fatalf("run=%+v err=%v, want previous run", run, err)
	}
}

func TestNew_UnusableDirectory(t *testing.T) {
	t.Parallel()

	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(context.Background(), storage.Config{Kind: "sqlite", DSN: filepath.Join(blocker, "jobs.db")}); err == nil {
		t.Fatalf("expected error when parent is a regular file")
	}
}

func TestParentDir(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"database/jobs.db":           "database",
		"jobs.db":                    "",
		":memory:":                   "",
		"file:data/x.db?_pragma=foo": "data",
		"file::memory:?cache=shared": "",
	}
	for in, want := range tests {
		if got := parentDir(in); got != want {
			t.Errorf("parentDir(%q)=%q, want %q", in, got, want)
		}
	}
}
