package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"

	"jobmarket/internal/cache"
	"jobmarket/internal/config"
	apperrors "jobmarket/internal/errors"
	"jobmarket/internal/storage"
	"jobmarket/internal/storage/sqlite"
)

const header = "work_year,Experience Level,Job Title,job_category,salary_in_usd,Work Setting,company_location,company_size\n"

var loadedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func writeCSV(t *testing.T, dir string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, "jobs_data.csv")
	body := header + strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func pipelineFor(dir, csvPath string) config.Pipeline {
	p := config.Default()
	p.Source = config.Source{Kind: "file", File: &config.FileSource{Path: csvPath}}
	p.Storage.DSN = filepath.Join(dir, "database", "jobs.db")
	return p
}

func newRunner() *Runner {
	return &Runner{
		Clock:   clockwork.NewFakeClockAt(loadedAt),
		BackOff: func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	}
}

func openStore(t *testing.T, p config.Pipeline) storage.Repository {
	t.Helper()
	repo, err := sqlite.New(context.Background(), storage.Config{Kind: "sqlite", DSN: p.Storage.DSN})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(repo.Close)
	return repo
}

var sampleLines = []string{
	"2023,SE,Data Scientist,Data Science,150000,Remote,United States,M",
	"2023,Entry-level,Data Analyst,Data Analysis,\"60,000\",In-person,Germany,S",
	"2022,MI,ML Engineer,Machine Learning,n/a,Hybrid,United States,L",
}

func TestRun_ReplacesTable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := pipelineFor(dir, writeCSV(t, dir, sampleLines...))
	r := newRunner()
	ctx := context.Background()

	first, err := r.Run(ctx, p)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	second, err := r.Run(ctx, p)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if first.Run.Rows != 3 || second.Run.Rows != 3 {
		t.Fatalf("rows=%d,%d want 3,3", first.Run.Rows, second.Run.Rows)
	}
	if first.Run.Fingerprint != second.Run.Fingerprint {
		t.Fatalf("fingerprint changed between identical loads")
	}
	if first.Run.RunID == second.Run.RunID {
		t.Fatalf("run ids must differ")
	}
	if first.CoerceFailures != 1 {
		t.Fatalf("coerce failures=%d, want 1", first.CoerceFailures)
	}

	repo := openStore(t, p)
	n, err := storage.CountRows(ctx, repo, p.Storage.Table)
	if err != nil || n != 3 {
		t.Fatalf("CountRows=%d err=%v, want 3", n, err)
	}
	latest, err := storage.LatestIngest(ctx, repo, p.Storage.Table)
	if err != nil || latest == nil {
		t.Fatalf("LatestIngest=%v err=%v", latest, err)
	}
	if latest.Source != p.Source.File.Path || !latest.LoadedAt.Equal(loadedAt) || latest.Rows != 3 {
		t.Fatalf("latest run=%+v", *latest)
	}
}

func TestRun_PreservesOrderAndNormalizesValues(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := pipelineFor(dir, writeCSV(t, dir, sampleLines...))
	res, err := newRunner().Run(context.Background(), p)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantCols := []string{"work_year", "experience_level", "job_title", "job_category", "salary_in_usd", "work_setting", "company_location", "company_size"}
	if diff := cmp.Diff(wantCols, res.Columns); diff != "" {
		t.Fatalf("columns (-want +got):\n%s", diff)
	}

	repo := openStore(t, p)
	got, err := repo.Query(context.Background(),
		`SELECT "work_year", "experience_level", "job_title", "salary_in_usd" FROM "job_postings"`)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	want := [][]any{
		{int64(2023), "SE", "Data Scientist", float64(150000)},
		{int64(2023), "EN", "Data Analyst", float64(60000)},
		{int64(2022), "MI", "ML Engineer", nil},
	}
	if diff := cmp.Diff(want, got.Values); diff != "" {
		t.Fatalf("stored rows (-want +got):\n%s", diff)
	}
}

func TestRun_WorkersKeepSourceOrder(t *testing.T) {
	t.Parallel()

	var lines []string
	for i := 0; i < 500; i++ {
		lines = append(lines, fmt.Sprintf("2023,SE,Engineer %03d,Data Engineering,%d,Remote,Canada,M", i, 100000+i))
	}

	dir := t.TempDir()
	csvPath := writeCSV(t, dir, lines...)

	single := pipelineFor(filepath.Join(dir, "one"), csvPath)
	single.Runtime.ChannelBuffer = 4
	parallel := pipelineFor(filepath.Join(dir, "many"), csvPath)
	parallel.Runtime.TransformWorkers = 4
	parallel.Runtime.ChannelBuffer = 4

	a, err := newRunner().Run(context.Background(), single)
	if err != nil {
		t.Fatalf("single: %v", err)
	}
	b, err := newRunner().Run(context.Background(), parallel)
	if err != nil {
		t.Fatalf("parallel: %v", err)
	}
	if a.Run.Fingerprint != b.Run.Fingerprint {
		t.Fatalf("worker count changed the loaded data")
	}

	repo := openStore(t, parallel)
	rows, err := storage.Sample(context.Background(), repo, parallel.Storage.Table, 2)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if rows.Values[0][2] != "Engineer 000" || rows.Values[1][2] != "Engineer 001" {
		t.Fatalf("first rows out of order: %v", rows.Values)
	}
}

func TestRun_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	missing := pipelineFor(dir, filepath.Join(dir, "nope.csv"))
	if _, err := newRunner().Run(ctx, missing); !apperrors.Is(err, apperrors.KindSourceNotFound) {
		t.Fatalf("missing source err=%v, want SourceNotFound", err)
	}

	short := filepath.Join(dir, "short.csv")
	if err := os.WriteFile(short, []byte("job_title,salary_in_usd\nAnalyst,1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := newRunner().Run(ctx, pipelineFor(dir, short))
	if !apperrors.Is(err, apperrors.KindInvalidConfig) || !strings.Contains(err.Error(), "experience_level") {
		t.Fatalf("missing column err=%v, want InvalidConfig naming experience_level", err)
	}

	bad := pipelineFor(dir, short)
	bad.Storage.Kind = "oracle"
	if _, err := newRunner().Run(ctx, bad); !apperrors.Is(err, apperrors.KindInvalidConfig) {
		t.Fatalf("bad storage kind err=%v, want InvalidConfig", err)
	}
}

func TestRun_StoreRetriesThenUnavailable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := pipelineFor(dir, writeCSV(t, dir, sampleLines...))
	p.Runtime.StoreRetries = 2

	attempts := 0
	r := newRunner()
	r.NewRepository = func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		attempts++
		return nil, errors.New("connection refused")
	}

	_, err := r.Run(context.Background(), p)
	if !apperrors.Is(err, apperrors.KindStoreUnavailable) {
		t.Fatalf("err=%v, want StoreUnavailable", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts=%d, want 3", attempts)
	}
}

func TestRun_StoreRecoversAfterRetry(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := pipelineFor(dir, writeCSV(t, dir, sampleLines...))

	attempts := 0
	r := newRunner()
	r.NewRepository = func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("database is locked")
		}
		return sqlite.New(ctx, cfg)
	}
	res, err := r.Run(context.Background(), p)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if attempts != 2 || res.Run.Rows != 3 {
		t.Fatalf("attempts=%d rows=%d", attempts, res.Run.Rows)
	}
}

func TestRun_ClearsCache(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := pipelineFor(dir, writeCSV(t, dir, sampleLines...))
	mem := cache.NewMemory(time.Minute)
	t.Cleanup(func() { _ = mem.Close() })

	ctx := context.Background()
	if err := mem.Set(ctx, cache.Key("job_postings", "old", "demand_ranking", "all"), []int{1}, 0); err != nil {
		t.Fatal(err)
	}

	r := newRunner()
	r.Cache = mem
	if _, err := r.Run(ctx, p); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if mem.Len() != 0 {
		t.Fatalf("cache len=%d after ingest, want 0", mem.Len())
	}
}

func TestVerify(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := pipelineFor(dir, writeCSV(t, dir, sampleLines...))
	res, err := newRunner().Run(context.Background(), p)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	repo := openStore(t, p)
	v, err := Verify(context.Background(), repo, p.Storage.Table, 0)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(v.Sample.Values) != DefaultVerifyRows || v.Total != 3 {
		t.Fatalf("sample=%d total=%d", len(v.Sample.Values), v.Total)
	}
	if v.Run == nil || v.Run.RunID != res.Run.RunID {
		t.Fatalf("run=%v, want %s", v.Run, res.Run.RunID)
	}
	if diff := cmp.Diff(res.Columns, v.Sample.Columns); diff != "" {
		t.Fatalf("sample columns (-want +got):\n%s", diff)
	}

	if _, err := Verify(context.Background(), repo, "missing_table", 1); !apperrors.Is(err, apperrors.KindQueryFailed) {
		t.Fatalf("err=%v, want QueryFailed", err)
	}
}

func TestVerify_RunLog(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := pipelineFor(dir, writeCSV(t, dir, sampleLines...))
	if err := os.MkdirAll(filepath.Dir(p.Storage.DSN), 0o755); err != nil {
		t.Fatal(err)
	}
	db, err := sql.Open("sqlite", p.Storage.DSN)
	if err != nil {
		t.Fatal(err)
	}
	for _, stmt := range []string{
		`CREATE TABLE plain (job_title TEXT)`,
		`INSERT INTO plain VALUES ('Data Analyst')`,
		`CREATE TABLE broken (job_title TEXT)`,
		`INSERT INTO broken VALUES ('Data Analyst')`,
		`CREATE TABLE broken_ingest_runs (note TEXT)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("%s: %v", stmt, err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	repo := openStore(t, p)
	v, err := Verify(context.Background(), repo, "plain", 1)
	if err != nil {
		t.Fatalf("Verify without run log: %v", err)
	}
	if v.Run != nil || v.Total != 1 {
		t.Fatalf("run=%v total=%d, want no run and 1 row", v.Run, v.Total)
	}

	if _, err := Verify(context.Background(), repo, "broken", 1); !apperrors.Is(err, apperrors.KindQueryFailed) {
		t.Fatalf("err=%v, want QueryFailed for an unreadable run log", err)
	}
}

func TestTableSpec(t *testing.T) {
	t.Parallel()

	got := TableSpec("t", []string{"a", "b", "c"}, map[string]string{"a": "int", "b": "FLOAT"})
	want := storage.TableSpec{Name: "t", Columns: []storage.ColumnSpec{
		{Name: "a", Type: "int"}, {Name: "b", Type: "float"}, {Name: "c", Type: "text"},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}
