package analytics

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"jobmarket/internal/cache"
	apperrors "jobmarket/internal/errors"
	"jobmarket/internal/schema"
	"jobmarket/internal/storage"
	"jobmarket/internal/storage/sqlite"
	"jobmarket/pkg/records"
)

var postingSpec = storage.TableSpec{Name: "job_postings", Columns: []storage.ColumnSpec{
	{Name: schema.ColJobTitle, Type: "text"},
	{Name: schema.ColJobCategory, Type: "text"},
	{Name: schema.ColExperienceLevel, Type: "text"},
	{Name: schema.ColWorkSetting, Type: "text"},
	{Name: schema.ColCompanySize, Type: "text"},
	{Name: schema.ColCompanyLocation, Type: "text"},
	{Name: schema.ColWorkYear, Type: "int"},
	{Name: schema.ColSalaryInUSD, Type: "float"},
}}

// row builds a posting row in postingSpec column order. salary < 0 stores NULL.
func row(title, level, setting, size, location string, salary float64) []any {
	var s any = salary
	if salary < 0 {
		s = nil
	}
	return []any{title, "Data Science", level, setting, size, location, int64(2024), s}
}

func seed(t *testing.T, rows [][]any) storage.Repository {
	t.Helper()
	ctx := context.Background()
	repo, err := sqlite.New(ctx, storage.Config{Kind: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	t.Cleanup(repo.Close)
	run := storage.IngestRun{RunID: "run-1", Fingerprint: "fp", Rows: int64(len(rows)), Source: "test", LoadedAt: time.Unix(100, 0)}
	if _, err := repo.ReplaceTable(ctx, postingSpec, rows, run); err != nil {
		t.Fatalf("ReplaceTable: %v", err)
	}
	return repo
}

func TestEngine_ExperiencePayExample(t *testing.T) {
	t.Parallel()

	repo := seed(t, [][]any{
		row("Data Scientist", "SE", "Remote", "M", "US", 150000),
		row("ML Engineer", "SE", "In-person", "L", "US", 170000),
		row("Data Analyst", "EN", "Hybrid", "S", "GB", 60000),
	})
	e := &Engine{Repo: repo, Table: "job_postings"}

	res, err := e.Run(context.Background(), mustLookup(t, "experience_pay"), Filter{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []records.Record{
		{"experience": "Senior", AliasCount: int64(2), AliasAvgSalary: int64(160000)},
		{"experience": "Entry-Level", AliasCount: int64(1), AliasAvgSalary: int64(60000)},
	}
	if diff := cmp.Diff(want, res.Rows); diff != "" {
		t.Fatalf("rows (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"experience", AliasCount, AliasAvgSalary}, res.Columns); diff != "" {
		t.Fatalf("columns (-want +got):\n%s", diff)
	}
}

func TestEngine_PayRankingExcludesSmallGroups(t *testing.T) {
	t.Parallel()

	var rows [][]any
	for i := 0; i < 11; i++ {
		rows = append(rows, row("Data Engineer", "MI", "Remote", "M", "US", 100000))
	}
	for i := 0; i < 10; i++ {
		rows = append(rows, row("Chief Scientist", "EX", "Remote", "L", "US", 900000))
	}
	e := &Engine{Repo: seed(t, rows), Table: "job_postings"}

	res, err := e.Run(context.Background(), mustLookup(t, "pay_ranking"), Filter{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []records.Record{{schema.ColJobTitle: "Data Engineer", AliasAvgSalary: int64(100000)}}
	if diff := cmp.Diff(want, res.Rows); diff != "" {
		t.Fatalf("rows (-want +got):\n%s", diff)
	}
}

func TestEngine_EntryLevelSynonyms(t *testing.T) {
	t.Parallel()

	e := &Engine{Repo: seed(t, [][]any{
		row("Data Analyst", "EN", "Remote", "S", "US", 50000),
		row("Data Analyst", "Entry-level", "Fully Remote", "S", "US", 70000),
		row("Data Analyst", "Entry Level", "In-person", "M", "DE", 150001),
		row("Data Analyst", "MI", "Remote", "S", "US", 90000),
		row("Data Analyst", "EN", "Remote", "S", "US", 49999),
	}), Table: "job_postings"}
	ctx := context.Background()

	res, err := e.Run(ctx, mustLookup(t, "entry_level_titles"), Filter{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []records.Record{{schema.ColJobTitle: "Data Analyst", AliasCount: int64(4), AliasAvgSalary: int64(80000)}}
	if diff := cmp.Diff(want, res.Rows); diff != "" {
		t.Fatalf("entry titles (-want +got):\n%s", diff)
	}

	res, err = e.Run(ctx, mustLookup(t, "entry_level_remote_locations"), Filter{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want = []records.Record{{schema.ColCompanyLocation: "US", AliasCount: int64(3), AliasAvgSalary: int64(56666)}}
	if diff := cmp.Diff(want, res.Rows); diff != "" {
		t.Fatalf("remote locations (-want +got):\n%s", diff)
	}

	res, err = e.Run(ctx, mustLookup(t, "entry_level_salary_brackets"), Filter{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want = []records.Record{
		{"salary_bracket": "$50k - $100k", AliasCount: int64(2)},
		{"salary_bracket": "Over $150k", AliasCount: int64(1)},
		{"salary_bracket": "Under $50k", AliasCount: int64(1)},
	}
	if diff := cmp.Diff(want, res.Rows); diff != "" {
		t.Fatalf("brackets (-want +got):\n%s", diff)
	}
}

func TestEngine_NullsExcluded(t *testing.T) {
	t.Parallel()

	e := &Engine{Repo: seed(t, [][]any{
		row("Data Analyst", "MI", "Remote", "S", "US", 80000),
		row("Data Analyst", "MI", "Remote", "S", "US", -1),
		row("Data Analyst", "", "Remote", "S", "US", 10),
	}), Table: "job_postings"}
	ctx := context.Background()

	res, err := e.Run(ctx, mustLookup(t, "experience_pay"), Filter{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// "" is a stored value, not NULL, and passes through unlabeled.
	want := []records.Record{
		{"experience": "Mid-Level", AliasCount: int64(1), AliasAvgSalary: int64(80000)},
		{"experience": "", AliasCount: int64(1), AliasAvgSalary: int64(10)},
	}
	if diff := cmp.Diff(want, res.Rows); diff != "" {
		t.Fatalf("rows (-want +got):\n%s", diff)
	}

	res, err = e.Run(ctx, mustLookup(t, "demand_ranking"), Filter{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n, _ := res.Rows[0].Int64(AliasCount); n != 3 {
		t.Fatalf("demand count=%d, want 3 (null salary still counted)", n)
	}
}

func TestEngine_Filter(t *testing.T) {
	t.Parallel()

	e := &Engine{Repo: seed(t, [][]any{
		row("Data Analyst", "EN", "Remote", "S", "US", 60000),
		row("Data Scientist", "SE", "Remote", "M", "US", 150000),
		row("Data Scientist", "MI", "Remote", "M", "US", 110000),
	}), Table: "job_postings"}

	res, err := e.Run(context.Background(), mustLookup(t, "demand_ranking"), Filter{JobTitles: []string{"Data Scientist"}, ExperienceLevels: []string{"SE"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []records.Record{{schema.ColJobTitle: "Data Scientist", AliasCount: int64(1)}}
	if diff := cmp.Diff(want, res.Rows); diff != "" {
		t.Fatalf("rows (-want +got):\n%s", diff)
	}
}

func TestEngine_RunAllIsolatesFailures(t *testing.T) {
	t.Parallel()

	e := &Engine{Repo: seed(t, [][]any{row("Data Analyst", "EN", "Remote", "S", "US", 60000)}), Table: "job_postings"}
	bad := QuerySpec{Name: "broken", GroupBy: []GroupKey{key(schema.ColJobTitle)}, Aggregates: []Aggregate{{Func: Avg, Alias: "a"}}}
	specs := []QuerySpec{mustLookup(t, "demand_ranking"), bad, mustLookup(t, "yearly_trend")}

	out := e.RunAll(context.Background(), specs, Filter{})
	if len(out) != 3 {
		t.Fatalf("outcomes=%d, want 3", len(out))
	}
	if out[0].Err != nil || out[0].Result == nil {
		t.Fatalf("demand_ranking: %+v", out[0])
	}
	if !apperrors.Is(out[1].Err, apperrors.KindQueryFailed) || out[1].Result != nil {
		t.Fatalf("broken: err=%v result=%v", out[1].Err, out[1].Result)
	}
	if out[2].Err != nil {
		t.Fatalf("yearly_trend after failure: %v", out[2].Err)
	}
	want := []records.Record{{schema.ColWorkYear: int64(2024), AliasCount: int64(1), AliasAvgSalary: int64(60000)}}
	if diff := cmp.Diff(want, out[2].Result.Rows); diff != "" {
		t.Fatalf("yearly_trend (-want +got):\n%s", diff)
	}
}

type countingQuerier struct {
	storage.Querier
	queries atomic.Int64
}

func (c *countingQuerier) Query(ctx context.Context, q string, args ...any) (storage.Rows, error) {
	c.queries.Add(1)
	return c.Querier.Query(ctx, q, args...)
}

func TestEngine_CacheHitRestoresIntegers(t *testing.T) {
	t.Parallel()

	cq := &countingQuerier{Querier: seed(t, [][]any{
		row("Data Analyst", "EN", "Remote", "S", "US", 60000),
		row("Data Analyst", "EN", "Remote", "S", "US", 61001),
	})}
	mem := cache.NewMemory(time.Minute)
	t.Cleanup(func() { _ = mem.Close() })
	e := &Engine{Repo: cq, Table: "job_postings", Cache: mem}
	ctx := context.Background()
	spec := mustLookup(t, "location_ranking")

	first, err := e.Run(ctx, spec, Filter{})
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	afterFirst := cq.queries.Load()

	second, err := e.Run(ctx, spec, Filter{})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("cached result differs (-first +second):\n%s", diff)
	}
	// only the identity lookup reaches the store on a hit
	if got := cq.queries.Load() - afterFirst; got != 1 {
		t.Fatalf("store queries on cache hit=%d, want 1", got)
	}
	if v, ok := second.Rows[0][AliasAvgSalary].(int64); !ok || v != 60501 {
		t.Fatalf("cached avg=%#v, want int64(60501)", second.Rows[0][AliasAvgSalary])
	}

	if _, err := e.Run(ctx, spec, Filter{JobTitles: []string{"Data Analyst"}}); err != nil {
		t.Fatal(err)
	}
	if mem.Len() != 2 {
		t.Fatalf("cache entries=%d, want 2 (filter is part of the key)", mem.Len())
	}
}

func TestEngine_NoRunLogSkipsCache(t *testing.T) {
	t.Parallel()

	repo := seed(t, [][]any{row("Data Analyst", "EN", "Remote", "S", "US", 60000)})
	mem := cache.NewMemory(time.Minute)
	t.Cleanup(func() { _ = mem.Close() })
	e := &Engine{Repo: repo, Table: "other_table", Cache: mem}

	if _, err := e.Run(context.Background(), mustLookup(t, "demand_ranking"), Filter{}); err == nil {
		t.Fatalf("expected QueryFailed for a missing table")
	}
	if mem.Len() != 0 {
		t.Fatalf("cache entries=%d, want 0", mem.Len())
	}
}

func TestEngine_Crosstab(t *testing.T) {
	t.Parallel()

	e := &Engine{Repo: seed(t, [][]any{
		row("A", "SE", "Remote", "L", "US", 1),
		row("A", "EN", "Remote", "S", "US", 1),
		row("A", "EN", "Remote", "S", "US", 1),
		row("A", "MI", "Remote", "M", "US", 1),
		row("A", "XX", "Remote", "M", "US", 1),
	}), Table: "job_postings"}

	ct, err := e.Crosstab(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("Crosstab: %v", err)
	}
	if diff := cmp.Diff([]string{"EN", "MI", "SE", "XX"}, ct.Rows); diff != "" {
		t.Fatalf("rows (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"S", "M", "L"}, ct.Cols); diff != "" {
		t.Fatalf("cols (-want +got):\n%s", diff)
	}
	for _, r := range ct.Rows {
		for _, c := range ct.Cols {
			if _, ok := ct.Counts[r][c]; !ok {
				t.Fatalf("missing cell (%s,%s)", r, c)
			}
		}
	}
	if ct.Count("EN", "S") != 2 || ct.Count("EN", "L") != 0 || ct.RowTotal("EN") != 2 {
		t.Fatalf("counts=%v", ct.Counts)
	}
}

func TestEngine_FrameAndDiagnostics(t *testing.T) {
	t.Parallel()

	e := &Engine{Repo: seed(t, [][]any{
		row("Senior Engineering Manager", "EX", "Remote", "L", "US", 200000),
		row("Data Analyst", "EN", "In-person", "S", "US", 100000),
		row("Data Analyst", "EN", "Hybrid", "S", "GB", -1),
		row("Senior Data Scientist", "SE", "Fully Remote", "M", "US", 150000),
	}), Table: "job_postings"}
	ctx := context.Background()

	frame, err := e.LoadFrame(ctx, Filter{})
	if err != nil {
		t.Fatalf("LoadFrame: %v", err)
	}
	if len(frame) != 4 {
		t.Fatalf("frame rows=%d, want 4", len(frame))
	}
	if frame[0].Role != "Leadership / Manager" || frame[0].WorkYear == nil || *frame[0].WorkYear != 2024 {
		t.Fatalf("frame[0]=%+v", frame[0])
	}
	if frame[2].Salary != nil {
		t.Fatalf("null salary loaded as %v", *frame[2].Salary)
	}

	s := Summarize(frame)
	want := Summary{TotalJobs: 4, SalariedJobs: 3, AvgSalary: 150000, RemoteJobs: 2, LeadershipRoles: 1}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Fatalf("summary (-want +got):\n%s", diff)
	}

	p, err := ManagerPremium(frame)
	if err != nil {
		t.Fatalf("ManagerPremium: %v", err)
	}
	if p.Percent != 100 || math.IsInf(p.Percent, 0) {
		t.Fatalf("premium=%+v, want 100%%", p)
	}

	opts, err := e.FilterOptions(ctx)
	if err != nil {
		t.Fatalf("FilterOptions: %v", err)
	}
	if diff := cmp.Diff([]string{"EN", "SE", "EX"}, opts.ExperienceLevels); diff != "" {
		t.Fatalf("levels (-want +got):\n%s", diff)
	}
	if len(opts.JobTitles) != 3 || opts.DefaultJobTitles[0] != "Data Analyst" {
		t.Fatalf("titles=%v defaults=%v", opts.JobTitles, opts.DefaultJobTitles)
	}

	if _, err := e.Distinct(ctx, "nope"); !apperrors.Is(err, apperrors.KindQueryFailed) {
		t.Fatalf("Distinct(unknown) err=%v", err)
	}

	prev, err := e.Preview(ctx, Filter{JobTitles: []string{"Data Analyst"}}, 1)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if len(prev.Rows) != 1 || len(prev.Columns) != len(postingSpec.Columns) {
		t.Fatalf("preview=%+v", prev)
	}
}

func TestEngine_QueryErrorIsQueryFailed(t *testing.T) {
	t.Parallel()

	e := &Engine{Repo: failingQuerier{}, Table: "job_postings"}
	_, err := e.Run(context.Background(), mustLookup(t, "demand_ranking"), Filter{})
	if !apperrors.Is(err, apperrors.KindQueryFailed) || !errors.Is(err, errStore) {
		t.Fatalf("err=%v", err)
	}
}

var errStore = errors.New("store gone")

type failingQuerier struct{}

func (failingQuerier) Dialect() storage.Dialect { return storage.SQLite }
func (failingQuerier) Query(context.Context, string, ...any) (storage.Rows, error) {
	return storage.Rows{}, errStore
}

func TestEngine_Summary(t *testing.T) {
	t.Parallel()

	repo := seed(t, [][]any{
		row("Data Scientist", "SE", "Remote", "M", "US", 150000),
		row("Head of Data", "EX", "Fully Remote", "L", "US", 210000),
		row("Data Analyst", "EN", "Hybrid", "S", "GB", -1),
	})
	e := &Engine{Repo: repo, Table: "job_postings"}

	got, err := e.Summary(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	want := Summary{TotalJobs: 3, SalariedJobs: 2, AvgSalary: 180000, RemoteJobs: 2, LeadershipRoles: 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}

	got, err = e.Summary(context.Background(), Filter{ExperienceLevels: []string{"EN"}})
	if err != nil {
		t.Fatal(err)
	}
	if got.TotalJobs != 1 || got.SalariedJobs != 0 || got.AvgSalary != 0 {
		t.Fatalf("EN summary=%+v", got)
	}

	e.Table = "missing"
	if _, err := e.Summary(context.Background(), Filter{}); !apperrors.Is(err, apperrors.KindQueryFailed) {
		t.Fatalf("err=%v, want QueryFailed", err)
	}
}
