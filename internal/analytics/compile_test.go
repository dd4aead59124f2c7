package analytics

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	apperrors "jobmarket/internal/errors"
	"jobmarket/internal/storage"
)

func mustLookup(t *testing.T, name string) QuerySpec {
	t.Helper()
	q, ok := Lookup(name)
	if !ok {
		t.Fatalf("catalog has no %q", name)
	}
	return q
}

func TestCatalog_NamesUniqueAndCompile(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for _, q := range Catalog() {
		if seen[q.Name] {
			t.Fatalf("duplicate catalog name %q", q.Name)
		}
		seen[q.Name] = true
		for _, d := range []storage.Dialect{storage.SQLite, storage.Postgres, storage.MSSQL, storage.DuckDB, storage.ClickHouse} {
			if _, err := Compile(d, "job_postings", q, Filter{}); err != nil {
				t.Errorf("%s/%s: %v", q.Name, d.Name, err)
			}
		}
	}
	if len(seen) != 11 {
		t.Fatalf("catalog has %d entries, want 11", len(seen))
	}
}

func TestCompile_DemandRankingSQLite(t *testing.T) {
	t.Parallel()

	c, err := Compile(storage.SQLite, "job_postings", mustLookup(t, "demand_ranking"), Filter{})
	if err != nil {
		t.Fatal(err)
	}
	want := `SELECT "job_title" AS "job_title", COUNT(*) AS "job_count" FROM "job_postings"` +
		` WHERE "job_title" IS NOT NULL GROUP BY "job_title" ORDER BY "job_count" DESC, "job_title" ASC LIMIT 10`
	if diff := cmp.Diff(want, c.SQL); diff != "" {
		t.Fatalf("SQL mismatch (-want +got):\n%s", diff)
	}
	if len(c.Args) != 0 {
		t.Fatalf("args=%v, want none", c.Args)
	}
}

func TestCompile_PayRankingHaving(t *testing.T) {
	t.Parallel()

	c, err := Compile(storage.Postgres, "job_postings", mustLookup(t, "pay_ranking"), Filter{})
	if err != nil {
		t.Fatal(err)
	}
	for _, frag := range []string{
		`AVG("salary_in_usd") AS "avg_salary"`,
		`"salary_in_usd" IS NOT NULL`,
		`HAVING COUNT(*) > 10`,
		`ORDER BY "avg_salary" DESC, "job_title" ASC LIMIT 10`,
	} {
		if !strings.Contains(c.SQL, frag) {
			t.Errorf("SQL missing %q:\n%s", frag, c.SQL)
		}
	}
}

func TestCompile_FiltersAreBoundPerDialect(t *testing.T) {
	t.Parallel()

	spec := mustLookup(t, "entry_level_titles")
	f := Filter{JobTitles: []string{"Data Analyst"}, ExperienceLevels: []string{"EN"}}

	tests := []struct {
		d    storage.Dialect
		want []string
	}{
		{storage.SQLite, []string{`"experience_level" IN (?, ?, ?)`, `"job_title" IN (?)`, "LIMIT 10"}},
		{storage.Postgres, []string{`"experience_level" IN ($1, $2, $3)`, `"job_title" IN ($4)`, `"experience_level" IN ($5)`}},
		{storage.MSSQL, []string{"SELECT TOP 10 ", `[experience_level] IN (@p1, @p2, @p3)`, `[job_title] IN (@p4)`}},
	}
	for _, tc := range tests {
		t.Run(tc.d.Name, func(t *testing.T) {
			t.Parallel()
			c, err := Compile(tc.d, "job_postings", spec, f)
			if err != nil {
				t.Fatal(err)
			}
			for _, w := range tc.want {
				if !strings.Contains(c.SQL, w) {
					t.Errorf("SQL missing %q:\n%s", w, c.SQL)
				}
			}
			wantArgs := []any{"EN", "Entry-level", "Entry Level", "Data Analyst", "EN"}
			if diff := cmp.Diff(wantArgs, c.Args); diff != "" {
				t.Errorf("args (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCompile_ExperienceLabelsInlined(t *testing.T) {
	t.Parallel()

	c, err := Compile(storage.SQLite, "job_postings", mustLookup(t, "experience_pay"), Filter{})
	if err != nil {
		t.Fatal(err)
	}
	want := `CASE "experience_level" WHEN 'EN' THEN 'Entry-Level' WHEN 'MI' THEN 'Mid-Level' WHEN 'SE' THEN 'Senior' WHEN 'EX' THEN 'Executive' ELSE "experience_level" END AS "experience"`
	if !strings.Contains(c.SQL, want) {
		t.Fatalf("SQL missing label CASE:\n%s", c.SQL)
	}
}

func TestCompile_SalaryBrackets(t *testing.T) {
	t.Parallel()

	c, err := Compile(storage.SQLite, "job_postings", mustLookup(t, "entry_level_salary_brackets"), Filter{})
	if err != nil {
		t.Fatal(err)
	}
	want := `CASE WHEN "salary_in_usd" < 50000 THEN 'Under $50k' WHEN "salary_in_usd" <= 100000 THEN '$50k - $100k'` +
		` WHEN "salary_in_usd" <= 150000 THEN '$100k - $150k' ELSE 'Over $150k' END`
	if !strings.Contains(c.SQL, want) {
		t.Fatalf("SQL missing bracket CASE:\n%s", c.SQL)
	}
}

func TestCompile_Rejects(t *testing.T) {
	t.Parallel()

	good := mustLookup(t, "demand_ranking")
	tests := map[string]struct {
		table string
		spec  QuerySpec
	}{
		"table_injection": {table: `jobs"; DROP TABLE x; --`, spec: good},
		"no_group":        {table: "t", spec: QuerySpec{Name: "x", Aggregates: []Aggregate{countAgg}}},
		"no_aggregate":    {table: "t", spec: QuerySpec{Name: "x", GroupBy: []GroupKey{key("job_title")}}},
		"avg_no_column":   {table: "t", spec: QuerySpec{Name: "x", GroupBy: []GroupKey{key("job_title")}, Aggregates: []Aggregate{{Func: Avg, Alias: "a"}}}},
		"unknown_order":   {table: "t", spec: QuerySpec{Name: "x", GroupBy: []GroupKey{key("job_title")}, Aggregates: []Aggregate{countAgg}, OrderBy: []Order{{By: "nope"}}}},
		"empty_in":        {table: "t", spec: QuerySpec{Name: "x", GroupBy: []GroupKey{key("job_title")}, Aggregates: []Aggregate{countAgg}, Where: []Predicate{{Column: "job_title"}}}},
		"negative_limit":  {table: "t", spec: QuerySpec{Name: "x", GroupBy: []GroupKey{key("job_title")}, Aggregates: []Aggregate{countAgg}, Limit: -1}},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := Compile(storage.SQLite, tc.table, tc.spec, Filter{})
			if !apperrors.Is(err, apperrors.KindQueryFailed) {
				t.Fatalf("err=%v, want QueryFailed", err)
			}
		})
	}
}

func TestFilterKey_OrderInsensitive(t *testing.T) {
	t.Parallel()

	a := filterKey(Filter{JobTitles: []string{"b", "a"}})
	b := filterKey(Filter{JobTitles: []string{"a", "b"}})
	if a != b {
		t.Fatalf("filterKey differs by order: %q vs %q", a, b)
	}
	if filterKey(Filter{}) != "all" {
		t.Fatalf("zero filter key=%q", filterKey(Filter{}))
	}
}
