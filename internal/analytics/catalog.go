// Package analytics runs the aggregate catalog over the postings table and
// derives the in-memory analyses (manager premium, crosstab, distributions)
// the reports are built from.
//
// Queries are data: a QuerySpec names its grouping keys, aggregates,
// filters, minimum group size, ordering and limit, and Compile turns it into
// SQL for a storage.Dialect. Adding a query is adding a catalog entry.
package analytics

import (
	"jobmarket/internal/schema"
)

type AggFunc string

const (
	Count AggFunc = "count"
	Avg   AggFunc = "avg"
)

// Aggregate is one summary column. Count ignores Column; Avg requires it.
// Avg results are rounded to whole units in Result rows.
type Aggregate struct {
	Func   AggFunc
	Column string
	Alias  string
}

// Label maps a stored value to a display label.
type Label struct {
	Value string
	Text  string
}

// Bracket is one bucket of a numeric grouping key. Brackets are tested in
// order; UpTo is the upper bound (inclusive when Inclusive is set). The
// last bracket may set Else to catch everything above.
type Bracket struct {
	Label     string
	UpTo      float64
	Inclusive bool
	Else      bool
}

// GroupKey is one grouping column. With Labels the key is the label of the
// stored value (unknown values pass through); with Brackets it is the
// bracket label.
type GroupKey struct {
	Column   string
	Alias    string
	Labels   []Label
	Brackets []Bracket
}

// Predicate restricts Column to a value set.
type Predicate struct {
	Column string
	In     []string
}

type Order struct {
	By   string
	Desc bool
}

type QuerySpec struct {
	Name       string
	Title      string
	GroupBy    []GroupKey
	Aggregates []Aggregate
	Where      []Predicate
	// MinCount keeps only groups with COUNT(*) > MinCount. Zero disables it.
	MinCount int
	OrderBy  []Order
	Limit    int
}

// Filter holds caller selections. An empty set means no filter.
type Filter struct {
	JobTitles        []string `json:"job_titles,omitempty"`
	ExperienceLevels []string `json:"experience_levels,omitempty"`
}

// IsZero reports whether f filters nothing.
func (f Filter) IsZero() bool {
	return len(f.JobTitles) == 0 && len(f.ExperienceLevels) == 0
}

const (
	AliasCount     = "job_count"
	AliasAvgSalary = "avg_salary"
)

var (
	countAgg = Aggregate{Func: Count, Alias: AliasCount}
	avgAgg   = Aggregate{Func: Avg, Column: schema.ColSalaryInUSD, Alias: AliasAvgSalary}
)

func key(col string) GroupKey { return GroupKey{Column: col, Alias: col} }

// ExperienceKey groups by experience level shown as its display label.
func ExperienceKey() GroupKey {
	k := GroupKey{Column: schema.ColExperienceLevel, Alias: "experience"}
	for _, pair := range schema.ExperienceLabels() {
		k.Labels = append(k.Labels, Label{Value: pair[0], Text: pair[1]})
	}
	return k
}

// SalaryBracketKey buckets salary_in_usd into four bands. Bounds match a
// BETWEEN chain: 50000 and 100000 fall in "$50k - $100k", 150000 in
// "$100k - $150k".
func SalaryBracketKey() GroupKey {
	return GroupKey{
		Column: schema.ColSalaryInUSD,
		Alias:  "salary_bracket",
		Brackets: []Bracket{
			{Label: "Under $50k", UpTo: 50000},
			{Label: "$50k - $100k", UpTo: 100000, Inclusive: true},
			{Label: "$100k - $150k", UpTo: 150000, Inclusive: true},
			{Label: "Over $150k", Else: true},
		},
	}
}

// EntryLevel returns spec restricted to entry-level postings under any of
// the accepted spellings.
func EntryLevel(spec QuerySpec) QuerySpec {
	spec.Where = append(append([]Predicate(nil), spec.Where...), Predicate{
		Column: schema.ColExperienceLevel,
		In:     append([]string(nil), schema.EntryLevelSynonyms...),
	})
	return spec
}

// RemoteOnly returns spec restricted to remote work settings.
func RemoteOnly(spec QuerySpec) QuerySpec {
	spec.Where = append(append([]Predicate(nil), spec.Where...), Predicate{
		Column: schema.ColWorkSetting,
		In:     append([]string(nil), schema.RemoteSettings...),
	})
	return spec
}

// Catalog returns the fixed query catalog in report order.
func Catalog() []QuerySpec {
	return []QuerySpec{
		{
			Name:       "demand_ranking",
			Title:      "Most in-demand job titles",
			GroupBy:    []GroupKey{key(schema.ColJobTitle)},
			Aggregates: []Aggregate{countAgg},
			OrderBy:    []Order{{By: AliasCount, Desc: true}},
			Limit:      10,
		},
		{
			Name:       "pay_ranking",
			Title:      "Highest paying job titles (more than 10 postings)",
			GroupBy:    []GroupKey{key(schema.ColJobTitle)},
			Aggregates: []Aggregate{avgAgg},
			MinCount:   10,
			OrderBy:    []Order{{By: AliasAvgSalary, Desc: true}},
			Limit:      10,
		},
		{
			Name:       "location_ranking",
			Title:      "Top company locations",
			GroupBy:    []GroupKey{key(schema.ColCompanyLocation)},
			Aggregates: []Aggregate{countAgg, avgAgg},
			OrderBy:    []Order{{By: AliasCount, Desc: true}},
			Limit:      10,
		},
		{
			Name:       "experience_pay",
			Title:      "Salary by experience level",
			GroupBy:    []GroupKey{ExperienceKey()},
			Aggregates: []Aggregate{countAgg, avgAgg},
			OrderBy:    []Order{{By: AliasAvgSalary, Desc: true}},
		},
		{
			Name:       "work_setting_pay",
			Title:      "Remote vs on-site pay",
			GroupBy:    []GroupKey{key(schema.ColWorkSetting)},
			Aggregates: []Aggregate{countAgg, avgAgg},
			OrderBy:    []Order{{By: AliasAvgSalary, Desc: true}},
		},
		{
			Name:       "yearly_trend",
			Title:      "Salary trend by year",
			GroupBy:    []GroupKey{key(schema.ColWorkYear)},
			Aggregates: []Aggregate{countAgg, avgAgg},
			OrderBy:    []Order{{By: schema.ColWorkYear}},
		},
		{
			Name:       "category_pay",
			Title:      "Salary by job category",
			GroupBy:    []GroupKey{key(schema.ColJobCategory)},
			Aggregates: []Aggregate{avgAgg},
			OrderBy:    []Order{{By: AliasAvgSalary, Desc: true}},
		},
		EntryLevel(QuerySpec{
			Name:       "entry_level_titles",
			Title:      "Top entry-level job titles",
			GroupBy:    []GroupKey{key(schema.ColJobTitle)},
			Aggregates: []Aggregate{countAgg, avgAgg},
			OrderBy:    []Order{{By: AliasCount, Desc: true}},
			Limit:      10,
		}),
		EntryLevel(QuerySpec{
			Name:       "entry_level_company_size",
			Title:      "Entry-level hiring by company size",
			GroupBy:    []GroupKey{key(schema.ColCompanySize)},
			Aggregates: []Aggregate{countAgg, avgAgg},
			OrderBy:    []Order{{By: AliasCount, Desc: true}},
		}),
		RemoteOnly(EntryLevel(QuerySpec{
			Name:       "entry_level_remote_locations",
			Title:      "Remote entry-level jobs by company location",
			GroupBy:    []GroupKey{key(schema.ColCompanyLocation)},
			Aggregates: []Aggregate{countAgg, avgAgg},
			OrderBy:    []Order{{By: AliasCount, Desc: true}},
			Limit:      5,
		})),
		EntryLevel(QuerySpec{
			Name:       "entry_level_salary_brackets",
			Title:      "Entry-level salary brackets",
			GroupBy:    []GroupKey{SalaryBracketKey()},
			Aggregates: []Aggregate{countAgg},
			OrderBy:    []Order{{By: AliasCount, Desc: true}},
		}),
	}
}

// Lookup returns the catalog entry called name.
func Lookup(name string) (QuerySpec, bool) {
	for _, q := range Catalog() {
		if q.Name == name {
			return q, true
		}
	}
	return QuerySpec{}, false
}

// crosstabSpec counts postings per experience level and company size; the
// engine pivots and zero-fills the result.
func crosstabSpec() QuerySpec {
	return QuerySpec{
		Name:       "experience_company_size",
		Title:      "Hiring hotspots: experience level by company size",
		GroupBy:    []GroupKey{key(schema.ColExperienceLevel), key(schema.ColCompanySize)},
		Aggregates: []Aggregate{countAgg},
	}
}
