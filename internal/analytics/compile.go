package analytics

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	apperrors "jobmarket/internal/errors"
	"jobmarket/internal/schema"
	"jobmarket/internal/storage"
)

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Compiled is a query ready to run.
type Compiled struct {
	SQL  string
	Args []any
}

// Compile renders spec against table for dialect d. Caller filters are
// added as IN predicates. Every grouping and aggregated column is required
// to be non-null.
//
// Errors:
//   - QueryFailed when an identifier is malformed or the QuerySpec is
//     incomplete (no grouping key, Avg without a column, unknown order key).
func Compile(d storage.Dialect, table string, spec QuerySpec, f Filter) (Compiled, error) {
	if err := checkSpec(table, spec); err != nil {
		return Compiled{}, apperrors.QueryFailed(spec.Name, err)
	}

	var (
		args     []any
		selects  []string
		groups   []string
		where    []string
		notNull  []string
		seenNull = map[string]bool{}
	)
	addNotNull := func(col string) {
		if !seenNull[col] {
			seenNull[col] = true
			notNull = append(notNull, d.Ident(col)+" IS NOT NULL")
		}
	}
	param := func(v any) string {
		args = append(args, v)
		return d.Param(len(args))
	}
	in := func(col string, values []string) string {
		ph := make([]string, len(values))
		for i, v := range values {
			ph[i] = param(v)
		}
		return fmt.Sprintf("%s IN (%s)", d.Ident(col), strings.Join(ph, ", "))
	}

	for _, g := range spec.GroupBy {
		expr := groupExpr(d, g)
		selects = append(selects, expr+" AS "+d.Ident(g.Alias))
		groups = append(groups, expr)
		addNotNull(g.Column)
	}
	for _, a := range spec.Aggregates {
		switch a.Func {
		case Count:
			selects = append(selects, "COUNT(*) AS "+d.Ident(a.Alias))
		case Avg:
			selects = append(selects, "AVG("+d.Ident(a.Column)+") AS "+d.Ident(a.Alias))
			addNotNull(a.Column)
		}
	}

	where = append(where, notNull...)
	for _, p := range spec.Where {
		where = append(where, in(p.Column, p.In))
	}
	if len(f.JobTitles) > 0 {
		where = append(where, in(schema.ColJobTitle, f.JobTitles))
	}
	if len(f.ExperienceLevels) > 0 {
		where = append(where, in(schema.ColExperienceLevel, f.ExperienceLevels))
	}

	var b strings.Builder
	b.WriteString(strings.Join(selects, ", "))
	b.WriteString(" FROM ")
	b.WriteString(d.Ident(table))
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" GROUP BY ")
	b.WriteString(strings.Join(groups, ", "))
	if spec.MinCount > 0 {
		b.WriteString(" HAVING COUNT(*) > ")
		b.WriteString(strconv.Itoa(spec.MinCount))
	}

	var orders []string
	ordered := map[string]bool{}
	for _, o := range spec.OrderBy {
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		orders = append(orders, d.Ident(o.By)+" "+dir)
		ordered[o.By] = true
	}
	// ties break on the group keys so results are deterministic
	for _, g := range spec.GroupBy {
		if !ordered[g.Alias] {
			orders = append(orders, d.Ident(g.Alias)+" ASC")
		}
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(strings.Join(orders, ", "))

	return Compiled{SQL: d.WithLimit("SELECT", b.String(), spec.Limit), Args: args}, nil
}

func groupExpr(d storage.Dialect, g GroupKey) string {
	col := d.Ident(g.Column)
	switch {
	case len(g.Labels) > 0:
		var b strings.Builder
		b.WriteString("CASE ")
		b.WriteString(col)
		for _, l := range g.Labels {
			fmt.Fprintf(&b, " WHEN %s THEN %s", quoteLiteral(l.Value), quoteLiteral(l.Text))
		}
		fmt.Fprintf(&b, " ELSE %s END", col)
		return b.String()
	case len(g.Brackets) > 0:
		var b strings.Builder
		b.WriteString("CASE")
		elseLabel := ""
		for _, br := range g.Brackets {
			if br.Else {
				elseLabel = br.Label
				continue
			}
			op := "<"
			if br.Inclusive {
				op = "<="
			}
			fmt.Fprintf(&b, " WHEN %s %s %s THEN %s", col, op, formatBound(br.UpTo), quoteLiteral(br.Label))
		}
		if elseLabel != "" {
			fmt.Fprintf(&b, " ELSE %s", quoteLiteral(elseLabel))
		}
		b.WriteString(" END")
		return b.String()
	default:
		return col
	}
}

// Labels and bracket bounds are inlined rather than bound: GROUP BY must
// repeat the exact SELECT expression, and several drivers treat two bound
// copies of the same value as different expressions.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func formatBound(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func checkSpec(table string, spec QuerySpec) error {
	if !identRe.MatchString(table) {
		return fmt.Errorf("malformed table name %q", table)
	}
	if len(spec.GroupBy) == 0 {
		return fmt.Errorf("no grouping key")
	}
	if len(spec.Aggregates) == 0 {
		return fmt.Errorf("no aggregate")
	}
	aliases := map[string]bool{}
	for _, g := range spec.GroupBy {
		if !identRe.MatchString(g.Column) || !identRe.MatchString(g.Alias) {
			return fmt.Errorf("malformed group key %q AS %q", g.Column, g.Alias)
		}
		aliases[g.Alias] = true
	}
	for _, a := range spec.Aggregates {
		if !identRe.MatchString(a.Alias) {
			return fmt.Errorf("malformed aggregate alias %q", a.Alias)
		}
		switch a.Func {
		case Count:
		case Avg:
			if !identRe.MatchString(a.Column) {
				return fmt.Errorf("avg needs a column, got %q", a.Column)
			}
		default:
			return fmt.Errorf("unknown aggregate %q", a.Func)
		}
		aliases[a.Alias] = true
	}
	for _, p := range spec.Where {
		if !identRe.MatchString(p.Column) {
			return fmt.Errorf("malformed predicate column %q", p.Column)
		}
		if len(p.In) == 0 {
			return fmt.Errorf("empty value set for %s", p.Column)
		}
	}
	for _, o := range spec.OrderBy {
		if !aliases[o.By] {
			return fmt.Errorf("order by unknown column %q", o.By)
		}
	}
	if spec.Limit < 0 || spec.MinCount < 0 {
		return fmt.Errorf("negative limit or min count")
	}
	return nil
}
