// Package report renders analysis results for people: aligned text tables
// for the terminal and a self-contained HTML dashboard.
package report

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"jobmarket/internal/analytics"
	"jobmarket/internal/schema"
	"jobmarket/pkg/records"
)

var printer = message.NewPrinter(language.English)

// Missing is shown for NULL values.
const Missing = "n/a"

// Money formats a USD amount rounded to whole dollars: "$120,000".
func Money(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Missing
	}
	r := math.Round(v)
	if r < 0 {
		return printer.Sprintf("-$%d", int64(-r))
	}
	return printer.Sprintf("$%d", int64(r))
}

// Number formats a count with thousands separators.
func Number(n int64) string {
	return printer.Sprintf("%d", n)
}

// Percent formats p (already ×100) with one decimal.
func Percent(p float64) string {
	return printer.Sprintf("%.1f%%", p)
}

// isMoney reports whether column holds USD amounts.
func isMoney(column string) bool {
	return column == analytics.AliasAvgSalary || column == schema.ColSalaryInUSD
}

// Cell formats one result value for display. Salary columns become money,
// counts get separators, and the year column is printed plain.
func Cell(column string, v any) string {
	if v == nil {
		return Missing
	}
	switch t := v.(type) {
	case int64:
		switch {
		case isMoney(column):
			return Money(float64(t))
		case column == schema.ColWorkYear:
			return fmt.Sprintf("%d", t)
		default:
			return Number(t)
		}
	case int:
		return Cell(column, int64(t))
	case float64:
		switch {
		case isMoney(column):
			return Money(t)
		case column == schema.ColWorkYear && t == math.Trunc(t):
			return fmt.Sprintf("%.0f", t)
		default:
			return printer.Sprintf("%.2f", t)
		}
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

// Header turns a column alias into a display heading: "avg_salary" becomes
// "Avg Salary".
func Header(column string) string {
	parts := strings.Split(column, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

// cells formats rec in the order of columns.
func cells(columns []string, rec records.Record) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = Cell(c, rec[c])
	}
	return out
}
