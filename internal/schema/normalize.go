// Package schema holds the canonical column vocabulary for job postings:
// header normalization, the required-column contract, and the value
// vocabularies for experience level and work setting.
package schema

import "strings"

var columnReplacer = strings.NewReplacer(" ", "_", "-", "_")

// NormalizeColumn lower-cases name and replaces spaces and hyphens with
// underscores. Every other character passes through unchanged.
//
// NormalizeColumn is idempotent: NormalizeColumn(NormalizeColumn(s)) ==
// NormalizeColumn(s).
func NormalizeColumn(name string) string {
	return columnReplacer.Replace(strings.ToLower(name))
}

// NormalizeColumns applies NormalizeColumn to every element, preserving
// order. The input slice is not modified.
func NormalizeColumns(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = NormalizeColumn(n)
	}
	return out
}
