// Package probe inspects a postings CSV before it is ingested: the header
// as it will be normalized, an inferred type per column, per-column fill and
// distinct counts, the most frequent values, and which required columns are
// missing. It can also suggest a pipeline for the file.
package probe

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"jobmarket/internal/config"
	"jobmarket/internal/datasource"
	csvparser "jobmarket/internal/parser/csv"
	"jobmarket/internal/schema"
)

const (
	distinctCapPerColumn = 10000
	defaultTopValues     = 5
)

type Options struct {
	// MaxRows stops reading after this many data records. 0 reads all.
	MaxRows int
	// TopValues is how many frequent values to keep per column (default 5).
	TopValues int
	// Comma is the field delimiter (default ',').
	Comma rune
}

type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Column summarizes one CSV column.
//
// Filled counts records with a non-empty value; it is the denominator for
// the distinct ratio. Distinct stops at distinctCapPerColumn, with Capped
// set, and Top is empty for capped columns.
type Column struct {
	Header   string       `json:"header"`
	Name     string       `json:"name"`
	Type     string       `json:"type"`
	Filled   int          `json:"filled"`
	Distinct int          `json:"distinct"`
	Capped   bool         `json:"capped"`
	Top      []ValueCount `json:"top,omitempty"`
}

// Ratio is Distinct/Filled, or 0 for an empty column.
func (c Column) Ratio() float64 {
	if c.Filled == 0 {
		return 0
	}
	return float64(c.Distinct) / float64(c.Filled)
}

type Report struct {
	Source string `json:"source"`
	// Rows counts data records read; Skipped counts records whose field
	// count did not match the header.
	Rows      int      `json:"rows"`
	Skipped   int      `json:"skipped"`
	Truncated bool     `json:"truncated"`
	Columns   []Column `json:"columns"`
	// Missing lists required posting columns absent from the header.
	Missing []string `json:"missing,omitempty"`
}

// Column returns the column with normalized name.
func (r Report) Column(name string) (Column, bool) {
	for _, c := range r.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// CoerceTypes returns the coerce types a pipeline for this file needs.
// Required posting columns keep their declared type; other columns use the
// inferred one. Text columns are omitted.
func (r Report) CoerceTypes() map[string]any {
	declared := schema.JobPostings.Types()
	out := map[string]any{}
	for _, c := range r.Columns {
		typ, ok := declared[c.Name]
		if !ok {
			typ = coerceType(c.Type)
		}
		if typ != "text" {
			out[c.Name] = typ
		}
	}
	return out
}

// Pipeline returns the default pipeline pointed at src with coerce types
// from CoerceTypes.
func (r Report) Pipeline(src config.Source) config.Pipeline {
	p := config.Default()
	p.Source = src
	for i, t := range p.Transform {
		if t.Kind == "coerce" {
			p.Transform[i].Options = config.Options{"types": r.CoerceTypes()}
		}
	}
	return p
}

// Probe opens src (gzip-aware) and analyzes it.
func Probe(ctx context.Context, src config.Source, opt Options) (Report, error) {
	rc, err := datasource.Open(ctx, src)
	if err != nil {
		return Report{}, err
	}
	defer rc.Close()

	rep, err := Analyze(ctx, rc, opt)
	rep.Source = datasource.Name(src)
	return rep, err
}

// Analyze reads CSV from r. Records with the wrong field count are skipped
// and counted; quoting is lenient. The header is normalized exactly as
// ingest normalizes it.
//
// Errors:
//   - empty input or an unreadable header.
//   - ctx cancellation.
func Analyze(ctx context.Context, r io.Reader, opt Options) (Report, error) {
	if opt.TopValues <= 0 {
		opt.TopValues = defaultTopValues
	}
	cr := csv.NewReader(r)
	if opt.Comma != 0 {
		cr.Comma = opt.Comma
	}
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	hdr, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return Report{}, fmt.Errorf("probe: empty input")
	}
	if err != nil {
		return Report{}, fmt.Errorf("probe: read header: %w", err)
	}
	raw := make([]string, len(hdr))
	for i, h := range hdr {
		raw[i] = strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))
	}
	names := csvparser.NormalizeHeader(hdr, nil)

	infs := make([]inference, len(names))
	sets := make([]map[string]int, len(names))
	filled := make([]int, len(names))
	capped := make([]bool, len(names))
	for i := range names {
		infs[i] = newInference()
		sets[i] = map[string]int{}
	}

	rep := Report{Missing: schema.JobPostings.Missing(names)}
	for {
		if opt.MaxRows > 0 && rep.Rows+rep.Skipped >= opt.MaxRows {
			rep.Truncated = true
			break
		}
		if (rep.Rows+rep.Skipped)%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return rep, err
			}
		}

		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				rep.Skipped++
				continue
			}
			return rep, fmt.Errorf("probe: %w", err)
		}
		if len(rec) != len(names) {
			rep.Skipped++
			continue
		}
		rep.Rows++

		for i, v := range rec {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			filled[i]++
			infs[i].observe(v)
			if capped[i] {
				continue
			}
			sets[i][v]++
			if len(sets[i]) >= distinctCapPerColumn {
				capped[i] = true
				sets[i] = nil
			}
		}
	}

	rep.Columns = make([]Column, len(names))
	for i, name := range names {
		c := Column{
			Header: raw[i],
			Name:   name,
			Type:   infs[i].label(),
			Filled: filled[i],
			Capped: capped[i],
		}
		if capped[i] {
			c.Distinct = distinctCapPerColumn
		} else {
			c.Distinct = len(sets[i])
			c.Top = topValues(sets[i], opt.TopValues)
		}
		rep.Columns[i] = c
	}
	return rep, nil
}

// topValues returns the n most frequent values, ties broken by value.
func topValues(counts map[string]int, n int) []ValueCount {
	out := make([]ValueCount, 0, len(counts))
	for v, c := range counts {
		out = append(out, ValueCount{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
