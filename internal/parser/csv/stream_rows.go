// Package csv streams a CSV file into pooled rows aligned to its normalized
// header.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"jobmarket/internal/config"
	"jobmarket/internal/schema"
	"jobmarket/internal/transformer"
)

// Reader is an open CSV stream whose header has already been consumed.
//
// Options (config.Options keys):
//   - has_header (default true): when false, "columns" names the fields.
//   - comma (default ','), lazy_quotes, fields_per_record.
//   - trim_space (default true): trim edge whitespace from values.
//   - header_map: normalized header → replacement name.
type Reader struct {
	src     io.ReadCloser
	cr      *csv.Reader
	columns []string
	trim    bool
	line    int
}

// Open reads the header from src and returns a Reader positioned at the
// first data record. src is closed by Close, or immediately when Open fails.
//
// Errors:
//   - header read failures (including an empty input).
//   - duplicate column names after normalization.
func Open(src io.ReadCloser, opt config.Options) (*Reader, error) {
	cr := csv.NewReader(src)
	cr.Comma = opt.Rune("comma", ',')
	cr.ReuseRecord = true
	cr.LazyQuotes = opt.Bool("lazy_quotes", false)
	if n := opt.Int("fields_per_record", 0); n != 0 {
		cr.FieldsPerRecord = n
	} else {
		cr.FieldsPerRecord = -1
	}

	r := &Reader{
		src:  src,
		cr:   cr,
		trim: opt.Bool("trim_space", true),
	}

	if opt.Bool("has_header", true) {
		hdr, err := r.read()
		if err != nil {
			_ = src.Close()
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("read header: empty input")
			}
			return nil, fmt.Errorf("read header: %w", err)
		}
		r.columns = NormalizeHeader(hdr, opt.StringMap("header_map"))
	} else {
		r.columns = schema.NormalizeColumns(opt.StringSlice("columns"))
		if len(r.columns) == 0 {
			_ = src.Close()
			return nil, fmt.Errorf("has_header=false requires the columns option")
		}
	}

	seen := make(map[string]int, len(r.columns))
	for i, c := range r.columns {
		if j, dup := seen[c]; dup {
			_ = src.Close()
			return nil, fmt.Errorf("duplicate column %q at positions %d and %d", c, j+1, i+1)
		}
		seen[c] = i
	}

	return r, nil
}

// NormalizeHeader trims each header cell, strips a UTF-8 BOM from the first
// one, normalizes it with schema.NormalizeColumn and then applies headerMap.
// Empty cells become unnamed_<n> (1-based).
func NormalizeHeader(hdr []string, headerMap map[string]string) []string {
	out := make([]string, len(hdr))
	for i, h := range hdr {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		if transformer.HasEdgeSpace(h) {
			h = strings.TrimSpace(h)
		}
		if h == "" {
			out[i] = fmt.Sprintf("unnamed_%d", i+1)
			continue
		}
		n := schema.NormalizeColumn(h)
		if mapped, ok := headerMap[n]; ok {
			n = mapped
		} else if mapped, ok := headerMap[h]; ok {
			n = mapped
		}
		out[i] = n
	}
	return out
}

// Columns returns the normalized column names in source order.
func (r *Reader) Columns() []string {
	return append([]string(nil), r.columns...)
}

func (r *Reader) Close() error {
	return r.src.Close()
}

func (r *Reader) read() ([]string, error) {
	r.line++
	return r.cr.Read()
}

// Stream sends one pooled Row per record to out until EOF or ctx is done.
// Malformed records are reported to onErr and skipped. Empty values become
// nil; records shorter than the header are padded with nil.
//
// On cancellation the in-flight row is dropped, never re-pooled.
func (r *Reader) Stream(ctx context.Context, out chan<- *transformer.Row, onErr func(line int, err error)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := r.read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return fmt.Errorf("csv read: %w", err)
			}
			if onErr != nil {
				onErr(r.line, fmt.Errorf("csv read: %w", err))
			}
			continue
		}

		row := transformer.GetRow(len(r.columns))
		row.Line = r.line
		for i := range r.columns {
			if i >= len(rec) {
				row.V[i] = nil
				continue
			}
			v := rec[i]
			if r.trim && transformer.HasEdgeSpace(v) {
				v = strings.TrimSpace(v)
			}
			if v == "" {
				row.V[i] = nil
			} else {
				row.V[i] = v
			}
		}
		if len(rec) > len(r.columns) && onErr != nil {
			onErr(r.line, fmt.Errorf("record has %d fields, header has %d; extra fields ignored", len(rec), len(r.columns)))
		}

		select {
		case out <- row:
		case <-ctx.Done():
			row.Drop()
			return ctx.Err()
		}
	}
}
