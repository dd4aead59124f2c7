// Package transformer holds the row-level stages of the ingest stream: the
// pooled Row type passed from parser to collector, numeric coercion,
// experience-level canonicalization and the dataset fingerprint.
package transformer

import "sync"

// Row is a pooled positional row aligned to the normalized header.
//
// Ownership:
//   - Exactly one goroutine owns a Row at a time; sending it on a channel
//     transfers ownership.
//   - The final consumer calls Free once nothing references r.V.
//   - Cancellation paths call Drop instead, so a row still visible to a
//     draining stage is never handed back out by GetRow.
type Row struct {
	V    []any
	Line int // 1-based CSV record number
}

var rowPool sync.Pool

// GetRow returns a Row of length colCount with every value nil.
func GetRow(colCount int) *Row {
	if v := rowPool.Get(); v != nil {
		r := v.(*Row)
		if cap(r.V) < colCount {
			r.V = make([]any, colCount)
		}
		r.V = r.V[:colCount]
		for i := range r.V {
			r.V[i] = nil
		}
		r.Line = 0
		return r
	}
	return &Row{V: make([]any, colCount)}
}

// Free returns r to the pool.
func (r *Row) Free() {
	rowPool.Put(r)
}

// Drop releases r without pooling it.
func (r *Row) Drop() {
	r.V = nil
	r.Line = 0
}

// Values copies r.V into a fresh slice the caller may keep after Free.
func (r *Row) Values() []any {
	out := make([]any, len(r.V))
	copy(out, r.V)
	return out
}
