package transformer

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"jobmarket/internal/schema"
)

// CoerceSpec maps column name to target type: "text", "int" or "float".
// Columns absent from Types stay text.
type CoerceSpec struct {
	Types map[string]string
}

// Spec configures TransformLoopRows.
type Spec struct {
	Coerce CoerceSpec

	// CanonicalizeExperience rewrites experience_level synonyms
	// ("Entry-level", "Senior", ...) to their EN/MI/SE/EX codes.
	CanonicalizeExperience bool
}

type coerceFunc func(dst *any, s string) bool

type colPlan struct {
	idx    int
	name   string
	kind   string
	coerce coerceFunc
}

type plan struct {
	cols     []colPlan
	expIndex int
}

// ValidateSpecSanity rejects coerce types outside text, int and float.
func ValidateSpecSanity(spec Spec) error {
	for col, typ := range spec.Coerce.Types {
		switch normalizeKind(typ) {
		case "text", "int", "float":
		default:
			return fmt.Errorf("coerce %s: unsupported type %q", col, typ)
		}
	}
	return nil
}

func normalizeKind(t string) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "bigint", "int8", "integer", "int4", "int2", "int":
		return "int"
	case "float", "double", "real", "numeric", "decimal", "float8":
		return "float"
	case "text", "string", "varchar", "":
		return "text"
	default:
		return strings.ToLower(t)
	}
}

func compilePlan(columns []string, spec Spec) *plan {
	p := &plan{expIndex: -1}
	for i, c := range columns {
		kind := normalizeKind(spec.Coerce.Types[c])
		cp := colPlan{idx: i, name: c, kind: kind}
		switch kind {
		case "int":
			cp.coerce = coerceInt
		case "float":
			cp.coerce = coerceFloat
		default:
			cp.coerce = coerceText
		}
		p.cols = append(p.cols, cp)
		if spec.CanonicalizeExperience && c == schema.ColExperienceLevel {
			p.expIndex = i
		}
	}
	return p
}

func coerceText(dst *any, s string) bool {
	*dst = s
	return true
}

// coerceInt accepts "2023" and integral floats such as "2023.0".
func coerceInt(dst *any, s string) bool {
	s = cleanNumber(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*dst = n
		return true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return false
	}
	*dst = int64(f)
	return true
}

func coerceFloat(dst *any, s string) bool {
	f, err := strconv.ParseFloat(cleanNumber(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}
	*dst = f
	return true
}

// cleanNumber strips thousands separators and a leading dollar sign.
func cleanNumber(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	if strings.IndexByte(s, ',') >= 0 {
		s = strings.ReplaceAll(s, ",", "")
	}
	return s
}

// apply coerces and canonicalizes r in place. onFail is called for each
// value that could not be coerced; that value becomes nil.
func (p *plan) apply(r *Row, onFail func(line int, column, value string)) {
	for _, c := range p.cols {
		if c.idx >= len(r.V) {
			continue
		}
		s, ok := r.V[c.idx].(string)
		if !ok {
			continue
		}
		var dst any
		if !c.coerce(&dst, s) {
			if onFail != nil {
				onFail(r.Line, c.name, s)
			}
			r.V[c.idx] = nil
			continue
		}
		r.V[c.idx] = dst
	}
	if p.expIndex >= 0 && p.expIndex < len(r.V) {
		if s, ok := r.V[p.expIndex].(string); ok {
			if code, ok := schema.CanonicalExperience(s); ok {
				r.V[p.expIndex] = code
			}
		}
	}
}

// TransformLoopRows reads rows from in, applies spec and forwards them to
// out. It returns when in is closed. Coercion failures never drop a row.
//
// On ctx cancellation remaining rows are drained with Drop.
func TransformLoopRows(
	ctx context.Context,
	columns []string,
	in <-chan *Row,
	out chan<- *Row,
	spec Spec,
	onFail func(line int, column, value string),
) {
	p := compilePlan(columns, spec)

	for r := range in {
		select {
		case <-ctx.Done():
			if r != nil {
				r.Drop()
			}
			continue
		default:
		}

		if r == nil {
			continue
		}
		p.apply(r, onFail)

		select {
		case out <- r:
		case <-ctx.Done():
			r.Drop()
		}
	}
}
