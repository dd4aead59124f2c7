package probe

import (
	"strconv"
	"strings"
	"time"
)

// Inferred type labels. These are probe labels, not coerce types; see
// coerceType.
const (
	TypeInteger   = "integer"
	TypeFloat     = "float"
	TypeBoolean   = "boolean"
	TypeDate      = "date"
	TypeTimestamp = "timestamp"
	TypeText      = "text"
)

// inference narrows a column's type as values arrive. Every flag starts
// true and is cleared by the first value that does not fit.
type inference struct {
	seen    bool
	isInt   bool
	isFloat bool
	isBool  bool
	isDate  bool
	isTS    bool
}

func newInference() inference {
	return inference{isInt: true, isFloat: true, isBool: true, isDate: true, isTS: true}
}

// observe folds one non-empty value in.
func (in *inference) observe(v string) {
	in.seen = true
	if in.isInt {
		if _, err := strconv.ParseInt(cleanNumeric(v), 10, 64); err != nil {
			in.isInt = false
		}
	}
	if in.isFloat {
		if _, err := strconv.ParseFloat(cleanNumeric(v), 64); err != nil {
			in.isFloat = false
		}
	}
	if in.isBool {
		if _, ok := parseBoolLoose(v); !ok {
			in.isBool = false
		}
	}
	if in.isDate {
		if _, _, ok := parseDateLoose(v); !ok {
			in.isDate = false
		}
	}
	if in.isTS {
		if _, _, ok := parseTimestampLoose(v); !ok {
			in.isTS = false
		}
	}
}

// label returns the most specific type consistent with every value seen.
// A column with no values is text.
func (in inference) label() string {
	if !in.seen {
		return TypeText
	}
	switch {
	case in.isInt:
		return TypeInteger
	case in.isBool:
		return TypeBoolean
	case in.isDate:
		return TypeDate
	case in.isTS:
		return TypeTimestamp
	case in.isFloat:
		return TypeFloat
	default:
		return TypeText
	}
}

// coerceType maps an inferred label to the ingest coerce type. Only the
// numeric labels survive; dates and booleans are loaded as text.
func coerceType(inferred string) string {
	switch inferred {
	case TypeInteger:
		return "int"
	case TypeFloat:
		return "float"
	default:
		return "text"
	}
}

// cleanNumeric mirrors the ingest coercion: a leading "$" and thousands
// separators are accepted.
func cleanNumeric(s string) string {
	s = strings.TrimPrefix(strings.TrimSpace(s), "$")
	return strings.ReplaceAll(s, ",", "")
}

func parseBoolLoose(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "t", "true", "yes", "y":
		return true, true
	case "f", "false", "no", "n":
		return false, true
	default:
		return false, false
	}
}

var dateLayouts = []string{
	"2006-01-02",
	"02.01.2006",
	"02/01/2006",
	"01/02/2006",
}

var tsLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.000Z07:00",
}

func parseDateLoose(s string) (time.Time, string, bool) {
	s = strings.TrimSpace(s)
	for _, lay := range dateLayouts {
		if t, err := time.Parse(lay, s); err == nil {
			return t, lay, true
		}
	}
	return time.Time{}, "", false
}

func parseTimestampLoose(s string) (time.Time, string, bool) {
	s = strings.TrimSpace(s)
	for _, lay := range tsLayouts {
		if t, err := time.Parse(lay, s); err == nil {
			return t, lay, true
		}
	}
	return time.Time{}, "", false
}
