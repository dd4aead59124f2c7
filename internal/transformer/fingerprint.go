package transformer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"
	"strings"
)

const fieldSep = "\x1f"
const rowSep = "\x1e"

// Fingerprint accumulates a SHA-256 over a header and a sequence of rows in
// a canonical text form. Two loads of the same normalized data produce the
// same Sum regardless of backend.
type Fingerprint struct {
	h       hash.Hash
	b       strings.Builder
	scratch [64]byte
}

func NewFingerprint(columns []string) *Fingerprint {
	f := &Fingerprint{h: sha256.New()}
	f.h.Write([]byte(strings.Join(columns, fieldSep)))
	f.h.Write([]byte(rowSep))
	return f
}

// Add folds one row into the fingerprint.
func (f *Fingerprint) Add(values []any) {
	f.b.Reset()
	for i, v := range values {
		if i > 0 {
			f.b.WriteString(fieldSep)
		}
		appendCanonicalValue(&f.b, v, &f.scratch)
	}
	f.b.WriteString(rowSep)
	f.h.Write([]byte(f.b.String()))
}

// Sum returns the hex digest. Add may still be called afterwards.
func (f *Fingerprint) Sum() string {
	return hex.EncodeToString(f.h.Sum(nil))
}

func appendCanonicalValue(b *strings.Builder, v any, scratch *[64]byte) {
	switch t := v.(type) {
	case nil:
		b.WriteString("null")
	case string:
		b.WriteString(t)
	case []byte:
		b.Write(t)
	case bool:
		b.WriteString(strconv.FormatBool(t))
	case int:
		b.Write(strconv.AppendInt(scratch[:0], int64(t), 10))
	case int32:
		b.Write(strconv.AppendInt(scratch[:0], int64(t), 10))
	case int64:
		b.Write(strconv.AppendInt(scratch[:0], t, 10))
	case float32:
		b.WriteString(strconv.FormatFloat(float64(t), 'g', -1, 32))
	case float64:
		b.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
	default:
		b.WriteString(fmt.Sprintf("%v", t))
	}
}

// HasEdgeSpace reports whether s begins or ends with a space or tab.
func HasEdgeSpace(s string) bool {
	if s == "" {
		return false
	}
	return s[0] == ' ' || s[len(s)-1] == ' ' || s[0] == '\t' || s[len(s)-1] == '\t'
}
