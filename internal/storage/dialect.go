package storage

import (
	"fmt"
	"strings"
)

type ParamStyle int

const (
	ParamQuestion ParamStyle = iota // ?
	ParamDollar                     // $1
	ParamAtP                        // @p1
)

// Dialect captures the SQL differences between backends that the query
// compiler and the DDL helpers need to know about.
type Dialect struct {
	Name       string
	QuoteOpen  string
	QuoteClose string
	Params     ParamStyle

	// UseTop emits SELECT TOP n instead of a trailing LIMIT n.
	UseTop bool

	// Types maps the column kinds text, int and float to SQL types.
	Types map[string]string

	// NullableWrap wraps every column type as Nullable(T).
	NullableWrap bool

	// TableSuffix is appended to CREATE TABLE.
	TableSuffix string

	// ObjectIDGuard uses IF OBJECT_ID(...) guards instead of IF [NOT] EXISTS.
	ObjectIDGuard bool

	// MaxParams bounds the placeholders in one statement.
	MaxParams int
}

var (
	SQLite = Dialect{
		Name: "sqlite", QuoteOpen: `"`, QuoteClose: `"`, Params: ParamQuestion,
		Types:     map[string]string{"text": "TEXT", "int": "INTEGER", "float": "REAL"},
		MaxParams: 32766,
	}
	Postgres = Dialect{
		Name: "postgres", QuoteOpen: `"`, QuoteClose: `"`, Params: ParamDollar,
		Types:     map[string]string{"text": "TEXT", "int": "BIGINT", "float": "DOUBLE PRECISION"},
		MaxParams: 65535,
	}
	MSSQL = Dialect{
		Name: "mssql", QuoteOpen: "[", QuoteClose: "]", Params: ParamAtP, UseTop: true,
		Types:         map[string]string{"text": "NVARCHAR(400)", "int": "BIGINT", "float": "FLOAT"},
		ObjectIDGuard: true,
		MaxParams:     2000,
	}
	DuckDB = Dialect{
		Name: "duckdb", QuoteOpen: `"`, QuoteClose: `"`, Params: ParamQuestion,
		Types:     map[string]string{"text": "VARCHAR", "int": "BIGINT", "float": "DOUBLE"},
		MaxParams: 32766,
	}
	ClickHouse = Dialect{
		Name: "clickhouse", QuoteOpen: "`", QuoteClose: "`", Params: ParamQuestion,
		Types:        map[string]string{"text": "String", "int": "Int64", "float": "Float64"},
		NullableWrap: true,
		TableSuffix:  " ENGINE = MergeTree ORDER BY tuple()",
		MaxParams:    1 << 20,
	}
)

// Ident quotes a single identifier, doubling any embedded close quote.
func (d Dialect) Ident(name string) string {
	return d.QuoteOpen + strings.ReplaceAll(name, d.QuoteClose, d.QuoteClose+d.QuoteClose) + d.QuoteClose
}

// Param returns the placeholder for the n-th (1-based) argument.
func (d Dialect) Param(n int) string {
	switch d.Params {
	case ParamDollar:
		return fmt.Sprintf("$%d", n)
	case ParamAtP:
		return fmt.Sprintf("@p%d", n)
	default:
		return "?"
	}
}

// ColumnType returns the SQL type for a column kind. Unknown kinds are
// treated as text.
func (d Dialect) ColumnType(kind string) string {
	t, ok := d.Types[kind]
	if !ok {
		t = d.Types["text"]
	}
	if d.NullableWrap {
		return "Nullable(" + t + ")"
	}
	return t
}

// WithLimit applies a row limit to a SELECT built as head + rest, where head
// is "SELECT" (or "SELECT DISTINCT") and rest is everything after it.
// limit <= 0 means no limit.
func (d Dialect) WithLimit(head, rest string, limit int) string {
	if limit <= 0 {
		return head + " " + rest
	}
	if d.UseTop {
		return fmt.Sprintf("%s TOP %d %s", head, limit, rest)
	}
	return fmt.Sprintf("%s %s LIMIT %d", head, rest, limit)
}

// CreateTable returns DDL for spec. ifNotExists makes it a no-op when the
// table is already present.
func (d Dialect) CreateTable(spec TableSpec, ifNotExists bool) string {
	var b strings.Builder
	if d.ObjectIDGuard && ifNotExists {
		fmt.Fprintf(&b, "IF OBJECT_ID(N'%s', N'U') IS NULL ", escapeLiteral(spec.Name))
	}
	b.WriteString("CREATE TABLE ")
	if ifNotExists && !d.ObjectIDGuard {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(d.Ident(spec.Name))
	b.WriteString(" (")
	for i, c := range spec.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.Ident(c.Name))
		b.WriteString(" ")
		b.WriteString(d.ColumnType(c.Type))
	}
	b.WriteString(")")
	b.WriteString(d.TableSuffix)
	return b.String()
}

func (d Dialect) DropTable(name string) string {
	if d.ObjectIDGuard {
		return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NOT NULL DROP TABLE %s", escapeLiteral(name), d.Ident(name))
	}
	return "DROP TABLE IF EXISTS " + d.Ident(name)
}

// Insert returns a multi-row INSERT for nRows rows of the given columns.
func (d Dialect) Insert(table string, columns []string, nRows int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(d.Ident(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.Ident(c))
	}
	b.WriteString(") VALUES ")
	n := 1
	for r := 0; r < nRows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for c := range columns {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.Param(n))
			n++
		}
		b.WriteString(")")
	}
	return b.String()
}

// RowsPerStatement returns how many rows of width cols fit one INSERT given
// MaxParams and the requested batch size.
func (d Dialect) RowsPerStatement(cols, batch int) int {
	if cols <= 0 {
		return 1
	}
	max := d.MaxParams / cols
	if max < 1 {
		max = 1
	}
	if batch > 0 && batch < max {
		return batch
	}
	return max
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
