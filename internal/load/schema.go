package load

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/retail-etl/internal/core"
)

// ColumnDef is one column of the destination table.
type ColumnDef struct {
	Name    string
	SQLType string
}

// SQLType maps a batch column to the PostgreSQL type it is loaded as.
func SQLType(c core.Column) string {
	switch c.Type {
	case core.TypeInt:
		switch {
		case c.Bits <= 16:
			return "SMALLINT"
		case c.Bits <= 32:
			return "INTEGER"
		default:
			return "BIGINT"
		}
	case core.TypeFloat:
		if c.Bits <= 32 {
			return "REAL"
		}
		return "DOUBLE PRECISION"
	default:
		return "TEXT"
	}
}

// Schema derives the destination columns from a batch, in batch order.
func Schema(b *core.Batch) []ColumnDef {
	defs := make([]ColumnDef, len(b.Columns))
	for i, c := range b.Columns {
		defs[i] = ColumnDef{Name: core.CanonicalColumn(c.Name), SQLType: SQLType(c)}
	}
	return defs
}

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// DropTableSQL returns the statement removing table if it exists.
func DropTableSQL(table string) string {
	return "DROP TABLE IF EXISTS " + quoteIdent(table)
}

// CreateTableSQL returns the CREATE TABLE statement for columns.
func CreateTableSQL(table string, columns []ColumnDef) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = quoteIdent(c.Name) + " " + c.SQLType
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table), strings.Join(parts, ", "))
}

// CopySQL returns the COPY statement streaming text-format rows into table.
func CopySQL(table string, columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
	}
	return fmt.Sprintf("COPY %s (%s) FROM STDIN", quoteIdent(table), strings.Join(quoted, ", "))
}
