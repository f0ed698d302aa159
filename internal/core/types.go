package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SemanticType is the type a column is coerced to during normalization.
type SemanticType int

const (
	TypeString SemanticType = iota
	TypeInt
	TypeFloat
	TypeCategory
)

func (t SemanticType) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeCategory:
		return "category"
	default:
		return "string"
	}
}

// Format identifies the source file format of a batch.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// CanonicalColumn returns the canonical form of a column name: trimmed and upper-cased.
func CanonicalColumn(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// ParseTypeTag resolves a type tag to its semantic type and bit width.
// Any tag starting with "int" or "float" is numeric; a missing or unparsable
// width defaults to 64. Unknown tags return TypeString with known=false.
func ParseTypeTag(tag string) (t SemanticType, bits int, known bool) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	switch {
	case strings.HasPrefix(tag, "int"):
		return TypeInt, tagBits(strings.TrimPrefix(tag, "int")), true
	case strings.HasPrefix(tag, "float"):
		return TypeFloat, tagBits(strings.TrimPrefix(tag, "float")), true
	case tag == "category":
		return TypeCategory, 0, true
	case tag == "string":
		return TypeString, 0, true
	default:
		return TypeString, 0, false
	}
}

func tagBits(suffix string) int {
	switch suffix {
	case "8":
		return 8
	case "16":
		return 16
	case "32":
		return 32
	default:
		return 64
	}
}

// TypeEntry is one column declaration of a TypeDict.
type TypeEntry struct {
	Column string
	Tag    string
}

// TypeDict is an ordered mapping of canonical column name to type tag.
type TypeDict struct {
	entries []TypeEntry
	index   map[string]int
}

// NewTypeDict builds a dictionary from entries, canonicalizing column names.
// A repeated column keeps its first position and takes the last tag.
func NewTypeDict(entries ...TypeEntry) TypeDict {
	d := TypeDict{index: make(map[string]int, len(entries))}
	for _, e := range entries {
		name := CanonicalColumn(e.Column)
		if pos, ok := d.index[name]; ok {
			d.entries[pos].Tag = e.Tag
			continue
		}
		d.index[name] = len(d.entries)
		d.entries = append(d.entries, TypeEntry{Column: name, Tag: e.Tag})
	}
	return d
}

// Lookup returns the tag declared for a column. The name is canonicalized first.
func (d TypeDict) Lookup(column string) (string, bool) {
	pos, ok := d.index[CanonicalColumn(column)]
	if !ok {
		return "", false
	}
	return d.entries[pos].Tag, true
}

// Has reports whether the column is declared.
func (d TypeDict) Has(column string) bool {
	_, ok := d.index[CanonicalColumn(column)]
	return ok
}

// Len returns the number of declared columns.
func (d TypeDict) Len() int { return len(d.entries) }

// Entries returns a copy of the declarations in declaration order.
func (d TypeDict) Entries() []TypeEntry {
	out := make([]TypeEntry, len(d.entries))
	copy(out, d.entries)
	return out
}

// Value is a typed optional cell. A Value with Valid=false is null.
type Value struct {
	Type  SemanticType
	Int   int64
	Float float64
	Str   string // text payload, or the category label
	Code  int32  // category level code
	Valid bool
}

// Null returns a null Value of the given type.
func Null(t SemanticType) Value { return Value{Type: t} }

func IntValue(i int64) Value { return Value{Type: TypeInt, Int: i, Valid: true} }

func FloatValue(f float64) Value { return Value{Type: TypeFloat, Float: f, Valid: true} }

func StringValue(s string) Value { return Value{Type: TypeString, Str: s, Valid: true} }

func CategoryValue(code int32, label string) Value {
	return Value{Type: TypeCategory, Code: code, Str: label, Valid: true}
}

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return !v.Valid }

// String returns the textual form of the value, or "" for null.
func (v Value) String() string {
	if !v.Valid {
		return ""
	}
	switch v.Type {
	case TypeInt:
		return strconv.FormatInt(v.Int, 10)
	case TypeFloat:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	default:
		return v.Str
	}
}

// Key returns the join key of the value. Null values have no key.
// Integral floats share the key of the equal integer so 12 and 12.0 match.
func (v Value) Key() (string, bool) {
	if !v.Valid {
		return "", false
	}
	if v.Type == TypeFloat && v.Float == math.Trunc(v.Float) && math.Abs(v.Float) < 1<<53 {
		return strconv.FormatInt(int64(v.Float), 10), true
	}
	return v.String(), true
}

// Column describes one column of a typed batch.
type Column struct {
	Name   string
	Tag    string
	Type   SemanticType
	Bits   int
	Levels []string // category vocabulary indexed by code
}

// NewColumn resolves the tag of a column into its semantic type.
func NewColumn(name, tag string) Column {
	t, bits, _ := ParseTypeTag(tag)
	return Column{Name: CanonicalColumn(name), Tag: tag, Type: t, Bits: bits}
}

// Row is one record of a Batch, aligned with Batch.Columns.
type Row []Value

// Batch is a typed record batch: the unit every pipeline stage consumes and produces.
type Batch struct {
	Format  Format
	Columns []Column
	Rows    []Row

	index map[string]int
}

// NewBatch creates an empty batch with the given columns.
func NewBatch(format Format, columns []Column) *Batch {
	b := &Batch{Format: format, Columns: columns}
	b.reindex()
	return b
}

func (b *Batch) reindex() {
	b.index = make(map[string]int, len(b.Columns))
	for i, c := range b.Columns {
		b.index[c.Name] = i
	}
}

// Len returns the number of rows.
func (b *Batch) Len() int { return len(b.Rows) }

// ColumnNames returns column names in schema order.
func (b *Batch) ColumnNames() []string {
	names := make([]string, len(b.Columns))
	for i, c := range b.Columns {
		names[i] = c.Name
	}
	return names
}

// ColumnIndex returns the position of a column. The name is canonicalized first.
func (b *Batch) ColumnIndex(name string) (int, bool) {
	if b.index == nil {
		b.reindex()
	}
	i, ok := b.index[CanonicalColumn(name)]
	return i, ok
}

// Column returns the column definition by name.
func (b *Batch) Column(name string) (Column, bool) {
	i, ok := b.ColumnIndex(name)
	if !ok {
		return Column{}, false
	}
	return b.Columns[i], true
}

// Append adds a row. The row must have one value per column.
func (b *Batch) Append(row Row) error {
	if len(row) != len(b.Columns) {
		return fmt.Errorf("row has %d values, expected %d", len(row), len(b.Columns))
	}
	b.Rows = append(b.Rows, row)
	return nil
}

// AddColumn appends a column with one value per existing row.
func (b *Batch) AddColumn(col Column, values []Value) error {
	col.Name = CanonicalColumn(col.Name)
	if _, exists := b.ColumnIndex(col.Name); exists {
		return fmt.Errorf("column %s already exists", col.Name)
	}
	if len(values) != len(b.Rows) {
		return fmt.Errorf("column %s has %d values, batch has %d rows", col.Name, len(values), len(b.Rows))
	}
	b.Columns = append(b.Columns, col)
	b.index[col.Name] = len(b.Columns) - 1
	for i := range b.Rows {
		b.Rows[i] = append(b.Rows[i], values[i])
	}
	return nil
}

// Project returns a new batch holding only the named columns, in the given order.
func (b *Batch) Project(names ...string) (*Batch, error) {
	positions := make([]int, len(names))
	cols := make([]Column, len(names))
	for i, name := range names {
		pos, ok := b.ColumnIndex(name)
		if !ok {
			return nil, fmt.Errorf("column not found: %s", CanonicalColumn(name))
		}
		positions[i] = pos
		cols[i] = b.Columns[pos]
	}

	out := NewBatch(b.Format, cols)
	out.Rows = make([]Row, len(b.Rows))
	for r, row := range b.Rows {
		projected := make(Row, len(positions))
		for i, pos := range positions {
			projected[i] = row[pos]
		}
		out.Rows[r] = projected
	}
	return out, nil
}

// Distinct projects the named columns and drops repeated rows, keeping the
// first occurrence of each combination. Nulls compare equal to each other.
func (b *Batch) Distinct(names ...string) (*Batch, error) {
	projected, err := b.Project(names...)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(projected.Rows))
	kept := projected.Rows[:0]
	var sb strings.Builder
	for _, row := range projected.Rows {
		sb.Reset()
		for _, v := range row {
			if k, ok := v.Key(); ok {
				sb.WriteByte('v')
				sb.WriteString(strconv.Itoa(len(k)))
				sb.WriteByte(':')
				sb.WriteString(k)
			} else {
				sb.WriteByte('n')
			}
		}
		key := sb.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, row)
	}
	projected.Rows = kept
	return projected, nil
}
