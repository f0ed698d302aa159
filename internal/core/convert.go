package core

// convert.go coerces raw text cells into typed values.
//
// Source extracts are messy: numeric columns carry stray text, identifiers
// arrive with padding, categories are free text. Coercion never fails a row:
// a cell that does not parse as its declared type becomes a null Value and is
// counted, and the per-column counts are returned as CoercionWarnings.

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// RawCell is a cell as read from the source. Valid=false means the cell was
// absent or empty.
type RawCell struct {
	Text  string
	Valid bool
}

// Text returns a present raw cell.
func Text(s string) RawCell { return RawCell{Text: s, Valid: true} }

// RawBatch is the untyped output of a reader. Columns are canonical names in
// source order; every row has one cell per column.
type RawBatch struct {
	Format  Format
	Columns []string
	Rows    [][]RawCell
	Types   TypeDict
}

// CoercionWarning summarizes the cells of one column that could not be
// coerced to the declared type and were replaced by null.
type CoercionWarning struct {
	Column string
	Type   SemanticType
	Count  int
	Sample string // first offending raw value
}

func (w CoercionWarning) String() string {
	return fmt.Sprintf("%s: %d value(s) not coercible to %s (e.g. %q)", w.Column, w.Count, w.Type, w.Sample)
}

// ToInt parses an integer of the given bit width. Integral decimals such as
// "12.0" are accepted. Out-of-range values are rejected.
func ToInt(s string, bits int) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != math.Trunc(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt64 {
			return 0, false
		}
		i = int64(f)
	}
	if bits > 0 && bits < 64 {
		limit := int64(1) << (bits - 1)
		if i < -limit || i >= limit {
			return 0, false
		}
	}
	return i, true
}

// ToFloat parses a floating point number of the given bit width. NaN is
// treated as missing. Finite values beyond the float32 range are rejected for
// 32-bit columns; explicit infinities are kept.
func ToFloat(s string, bits int) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	if bits == 32 && !math.IsInf(f, 0) && math.Abs(f) > math.MaxFloat32 {
		return 0, false
	}
	return f, true
}

// Coercer converts the raw cells of a single column into typed values and
// keeps the category vocabulary and failure statistics for that column.
type Coercer struct {
	column   Column
	levels   map[string]int32
	failures int
	sample   string
}

// NewCoercer creates a coercer for a column.
func NewCoercer(col Column) *Coercer {
	c := &Coercer{column: col}
	if col.Type == TypeCategory {
		c.levels = make(map[string]int32)
		for i, l := range col.Levels {
			c.levels[l] = int32(i)
		}
	}
	return c
}

// Coerce converts one raw cell. Missing cells are null without counting as a failure.
func (c *Coercer) Coerce(raw RawCell) Value {
	if !raw.Valid {
		return Null(c.column.Type)
	}

	switch c.column.Type {
	case TypeInt:
		i, ok := ToInt(raw.Text, c.column.Bits)
		if !ok {
			return c.fail(raw.Text)
		}
		return IntValue(i)

	case TypeFloat:
		f, ok := ToFloat(raw.Text, c.column.Bits)
		if !ok {
			if isNaNLiteral(raw.Text) {
				return Null(TypeFloat)
			}
			return c.fail(raw.Text)
		}
		return FloatValue(f)

	case TypeCategory:
		code, ok := c.levels[raw.Text]
		if !ok {
			code = int32(len(c.column.Levels))
			c.levels[raw.Text] = code
			c.column.Levels = append(c.column.Levels, raw.Text)
		}
		return CategoryValue(code, raw.Text)

	default:
		return StringValue(raw.Text)
	}
}

func (c *Coercer) fail(raw string) Value {
	if c.failures == 0 {
		c.sample = raw
	}
	c.failures++
	return Null(c.column.Type)
}

func isNaNLiteral(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nan", "":
		return true
	}
	return false
}

// Column returns the column definition including the category vocabulary seen so far.
func (c *Coercer) Column() Column { return c.column }

// Warning returns the failure summary, or false if every cell coerced.
func (c *Coercer) Warning() (CoercionWarning, bool) {
	if c.failures == 0 {
		return CoercionWarning{}, false
	}
	return CoercionWarning{
		Column: c.column.Name,
		Type:   c.column.Type,
		Count:  c.failures,
		Sample: c.sample,
	}, true
}

// Normalize coerces a raw batch into a typed batch. The resulting column set
// is the intersection of the raw columns and the declared types, in source
// order. A column repeated in the source keeps its first occurrence.
func Normalize(raw *RawBatch) (*Batch, []CoercionWarning) {
	var (
		positions []int
		coercers  []*Coercer
		seen      = make(map[string]bool, len(raw.Columns))
	)
	for i, name := range raw.Columns {
		name = CanonicalColumn(name)
		tag, ok := raw.Types.Lookup(name)
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		positions = append(positions, i)
		coercers = append(coercers, NewCoercer(NewColumn(name, tag)))
	}

	rows := make([]Row, len(raw.Rows))
	for r, cells := range raw.Rows {
		row := make(Row, len(positions))
		for i, pos := range positions {
			var cell RawCell
			if pos < len(cells) {
				cell = cells[pos]
			}
			row[i] = coercers[i].Coerce(cell)
		}
		rows[r] = row
	}

	cols := make([]Column, len(coercers))
	var warnings []CoercionWarning
	for i, c := range coercers {
		cols[i] = c.Column()
		if w, ok := c.Warning(); ok {
			warnings = append(warnings, w)
		}
	}

	batch := NewBatch(raw.Format, cols)
	batch.Rows = rows
	return batch, warnings
}
