package ingest

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/JonMunkholm/retail-etl/internal/core"
)

// ReadJSON parses a whole JSON document into a raw batch. Two layouts are accepted:
//
//	[{"col": v, ...}, ...]                 one object per record
//	{"col": {"0": v, "1": v}, ...}         column oriented, keyed by row index
//	{"col": [v, v], ...}                   column oriented, positional
//
// Column order follows first appearance in the document. Only declared
// columns are kept. JSON null and absent keys become invalid raw cells.
func ReadJSON(r io.Reader, types core.TypeDict) (*core.RawBatch, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty json document")
	}

	b := &rawBuilder{types: types, positions: make(map[string]int)}
	switch data[0] {
	case '[':
		err = b.records(data)
	case '{':
		err = b.columns(data)
	default:
		return nil, fmt.Errorf("unsupported json document: expected array or object, got %q", data[0])
	}
	if err != nil {
		return nil, err
	}
	return b.batch(), nil
}

// rawBuilder accumulates cells keyed by canonical column and row.
type rawBuilder struct {
	types     core.TypeDict
	names     []string
	positions map[string]int
	cells     [][]core.RawCell // by column, then row
	rows      int
}

// column returns the slot of a declared column, registering it on first use.
func (b *rawBuilder) column(key string) (int, bool) {
	name := core.CanonicalColumn(key)
	if !b.types.Has(name) {
		return 0, false
	}
	if pos, ok := b.positions[name]; ok {
		return pos, true
	}
	pos := len(b.names)
	b.positions[name] = pos
	b.names = append(b.names, name)
	b.cells = append(b.cells, nil)
	return pos, true
}

func (b *rawBuilder) set(col, row int, cell core.RawCell) {
	cells := b.cells[col]
	for len(cells) <= row {
		cells = append(cells, core.RawCell{})
	}
	cells[row] = cell
	b.cells[col] = cells
}

func (b *rawBuilder) records(data []byte) error {
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("decode records: %w", err)
	}

	for row, rec := range records {
		keys, values, err := decodeObject(rec)
		if err != nil {
			return fmt.Errorf("record %d: %w", row, err)
		}
		filled := make(map[int]bool, len(keys))
		for i, key := range keys {
			col, ok := b.column(key)
			if !ok || filled[col] {
				continue
			}
			filled[col] = true
			cell, err := rawCell(values[i])
			if err != nil {
				return fmt.Errorf("record %d column %s: %w", row, key, err)
			}
			b.set(col, row, cell)
		}
	}
	b.rows = len(records)
	return nil
}

func (b *rawBuilder) columns(data []byte) error {
	keys, values, err := decodeObject(data)
	if err != nil {
		return fmt.Errorf("decode columns: %w", err)
	}

	// Row indexes are shared across columns; assign slots in first-seen order.
	rowSlots := make(map[string]int)
	slot := func(index string) int {
		if s, ok := rowSlots[index]; ok {
			return s
		}
		s := len(rowSlots)
		rowSlots[index] = s
		return s
	}

	done := make(map[int]bool, len(keys))
	for i, key := range keys {
		col, ok := b.column(key)
		if !ok || done[col] {
			continue
		}
		done[col] = true

		v := bytes.TrimSpace(values[i])
		if len(v) == 0 {
			continue
		}
		switch v[0] {
		case '{':
			idx, cellValues, err := decodeObject(v)
			if err != nil {
				return fmt.Errorf("column %s: %w", key, err)
			}
			for j, index := range idx {
				cell, err := rawCell(cellValues[j])
				if err != nil {
					return fmt.Errorf("column %s row %s: %w", key, index, err)
				}
				b.set(col, slot(index), cell)
			}
		case '[':
			var list []json.RawMessage
			if err := json.Unmarshal(v, &list); err != nil {
				return fmt.Errorf("column %s: %w", key, err)
			}
			for j, raw := range list {
				cell, err := rawCell(raw)
				if err != nil {
					return fmt.Errorf("column %s row %d: %w", key, j, err)
				}
				b.set(col, slot(strconv.Itoa(j)), cell)
			}
		default:
			return fmt.Errorf("column %s: expected object or array", key)
		}
	}
	b.rows = len(rowSlots)
	return nil
}

func (b *rawBuilder) batch() *core.RawBatch {
	out := &core.RawBatch{
		Format:  core.FormatJSON,
		Columns: b.names,
		Rows:    make([][]core.RawCell, b.rows),
		Types:   b.types,
	}
	for r := range out.Rows {
		row := make([]core.RawCell, len(b.names))
		for c := range b.names {
			if r < len(b.cells[c]) {
				row[c] = b.cells[c][r]
			}
		}
		out.Rows[r] = row
	}
	return out
}

// decodeObject decodes a JSON object keeping its key order.
func decodeObject(data []byte) ([]string, []json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("expected object")
	}

	var (
		keys   []string
		values []json.RawMessage
	)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected object key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, fmt.Errorf("value of %q: %w", key, err)
		}
		keys = append(keys, key)
		values = append(values, raw)
	}
	return keys, values, nil
}

// rawCell converts a JSON scalar to its text form. Nested values keep their JSON text.
func rawCell(raw json.RawMessage) (core.RawCell, error) {
	v := bytes.TrimSpace(raw)
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return core.RawCell{}, nil
	}
	if v[0] == '"' {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return core.RawCell{}, err
		}
		return core.Text(s), nil
	}
	return core.Text(string(v)), nil
}
