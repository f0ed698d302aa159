package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/JonMunkholm/retail-etl/internal/core"
)

// Separator is the field separator of the source CSV extracts.
const Separator = ';'

// naTokens are the cell texts read as missing, the same default set pandas
// read_csv uses. Matching is exact and case sensitive.
var naTokens = map[string]struct{}{
	"": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {},
	"-NaN": {}, "-nan": {}, "1.#IND": {}, "1.#QNAN": {}, "<NA>": {}, "N/A": {},
	"NA": {}, "NULL": {}, "NaN": {}, "None": {}, "n/a": {}, "nan": {}, "null": {},
}

// IsNA reports whether a CSV cell text stands for a missing value.
func IsNA(s string) bool {
	_, ok := naTokens[s]
	return ok
}

// ReadCSV reads a semicolon separated file whose first line is the header.
// Only columns declared in types are kept; the others are dropped before any
// value is looked at. Empty, NA-token and missing cells become invalid raw cells.
func ReadCSV(r io.Reader, types core.TypeDict) (*core.RawBatch, error) {
	cr := csv.NewReader(r)
	cr.Comma = Separator
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return &core.RawBatch{Format: core.FormatCSV, Types: types}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var (
		columns   []string
		positions []int
		seen      = make(map[string]bool, len(header))
	)
	for i, h := range header {
		name := core.CanonicalColumn(h)
		if !types.Has(name) || seen[name] {
			continue
		}
		seen[name] = true
		columns = append(columns, name)
		positions = append(positions, i)
	}

	batch := &core.RawBatch{Format: core.FormatCSV, Columns: columns, Types: types}
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", len(batch.Rows)+2, err)
		}
		if isBlankRecord(record) {
			continue
		}

		row := make([]core.RawCell, len(positions))
		for i, pos := range positions {
			if pos < len(record) && !IsNA(record[pos]) {
				row[i] = core.Text(record[pos])
			}
		}
		batch.Rows = append(batch.Rows, row)
	}

	return batch, nil
}

// isBlankRecord reports whether a line holds nothing but a single empty field.
// encoding/csv already skips truly empty lines; this catches lines of whitespace.
func isBlankRecord(record []string) bool {
	return len(record) == 1 && len(record[0]) > 0 && allSpace(record[0])
}

func allSpace(s string) bool {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\r':
		default:
			return false
		}
	}
	return true
}
