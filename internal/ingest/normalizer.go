// Package ingest turns raw dataset files into typed record batches.
//
// A Normalizer picks the parser from the file extension, keeps only the
// columns declared in the dataset's type dictionary and coerces each of them
// to its semantic type. Values that do not coerce become null; the failures
// are summarized per column and logged, never returned as errors.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/retail-etl/internal/core"
	"github.com/JonMunkholm/retail-etl/internal/logging"
	"github.com/JonMunkholm/retail-etl/internal/metrics"
)

// Normalizer parses source files into typed batches.
type Normalizer struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewNormalizer creates a normalizer. A nil logger discards output.
func NewNormalizer(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Normalizer{logger: logger}
}

// WithMetrics records ingested rows and coercion nulls in m.
func (n *Normalizer) WithMetrics(m *metrics.Metrics) *Normalizer {
	n.metrics = m
	return n
}

// NormalizeDataset normalizes the data file of a registered dataset and
// records its row and coercion counts under the dataset name.
func (n *Normalizer) NormalizeDataset(ctx context.Context, def core.DatasetDefinition, path string) (*core.Batch, error) {
	batch, warnings, err := n.normalizeFile(ctx, path, def.Types)
	if err != nil {
		return nil, err
	}
	n.metrics.Ingested(def.Name, batch.Len())
	for _, w := range warnings {
		n.metrics.CoercionFailures(def.Name, w.Column, w.Count)
	}
	return batch, nil
}

// FormatOf returns the source format implied by a file extension.
func FormatOf(path string) (core.Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return core.FormatCSV, true
	case ".json":
		return core.FormatJSON, true
	}
	return "", false
}

// NormalizeFile reads the file at path and returns its typed batch.
// Unreadable, unparsable or unsupported files fail with *core.IngestIOError.
func (n *Normalizer) NormalizeFile(ctx context.Context, path string, types core.TypeDict) (*core.Batch, error) {
	batch, _, err := n.normalizeFile(ctx, path, types)
	return batch, err
}

func (n *Normalizer) normalizeFile(ctx context.Context, path string, types core.TypeDict) (*core.Batch, []core.CoercionWarning, error) {
	format, ok := FormatOf(path)
	if !ok {
		return nil, nil, &core.IngestIOError{Path: path, Err: fmt.Errorf("unsupported file extension %q", filepath.Ext(path))}
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, &core.IngestIOError{Path: path, Err: err}
	}
	defer f.Close()

	var size int64
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	counter := Wrap(f, size)
	batch, warnings, err := n.normalize(format, counter, types)
	if err != nil {
		return nil, nil, &core.IngestIOError{Path: path, Err: err}
	}

	n.logger.Info("file normalized",
		"path", path,
		"format", format,
		"rows", batch.Len(),
		"columns", len(batch.Columns),
		"bytes", size,
		"bytes_read", counter.BytesRead,
		"read_percent", counter.Progress(),
	)
	return batch, warnings, nil
}

// Normalize parses r in the given format and coerces the declared columns.
func (n *Normalizer) Normalize(format core.Format, r io.Reader, types core.TypeDict) (*core.Batch, error) {
	batch, _, err := n.normalize(format, r, types)
	return batch, err
}

func (n *Normalizer) normalize(format core.Format, r io.Reader, types core.TypeDict) (*core.Batch, []core.CoercionWarning, error) {
	var (
		raw *core.RawBatch
		err error
	)
	switch format {
	case core.FormatCSV:
		raw, err = ReadCSV(r, types)
	case core.FormatJSON:
		raw, err = ReadJSON(r, types)
	default:
		err = fmt.Errorf("unsupported format %q", format)
	}
	if err != nil {
		return nil, nil, err
	}

	n.logUnknownTags(types)

	batch, warnings := core.Normalize(raw)
	for _, w := range warnings {
		n.logger.Warn("type coercion",
			"column", w.Column,
			"type", w.Type.String(),
			"nulled", w.Count,
			"sample", w.Sample,
		)
	}
	return batch, warnings, nil
}

func (n *Normalizer) logUnknownTags(types core.TypeDict) {
	for _, e := range types.Entries() {
		if _, _, known := core.ParseTypeTag(e.Tag); !known {
			n.logger.Debug("unknown type tag kept as text", "column", e.Column, "tag", e.Tag)
		}
	}
}
