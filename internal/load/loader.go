// Package load replaces a relational table with the contents of a batch.
//
// The Loader recreates the table from the batch schema, then streams the rows
// through the sink's bulk-copy path in contiguous batches, each committed in
// its own transaction and in ascending order. A failed batch is rolled back
// and stops the load: earlier batches stay committed, later ones never run.
//
// # Load States
//
//	CREATE_SCHEMA -> STREAM_BATCHES -> DONE
//	      |               |
//	      +---------------+---> FAILED
package load

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/retail-etl/internal/core"
	"github.com/JonMunkholm/retail-etl/internal/logging"
	"github.com/JonMunkholm/retail-etl/internal/metrics"
)

// DefaultBatchSize is the number of rows per bulk-copy batch.
const DefaultBatchSize = 100_000

// State is the phase of a load.
type State string

const (
	StateCreateSchema  State = "CREATE_SCHEMA"
	StateStreamBatches State = "STREAM_BATCHES"
	StateDone          State = "DONE"
	StateFailed        State = "FAILED"
)

// Progress is reported after the schema is created and after each committed batch.
type Progress struct {
	Table         string
	State         State
	Batch         int // 1-based number of the last committed batch
	Batches       int
	RowsCommitted int
	TotalRows     int
}

// Percent returns committed rows as a percentage (0-100).
func (p Progress) Percent() int {
	if p.TotalRows == 0 {
		if p.State == StateDone {
			return 100
		}
		return 0
	}
	return p.RowsCommitted * 100 / p.TotalRows
}

// LoadResult summarizes a load. Rows counts committed rows only.
type LoadResult struct {
	Table    string
	State    State
	Rows     int
	Batches  int
	Duration time.Duration
}

// Span is a half-open row range [Start, End).
type Span struct {
	Start, End int
}

// Len returns the number of rows in the span.
func (s Span) Len() int { return s.End - s.Start }

// Spans splits n rows into contiguous spans of at most size rows.
func Spans(n, size int) []Span {
	if size <= 0 {
		size = DefaultBatchSize
	}
	spans := make([]Span, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		spans = append(spans, Span{Start: start, End: min(start+size, n)})
	}
	return spans
}

// Option configures a Loader.
type Option func(*Loader)

// WithBatchSize sets the rows per batch. Non-positive values keep the default.
func WithBatchSize(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.batchSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithProgress registers a callback invoked synchronously on progress.
func WithProgress(fn func(Progress)) Option {
	return func(l *Loader) { l.progress = fn }
}

// WithMetrics records committed and failed batches.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Loader) { l.metrics = m }
}

// Loader is the batched bulk loader.
type Loader struct {
	sink      Sink
	batchSize int
	logger    *slog.Logger
	progress  func(Progress)
	metrics   *metrics.Metrics
}

// NewLoader creates a loader writing to sink.
func NewLoader(sink Sink, opts ...Option) *Loader {
	l := &Loader{
		sink:      sink,
		batchSize: DefaultBatchSize,
		logger:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// BatchSize returns the configured rows per batch.
func (l *Loader) BatchSize() int { return l.batchSize }

// Load replaces table with the rows of b.
//
// A batch failure returns *core.BatchLoadError; the result then reports
// StateFailed and the rows committed by earlier batches.
func (l *Loader) Load(ctx context.Context, b *core.Batch, table string) (LoadResult, error) {
	start := time.Now()
	result := LoadResult{Table: table, State: StateCreateSchema}
	logger := l.logger.With("table", table)

	fail := func(err error) (LoadResult, error) {
		result.State = StateFailed
		result.Duration = time.Since(start)
		l.report(Progress{Table: table, State: StateFailed, Batch: result.Batches, RowsCommitted: result.Rows, TotalRows: b.Len()})
		logger.Error("load failed", "rows_committed", result.Rows, "error", err)
		return result, err
	}

	columns := Schema(b)
	if err := l.sink.ReplaceTable(ctx, table, columns); err != nil {
		return fail(fmt.Errorf("replace table %s: %w", table, err))
	}

	spans := Spans(b.Len(), l.batchSize)
	result.State = StateStreamBatches
	l.report(Progress{Table: table, State: StateStreamBatches, Batches: len(spans), TotalRows: b.Len()})
	logger.Info("table replaced, streaming batches",
		"columns", len(columns),
		"rows", b.Len(),
		"batches", len(spans),
		"batch_size", l.batchSize,
	)

	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}

	var buf bytes.Buffer
	for i, span := range spans {
		number := i + 1
		if err := ctx.Err(); err != nil {
			return fail(&core.BatchLoadError{Table: table, Batch: number, Start: span.Start, End: span.End, Err: err})
		}

		buf.Reset()
		EncodeCopyText(&buf, b.Rows[span.Start:span.End])

		copied, err := l.sink.CopyBatch(ctx, table, names, &buf)
		if err != nil {
			l.metrics.BatchFailed(table)
			return fail(&core.BatchLoadError{Table: table, Batch: number, Start: span.Start, End: span.End, Err: err})
		}
		if int(copied) != span.Len() {
			logger.Warn("row count mismatch", "batch", number, "sent", span.Len(), "copied", copied)
		}

		result.Rows += int(copied)
		result.Batches = number
		l.metrics.BatchCommitted(table, int(copied))
		l.report(Progress{
			Table:         table,
			State:         StateStreamBatches,
			Batch:         number,
			Batches:       len(spans),
			RowsCommitted: result.Rows,
			TotalRows:     b.Len(),
		})
		logger.Debug("batch committed", "batch", number, "of", len(spans), "rows", copied)
	}

	result.State = StateDone
	result.Duration = time.Since(start)
	l.report(Progress{Table: table, State: StateDone, Batch: result.Batches, Batches: len(spans), RowsCommitted: result.Rows, TotalRows: b.Len()})
	logger.Info("load completed", "rows", result.Rows, "batches", result.Batches, "duration", result.Duration)
	return result, nil
}

func (l *Loader) report(p Progress) {
	if l.progress != nil {
		l.progress(p)
	}
}
