// Package export writes the enriched sales batch and the divergence sets to files.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/JonMunkholm/retail-etl/internal/core"
	"github.com/JonMunkholm/retail-etl/internal/logging"
	"github.com/JonMunkholm/retail-etl/internal/metrics"
)

// Derived date columns appended to every exported partition.
const (
	ColYear  = "ANO"
	ColMonth = "MES"
	ColDay   = "DIA"
)

// PartitionKey identifies one (year, month) partition.
type PartitionKey struct {
	Year  int
	Month int
}

func (k PartitionKey) String() string {
	return fmt.Sprintf("ano=%d/mes=%d", k.Year, k.Month)
}

// Partition is the group of rows sharing a PartitionKey, in source order.
type Partition struct {
	Key   PartitionKey
	Batch *core.Batch
}

// PartitionSink receives one partition at a time.
type PartitionSink interface {
	WritePartition(ctx context.Context, p Partition) error
}

// ParseDateKey splits a YYYYMMDD value into a calendar date.
// The value must be an integral number naming a real date.
func ParseDateKey(v core.Value) (time.Time, error) {
	k, ok := v.Key()
	if !ok {
		return time.Time{}, fmt.Errorf("date key is null")
	}
	if len(k) != 8 {
		return time.Time{}, fmt.Errorf("date key %q is not YYYYMMDD", k)
	}
	n, err := strconv.Atoi(k)
	if err != nil {
		return time.Time{}, fmt.Errorf("date key %q is not YYYYMMDD", k)
	}
	y, m, d := n/10000, n/100%100, n%100
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return time.Time{}, fmt.Errorf("date key %q is not a calendar date", k)
	}
	return t, nil
}

// Partitioner groups a batch by the (year, month) of its date column.
type Partitioner struct {
	DateColumn string
}

// Split returns the partitions of b in first-seen order. Each partition holds
// the columns of b followed by ANO, MES and DIA. Rows keep their relative order.
// A null or invalid date fails the whole split.
func (p Partitioner) Split(b *core.Batch) ([]Partition, error) {
	dateIdx, ok := b.ColumnIndex(p.DateColumn)
	if !ok {
		return nil, fmt.Errorf("partition: column %s not found", core.CanonicalColumn(p.DateColumn))
	}

	columns := make([]core.Column, 0, len(b.Columns)+3)
	columns = append(columns, b.Columns...)
	columns = append(columns,
		core.NewColumn(ColYear, "int32"),
		core.NewColumn(ColMonth, "int32"),
		core.NewColumn(ColDay, "int32"),
	)

	var parts []Partition
	index := make(map[PartitionKey]int)
	for r, row := range b.Rows {
		date, err := ParseDateKey(row[dateIdx])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", r, err)
		}
		key := PartitionKey{Year: date.Year(), Month: int(date.Month())}

		pos, seen := index[key]
		if !seen {
			pos = len(parts)
			index[key] = pos
			parts = append(parts, Partition{Key: key, Batch: core.NewBatch(b.Format, columns)})
		}

		out := make(core.Row, 0, len(columns))
		out = append(out, row...)
		out = append(out,
			core.IntValue(int64(date.Year())),
			core.IntValue(int64(date.Month())),
			core.IntValue(int64(date.Day())),
		)
		parts[pos].Batch.Rows = append(parts[pos].Batch.Rows, out)
	}
	return parts, nil
}

// PartitionedExporter splits the enriched batch by month and hands each
// partition to its sink.
type PartitionedExporter struct {
	partitioner Partitioner
	sink        PartitionSink
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// NewPartitionedExporter creates an exporter keyed on dateColumn.
func NewPartitionedExporter(dateColumn string, sink PartitionSink, logger *slog.Logger, m *metrics.Metrics) *PartitionedExporter {
	if logger == nil {
		logger = logging.Nop()
	}
	return &PartitionedExporter{
		partitioner: Partitioner{DateColumn: dateColumn},
		sink:        sink,
		logger:      logger,
		metrics:     m,
	}
}

// Export writes every partition of b and returns their keys in write order.
// Partitioning happens before any write, so a bad date leaves no files behind.
func (e *PartitionedExporter) Export(ctx context.Context, b *core.Batch) ([]PartitionKey, error) {
	parts, err := e.partitioner.Split(b)
	if err != nil {
		return nil, &core.ExportError{Target: "partitions", Err: err}
	}

	keys := make([]PartitionKey, 0, len(parts))
	for _, p := range parts {
		if err := ctx.Err(); err != nil {
			return keys, &core.ExportError{Target: p.Key.String(), Err: err}
		}
		if err := e.sink.WritePartition(ctx, p); err != nil {
			return keys, &core.ExportError{Target: p.Key.String(), Err: err}
		}
		keys = append(keys, p.Key)
		e.metrics.PartitionWritten()
		e.logger.Debug("partition written", "partition", p.Key.String(), "rows", p.Batch.Len())
	}

	e.logger.Info("partitions exported", "partitions", len(keys), "rows", b.Len())
	return keys, nil
}
