package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/apache/arrow/go/v10/parquet"
	"github.com/apache/arrow/go/v10/parquet/compress"
	"github.com/apache/arrow/go/v10/parquet/pqarrow"

	"github.com/JonMunkholm/retail-etl/internal/core"
)

// DefaultPartitionFile is the file name written inside each partition directory.
const DefaultPartitionFile = "vendas.parquet"

// parquetChunkSize is the row group size handed to the writer.
const parquetChunkSize = 64 * 1024

// ParquetSink writes each partition to {Root}/ano={year}/mes={month}/{File}.
type ParquetSink struct {
	Root string
	File string

	mem memory.Allocator
}

// NewParquetSink creates a sink rooted at dir.
func NewParquetSink(dir string) *ParquetSink {
	return &ParquetSink{Root: dir, File: DefaultPartitionFile, mem: memory.NewGoAllocator()}
}

// PartitionPath returns the file a partition is written to.
func (s *ParquetSink) PartitionPath(key PartitionKey) string {
	return filepath.Join(s.Root,
		"ano="+strconv.Itoa(key.Year),
		"mes="+strconv.Itoa(key.Month),
		s.File,
	)
}

func (s *ParquetSink) WritePartition(_ context.Context, p Partition) error {
	path := s.PartitionPath(p.Key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create partition dir: %w", err)
	}

	table, err := ArrowTable(s.mem, p.Batch)
	if err != nil {
		return err
	}
	defer table.Release()

	var buf bytes.Buffer
	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	if err := pqarrow.WriteTable(table, &buf, parquetChunkSize, props, pqarrow.DefaultWriterProps()); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ArrowType maps a column to its Arrow type. Categories are stored as strings.
func ArrowType(c core.Column) arrow.DataType {
	switch c.Type {
	case core.TypeInt:
		switch {
		case c.Bits <= 8:
			return arrow.PrimitiveTypes.Int8
		case c.Bits <= 16:
			return arrow.PrimitiveTypes.Int16
		case c.Bits <= 32:
			return arrow.PrimitiveTypes.Int32
		default:
			return arrow.PrimitiveTypes.Int64
		}
	case core.TypeFloat:
		if c.Bits <= 32 {
			return arrow.PrimitiveTypes.Float32
		}
		return arrow.PrimitiveTypes.Float64
	default:
		return arrow.BinaryTypes.String
	}
}

// ArrowTable converts a batch into a single-chunk Arrow table. Null values
// become Arrow nulls. The caller releases the table.
func ArrowTable(mem memory.Allocator, b *core.Batch) (arrow.Table, error) {
	fields := make([]arrow.Field, len(b.Columns))
	chunks := make([]arrow.Array, len(b.Columns))
	defer func() {
		for _, c := range chunks {
			if c != nil {
				c.Release()
			}
		}
	}()

	for i, col := range b.Columns {
		dt := ArrowType(col)
		fields[i] = arrow.Field{Name: col.Name, Type: dt, Nullable: true}
		arr, err := buildColumn(mem, dt, b.Rows, i)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		chunks[i] = arr
	}

	schema := arrow.NewSchema(fields, nil)
	rec := array.NewRecord(schema, chunks, int64(b.Len()))
	defer rec.Release()
	return array.NewTableFromRecords(schema, []arrow.Record{rec}), nil
}

func buildColumn(mem memory.Allocator, dt arrow.DataType, rows []core.Row, col int) (arrow.Array, error) {
	switch dt.ID() {
	case arrow.INT8:
		bld := array.NewInt8Builder(mem)
		defer bld.Release()
		for _, row := range rows {
			if v := row[col]; v.IsNull() {
				bld.AppendNull()
			} else {
				bld.Append(int8(v.Int))
			}
		}
		return bld.NewArray(), nil
	case arrow.INT16:
		bld := array.NewInt16Builder(mem)
		defer bld.Release()
		for _, row := range rows {
			if v := row[col]; v.IsNull() {
				bld.AppendNull()
			} else {
				bld.Append(int16(v.Int))
			}
		}
		return bld.NewArray(), nil
	case arrow.INT32:
		bld := array.NewInt32Builder(mem)
		defer bld.Release()
		for _, row := range rows {
			if v := row[col]; v.IsNull() {
				bld.AppendNull()
			} else {
				bld.Append(int32(v.Int))
			}
		}
		return bld.NewArray(), nil
	case arrow.INT64:
		bld := array.NewInt64Builder(mem)
		defer bld.Release()
		for _, row := range rows {
			if v := row[col]; v.IsNull() {
				bld.AppendNull()
			} else {
				bld.Append(v.Int)
			}
		}
		return bld.NewArray(), nil
	case arrow.FLOAT32:
		bld := array.NewFloat32Builder(mem)
		defer bld.Release()
		for _, row := range rows {
			if v := row[col]; v.IsNull() {
				bld.AppendNull()
			} else {
				bld.Append(float32(v.Float))
			}
		}
		return bld.NewArray(), nil
	case arrow.FLOAT64:
		bld := array.NewFloat64Builder(mem)
		defer bld.Release()
		for _, row := range rows {
			if v := row[col]; v.IsNull() {
				bld.AppendNull()
			} else {
				bld.Append(v.Float)
			}
		}
		return bld.NewArray(), nil
	case arrow.STRING:
		bld := array.NewStringBuilder(mem)
		defer bld.Release()
		for _, row := range rows {
			if v := row[col]; v.IsNull() {
				bld.AppendNull()
			} else {
				bld.Append(v.String())
			}
		}
		return bld.NewArray(), nil
	default:
		return nil, fmt.Errorf("unsupported arrow type %s", dt)
	}
}
