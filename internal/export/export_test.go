package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/apache/arrow/go/v10/parquet/file"
	"github.com/apache/arrow/go/v10/parquet/pqarrow"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/retail-etl/internal/core"
	"github.com/JonMunkholm/retail-etl/internal/join"
	"github.com/JonMunkholm/retail-etl/internal/metrics"
)

func salesBatch(t *testing.T, dates ...core.Value) *core.Batch {
	t.Helper()
	b := core.NewBatch(core.FormatCSV, []core.Column{
		core.NewColumn("COD_ID_VENDA_UNICO", "int64"),
		core.NewColumn("NUM_ANOMESDIA", "int32"),
		core.NewColumn("DES_PRODUTO", "string"),
	})
	for i, d := range dates {
		require.NoError(t, b.Append(core.Row{core.IntValue(int64(i)), d, core.StringValue("p")}))
	}
	return b
}

// memSink records partitions instead of writing files.
type memSink struct {
	parts  []Partition
	failOn int
}

func (m *memSink) WritePartition(_ context.Context, p Partition) error {
	if m.failOn > 0 && len(m.parts)+1 == m.failOn {
		return errors.New("disk full")
	}
	m.parts = append(m.parts, p)
	return nil
}

func TestParseDateKey(t *testing.T) {
	tests := []struct {
		name    string
		value   core.Value
		want    string
		wantErr bool
	}{
		{"int", core.IntValue(20230115), "2023-01-15", false},
		{"integral float", core.FloatValue(20231231), "2023-12-31", false},
		{"string", core.StringValue("20240229"), "2024-02-29", false},
		{"null", core.Null(core.TypeInt), "", true},
		{"short", core.IntValue(202301), "", true},
		{"bad month", core.IntValue(20231301), "", true},
		{"bad day", core.IntValue(20230230), "", true},
		{"text", core.StringValue("2023-1-1"), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDateKey(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Format("2006-01-02"))
		})
	}
}

func TestPartitioner_Split(t *testing.T) {
	b := salesBatch(t,
		core.IntValue(20230201),
		core.IntValue(20230115),
		core.IntValue(20230203),
		core.IntValue(20220115),
		core.IntValue(20230120),
	)

	parts, err := Partitioner{DateColumn: "num_anomesdia"}.Split(b)
	require.NoError(t, err)
	require.Len(t, parts, 3)

	assert.Equal(t, PartitionKey{2023, 2}, parts[0].Key, "first-seen order")
	assert.Equal(t, PartitionKey{2023, 1}, parts[1].Key)
	assert.Equal(t, PartitionKey{2022, 1}, parts[2].Key)

	assert.Equal(t,
		[]string{"COD_ID_VENDA_UNICO", "NUM_ANOMESDIA", "DES_PRODUTO", "ANO", "MES", "DIA"},
		parts[0].Batch.ColumnNames())

	jan := parts[1].Batch
	require.Equal(t, 2, jan.Len())
	assert.Equal(t, int64(1), jan.Rows[0][0].Int, "relative order kept")
	assert.Equal(t, int64(4), jan.Rows[1][0].Int)
	assert.Equal(t, []int64{2023, 1, 20}, []int64{jan.Rows[1][3].Int, jan.Rows[1][4].Int, jan.Rows[1][5].Int})

	total := 0
	for _, p := range parts {
		total += p.Batch.Len()
	}
	assert.Equal(t, b.Len(), total, "no row dropped")
	assert.Len(t, b.Columns, 3, "source batch untouched")
}

func TestPartitioner_InvalidDate(t *testing.T) {
	b := salesBatch(t, core.IntValue(20230101), core.Null(core.TypeInt))
	_, err := Partitioner{DateColumn: "NUM_ANOMESDIA"}.Split(b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 1")

	_, err = Partitioner{DateColumn: "MISSING"}.Split(b)
	assert.Error(t, err)
}

func TestPartitionedExporter_Export(t *testing.T) {
	sink := &memSink{}
	m := metrics.New()
	e := NewPartitionedExporter("NUM_ANOMESDIA", sink, nil, m)

	keys, err := e.Export(context.Background(), salesBatch(t, core.IntValue(20230101), core.IntValue(20230301)))
	require.NoError(t, err)
	assert.Equal(t, []PartitionKey{{2023, 1}, {2023, 3}}, keys)
	assert.Len(t, sink.parts, 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PartitionsWritten))
}

func TestPartitionedExporter_Errors(t *testing.T) {
	t.Run("invalid date writes nothing", func(t *testing.T) {
		sink := &memSink{}
		e := NewPartitionedExporter("NUM_ANOMESDIA", sink, nil, nil)
		_, err := e.Export(context.Background(), salesBatch(t, core.IntValue(20230101), core.IntValue(99999999)))
		assert.ErrorIs(t, err, core.ErrExport)
		assert.Empty(t, sink.parts)
	})

	t.Run("sink failure", func(t *testing.T) {
		sink := &memSink{failOn: 2}
		e := NewPartitionedExporter("NUM_ANOMESDIA", sink, nil, nil)
		keys, err := e.Export(context.Background(), salesBatch(t, core.IntValue(20230101), core.IntValue(20230301)))
		var exportErr *core.ExportError
		require.True(t, errors.As(err, &exportErr))
		assert.Equal(t, "ano=2023/mes=3", exportErr.Target)
		assert.Len(t, keys, 1)
	})
}

func TestArrowType(t *testing.T) {
	tests := []struct {
		tag  string
		want arrow.DataType
	}{
		{"int8", arrow.PrimitiveTypes.Int8},
		{"int16", arrow.PrimitiveTypes.Int16},
		{"int32", arrow.PrimitiveTypes.Int32},
		{"int64", arrow.PrimitiveTypes.Int64},
		{"float32", arrow.PrimitiveTypes.Float32},
		{"float64", arrow.PrimitiveTypes.Float64},
		{"category", arrow.BinaryTypes.String},
		{"string", arrow.BinaryTypes.String},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			assert.Equal(t, tt.want, ArrowType(core.NewColumn("c", tt.tag)))
		})
	}
}

func TestParquetSink_RoundTrip(t *testing.T) {
	root := t.TempDir()
	sink := NewParquetSink(root)
	e := NewPartitionedExporter("NUM_ANOMESDIA", sink, nil, nil)

	b := salesBatch(t, core.IntValue(20230115), core.IntValue(20230116), core.IntValue(20230201))
	b.Rows[1][2] = core.Null(core.TypeString)

	_, err := e.Export(context.Background(), b)
	require.NoError(t, err)

	path := filepath.Join(root, "ano=2023", "mes=1", "vendas.parquet")
	assert.Equal(t, path, sink.PartitionPath(PartitionKey{2023, 1}))
	assert.FileExists(t, filepath.Join(root, "ano=2023", "mes=2", "vendas.parquet"))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	pf, err := file.NewParquetReader(f)
	require.NoError(t, err)

	reader, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, memory.NewGoAllocator())
	require.NoError(t, err)
	table, err := reader.ReadTable(context.Background())
	require.NoError(t, err)
	defer table.Release()

	assert.Equal(t, int64(2), table.NumRows())
	names := make([]string, 0, table.NumCols())
	for _, field := range table.Schema().Fields() {
		names = append(names, field.Name)
	}
	assert.Equal(t, []string{"COD_ID_VENDA_UNICO", "NUM_ANOMESDIA", "DES_PRODUTO", "ANO", "MES", "DIA"}, names)

	desc := table.Column(2).Data().Chunk(0).(*array.String)
	assert.Equal(t, "p", desc.Value(0))
	assert.True(t, desc.IsNull(1), "null survives the round trip")

	day := table.Column(5).Data().Chunk(0).(*array.Int32)
	assert.Equal(t, int32(16), day.Value(1))
}

func TestDivergenceReporter_Write(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "divergencias")
	m := metrics.New()
	r := NewDivergenceReporter(dir, nil, m)

	products := join.NewDivergenceSet(join.ProductsNotFound)
	products.Add(core.IntValue(7))
	products.Add(core.Null(core.TypeInt))
	products.Add(core.IntValue(3))
	customers := join.NewDivergenceSet(join.CustomersNotFound)

	paths, err := r.Write([]*join.DivergenceSet{products, customers})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "clientes_nao_encontrados.csv"),
		filepath.Join(dir, "produtos_nao_encontrados.csv"),
	}, paths, "sorted by name")

	got, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	assert.Equal(t, "produtos_nao_encontrados\n7\n\n3\n", string(got))

	got, err = os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "clientes_nao_encontrados\n", string(got))

	assert.Equal(t, 3.0, testutil.ToFloat64(m.DivergentKeys.WithLabelValues(join.ProductsNotFound)))
}
