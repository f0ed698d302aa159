package load

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/retail-etl/internal/core"
	"github.com/JonMunkholm/retail-etl/internal/metrics"
)

// fakeSink keeps committed rows in memory. A batch that fails leaves nothing behind.
type fakeSink struct {
	replaceErr error
	failOnCopy int // 1-based call that fails; 0 never fails

	replaced  int
	columns   []ColumnDef
	copyCalls int
	batchRows []int
	committed []string // COPY lines of committed batches
}

func (f *fakeSink) ReplaceTable(_ context.Context, _ string, columns []ColumnDef) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.replaced++
	f.columns = columns
	f.committed = nil
	return nil
}

func (f *fakeSink) CopyBatch(_ context.Context, _ string, _ []string, rows io.Reader) (int64, error) {
	f.copyCalls++
	var lines []string
	sc := bufio.NewScanner(rows)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if f.copyCalls == f.failOnCopy {
		return 0, errors.New("disk full")
	}
	f.batchRows = append(f.batchRows, len(lines))
	f.committed = append(f.committed, lines...)
	return int64(len(lines)), nil
}

func numberedBatch(t *testing.T, n int) *core.Batch {
	t.Helper()
	b := core.NewBatch(core.FormatCSV, []core.Column{
		core.NewColumn("ID", "int64"),
		core.NewColumn("VAL", "float32"),
	})
	b.Rows = make([]core.Row, n)
	for i := range b.Rows {
		b.Rows[i] = core.Row{core.IntValue(int64(i)), core.FloatValue(float64(i) / 2)}
	}
	return b
}

func TestSpans(t *testing.T) {
	spans := Spans(250_000, 100_000)
	require.Len(t, spans, 3)
	assert.Equal(t, []Span{{0, 100_000}, {100_000, 200_000}, {200_000, 250_000}}, spans)
	assert.Equal(t, 50_000, spans[2].Len())

	assert.Empty(t, Spans(0, 10))
	assert.Len(t, Spans(10, 10), 1)
	assert.Len(t, Spans(5, 0), 1, "non-positive size uses the default")
}

func TestLoad_BatchesInOrder(t *testing.T) {
	sink := &fakeSink{}
	var progress []Progress
	m := metrics.New()
	loader := NewLoader(sink,
		WithBatchSize(100_000),
		WithProgress(func(p Progress) { progress = append(progress, p) }),
		WithMetrics(m),
	)

	res, err := loader.Load(context.Background(), numberedBatch(t, 250_000), "vendas")
	require.NoError(t, err)

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, 250_000, res.Rows)
	assert.Equal(t, 3, res.Batches)
	assert.Equal(t, []int{100_000, 100_000, 50_000}, sink.batchRows)
	assert.Equal(t, 1, sink.replaced)
	assert.Equal(t, []ColumnDef{{"ID", "BIGINT"}, {"VAL", "REAL"}}, sink.columns)

	require.Len(t, sink.committed, 250_000)
	assert.Equal(t, "0\t0", sink.committed[0])
	assert.Equal(t, "100000\t50000", sink.committed[100_000], "order preserved across batches")
	assert.Equal(t, "249999\t124999.5", sink.committed[249_999])

	require.NotEmpty(t, progress)
	assert.Equal(t, StateStreamBatches, progress[0].State)
	last := progress[len(progress)-1]
	assert.Equal(t, StateDone, last.State)
	assert.Equal(t, 100, last.Percent())

	assert.Equal(t, 250_000.0, testutil.ToFloat64(m.RowsCommitted.WithLabelValues("vendas")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.BatchesCommitted.WithLabelValues("vendas")))
}

func TestLoad_FailureStopsLaterBatches(t *testing.T) {
	sink := &fakeSink{failOnCopy: 2}
	m := metrics.New()
	loader := NewLoader(sink, WithBatchSize(100_000), WithMetrics(m))

	res, err := loader.Load(context.Background(), numberedBatch(t, 250_000), "vendas")
	require.Error(t, err)

	var batchErr *core.BatchLoadError
	require.True(t, errors.As(err, &batchErr))
	assert.Equal(t, 2, batchErr.Batch)
	assert.Equal(t, 100_000, batchErr.Start)
	assert.Equal(t, 200_000, batchErr.End)
	assert.ErrorIs(t, err, core.ErrBatchLoad)

	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 100_000, res.Rows)
	assert.Len(t, sink.committed, 100_000, "only the first batch is durable")
	assert.Equal(t, 2, sink.copyCalls, "third batch never runs")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BatchFailures.WithLabelValues("vendas")))
}

func TestLoad_ReplaceFailure(t *testing.T) {
	connErr := &core.SinkConnectionError{Sink: "postgres", Err: errors.New("connection refused")}
	sink := &fakeSink{replaceErr: connErr}

	res, err := NewLoader(sink).Load(context.Background(), numberedBatch(t, 10), "vendas")
	assert.ErrorIs(t, err, core.ErrSinkConnection)
	assert.Equal(t, StateFailed, res.State)
	assert.Zero(t, sink.copyCalls, "no batch before schema creation")
}

func TestLoad_EmptyBatch(t *testing.T) {
	sink := &fakeSink{}
	res, err := NewLoader(sink).Load(context.Background(), numberedBatch(t, 0), "vendas")
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Zero(t, res.Rows)
	assert.Equal(t, 1, sink.replaced, "table is still replaced")
	assert.Zero(t, sink.copyCalls)
}

func TestLoad_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &fakeSink{}
	res, err := NewLoader(sink, WithBatchSize(5)).Load(ctx, numberedBatch(t, 10), "vendas")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFailed, res.State)
	assert.Zero(t, sink.copyCalls)
}

func TestNewLoader_Defaults(t *testing.T) {
	assert.Equal(t, DefaultBatchSize, NewLoader(&fakeSink{}).BatchSize())
	assert.Equal(t, DefaultBatchSize, NewLoader(&fakeSink{}, WithBatchSize(-1)).BatchSize())
	assert.Equal(t, 10, NewLoader(&fakeSink{}, WithBatchSize(10)).BatchSize())
}

func TestEncodeCopyText(t *testing.T) {
	rows := []core.Row{
		{core.IntValue(1), core.StringValue("a\tb\\c\nd\re"), core.FloatValue(1.5), core.CategoryValue(0, "PF")},
		{core.Null(core.TypeInt), core.StringValue(`\N`), core.Null(core.TypeFloat), core.Null(core.TypeCategory)},
		{core.IntValue(-2), core.StringValue(""), core.FloatValue(1e21), core.CategoryValue(1, "PJ")},
	}

	var buf bytes.Buffer
	EncodeCopyText(&buf, rows)

	want := "1\ta\\tb\\\\c\\nd\\re\t1.5\tPF\n" +
		"\\N\t\\\\N\t\\N\t\\N\n" +
		"-2\t\t1e+21\tPJ\n"
	assert.Equal(t, want, buf.String())
}

func TestSchemaSQL(t *testing.T) {
	b := core.NewBatch(core.FormatCSV, []core.Column{
		core.NewColumn("a8", "int8"),
		core.NewColumn("a16", "int16"),
		core.NewColumn("a32", "int32"),
		core.NewColumn("a64", "int64"),
		core.NewColumn("f32", "float32"),
		core.NewColumn("f64", "float64"),
		core.NewColumn("cat", "category"),
		core.NewColumn("txt", "string"),
		core.NewColumn("odd", "datetime"),
	})

	cols := Schema(b)
	types := make([]string, len(cols))
	for i, c := range cols {
		types[i] = c.SQLType
	}
	assert.Equal(t, []string{"SMALLINT", "SMALLINT", "INTEGER", "BIGINT", "REAL", "DOUBLE PRECISION", "TEXT", "TEXT", "TEXT"}, types)
	assert.Equal(t, "A8", cols[0].Name)

	assert.Equal(t, `DROP TABLE IF EXISTS "vendas"`, DropTableSQL("vendas"))
	assert.Equal(t, `CREATE TABLE "vendas" ("ID" BIGINT, "NOM_NOME" TEXT)`,
		CreateTableSQL("vendas", []ColumnDef{{"ID", "BIGINT"}, {"NOM_NOME", "TEXT"}}))
	assert.Equal(t, `COPY "vendas" ("ID", "NOM_NOME") FROM STDIN`, CopySQL("vendas", []string{"ID", "NOM_NOME"}))
	assert.Equal(t, `DROP TABLE IF EXISTS "we""ird"`, DropTableSQL(`we"ird`))
}
