package pipeline

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/JonMunkholm/retail-etl/internal/config"
	"github.com/JonMunkholm/retail-etl/internal/core"
	"github.com/JonMunkholm/retail-etl/internal/export"
	"github.com/JonMunkholm/retail-etl/internal/load"
	"github.com/JonMunkholm/retail-etl/internal/metrics"
)

const salesHeader = "COD_ID_LOJA;NUM_ANOMESDIA;COD_ID_CLIENTE;DES_TIPO_CLIENTE;DES_SEXO_CLIENTE;" +
	"COD_ID_VENDA_UNICO;COD_ID_PRODUTO;VAL_VALOR_SEM_DESC;VAL_VALOR_DESCONTO;VAL_VALOR_COM_DESC;VAL_QUANTIDADE_KG\n"

type memLoadSink struct {
	table    string
	columns  []load.ColumnDef
	lines    []string
	replaced int
}

func (s *memLoadSink) ReplaceTable(_ context.Context, table string, columns []load.ColumnDef) error {
	s.replaced++
	s.table = table
	s.columns = columns
	s.lines = nil
	return nil
}

func (s *memLoadSink) CopyBatch(_ context.Context, _ string, _ []string, rows io.Reader) (int64, error) {
	sc := bufio.NewScanner(rows)
	n := int64(0)
	for sc.Scan() {
		s.lines = append(s.lines, sc.Text())
		n++
	}
	return n, sc.Err()
}

type memCollection struct {
	docs []interface{}
}

func (c *memCollection) DeleteMany(context.Context, interface{}, ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	n := len(c.docs)
	c.docs = nil
	return &mongo.DeleteResult{DeletedCount: int64(n)}, nil
}

func (c *memCollection) InsertMany(_ context.Context, docs []interface{}, _ ...*options.InsertManyOptions) (*mongo.InsertManyResult, error) {
	c.docs = append(c.docs, docs...)
	return &mongo.InsertManyResult{InsertedIDs: make([]interface{}, len(docs))}, nil
}

func writeZip(t *testing.T, path, entry, content string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	w := zip.NewWriter(f)
	fw, err := w.Create(entry)
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

// fixture writes the three archives and returns a config pointing at them.
func fixture(t *testing.T, sales string) *config.Config {
	t.Helper()
	root := t.TempDir()
	data := filepath.Join(root, "data")
	require.NoError(t, os.MkdirAll(data, 0o755))

	writeZip(t, filepath.Join(data, "vendas.zip"), "vendas.csv", salesHeader+sales)
	writeZip(t, filepath.Join(data, "clientes.zip"), "clientes.json",
		`[{"COD_ID_CLIENTE": 10, "NOM_NOME": "Ana", "DES_SEXO_CLIENTE": "F"},
		  {"COD_ID_CLIENTE": 11, "NOM_NOME": "Bia", "DES_SEXO_CLIENTE": "F"}]`)
	writeZip(t, filepath.Join(data, "produtos.zip"), "produtos.csv",
		"COD_ID_PRODUTO;DES_PRODUTO;DES_UNIDADE\n7;Arroz;KG\n8;Feijao;KG\n")

	out := filepath.Join(root, "outputs")
	return &config.Config{
		Input: config.InputConfig{
			VendasArchive:   filepath.Join(data, "vendas.zip"),
			ClientesArchive: filepath.Join(data, "clientes.zip"),
			ProdutosArchive: filepath.Join(data, "produtos.zip"),
			TmpDir:          filepath.Join(root, "tmp"),
		},
		Output: config.OutputConfig{
			ParquetDir:    filepath.Join(out, "vendas_parquet"),
			DivergenceDir: filepath.Join(out, "divergencias"),
			IndicatorsDir: filepath.Join(out, "indicadores_sql"),
			Indicators:    true,
		},
		Load:    config.LoadConfig{Table: "vendas", BatchSize: 2},
		Mongo:   config.MongoConfig{BatchSize: 100_000},
		Metrics: config.MetricsConfig{Textfile: filepath.Join(root, "etl.prom")},
	}
}

func TestRun_EndToEnd(t *testing.T) {
	cfg := fixture(t,
		"1;20230115;10;PF;M;1|100;7;10.0;1.0;9.0;0.5\n"+
			"2;20230116;11;PF;F;1|101;8;5;0;5;1\n"+
			"1;20230201;99;PJ;M;1|102;5;3;0;3;1\n")

	loadSink := &memLoadSink{}
	customers := &memCollection{docs: []interface{}{"stale"}}

	summary, err := New(cfg, nil, metrics.New()).Run(context.Background(), Sinks{Load: loadSink, Customers: customers})
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, map[string]int{"vendas": 3, "clientes": 2, "produtos": 2}, summary.Ingested)
	assert.Equal(t, 1, summary.Corrected)

	// load
	assert.Equal(t, 1, loadSink.replaced)
	assert.Equal(t, "vendas", loadSink.table)
	require.Len(t, loadSink.lines, 3)
	assert.Equal(t, 3, summary.Load.Rows)
	assert.Equal(t, 2, summary.Load.Batches)
	assert.Contains(t, loadSink.lines[1], "\t2|101\t", "identifier corrected before the load")
	assert.Equal(t, "DES_PRODUTO", loadSink.columns[len(loadSink.columns)-2].Name)
	assert.Equal(t, "NOM_NOME", loadSink.columns[len(loadSink.columns)-1].Name)

	// replication
	assert.Equal(t, 3, summary.Replication.Inserted)
	assert.Len(t, customers.docs, 3)

	// partitions
	assert.Equal(t, []export.PartitionKey{{Year: 2023, Month: 1}, {Year: 2023, Month: 2}}, summary.Partitions)
	assert.FileExists(t, filepath.Join(cfg.Output.ParquetDir, "ano=2023", "mes=1", "vendas.parquet"))
	assert.FileExists(t, filepath.Join(cfg.Output.ParquetDir, "ano=2023", "mes=2", "vendas.parquet"))

	// divergences
	require.Len(t, summary.Divergences, 2)
	got, err := os.ReadFile(filepath.Join(cfg.Output.DivergenceDir, "produtos_nao_encontrados.csv"))
	require.NoError(t, err)
	assert.Equal(t, "produtos_nao_encontrados\n5\n", string(got))
	got, err = os.ReadFile(filepath.Join(cfg.Output.DivergenceDir, "clientes_nao_encontrados.csv"))
	require.NoError(t, err)
	assert.Equal(t, "clientes_nao_encontrados\n99\n", string(got))

	// no query sink, no indicators
	assert.Empty(t, summary.Indicators)

	assert.NoDirExists(t, cfg.Input.TmpDir, "extraction dir removed")

	prom, err := os.ReadFile(cfg.Metrics.Textfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "retail_etl_rows_committed_total")
	assert.Contains(t, string(prom), `retail_etl_divergent_keys{set="clientes_nao_encontrados"} 1`)
}

func TestRun_MalformedIdentifierStopsBeforeLoad(t *testing.T) {
	cfg := fixture(t,
		"1;20230115;10;PF;M;1|100;7;10.0;1.0;9.0;0.5\n"+
			"2;20230116;11;PF;F;NOSEPARATOR;8;5;0;5;1\n")

	loadSink := &memLoadSink{}
	summary, err := New(cfg, nil, nil).Run(context.Background(), Sinks{Load: loadSink})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrMalformedIdentifier)
	assert.True(t, strings.HasPrefix(err.Error(), StageReconcile+":"))

	assert.Zero(t, loadSink.replaced, "sink never touched")
	assert.NoDirExists(t, cfg.Output.ParquetDir)
	assert.Equal(t, 2, summary.Ingested["vendas"])
	assert.NoDirExists(t, cfg.Input.TmpDir)
}

func TestRun_MissingArchive(t *testing.T) {
	cfg := fixture(t, "1;20230115;10;PF;M;1|100;7;10.0;1.0;9.0;0.5\n")
	cfg.Input.ProdutosArchive = filepath.Join(t.TempDir(), "missing.zip")

	_, err := New(cfg, nil, nil).Run(context.Background(), Sinks{Load: &memLoadSink{}})
	assert.ErrorIs(t, err, core.ErrIngestIO)
	assert.Equal(t, "ING001", core.MapError(err).Code)
}

func TestRun_KeepTmp(t *testing.T) {
	cfg := fixture(t, "1;20230115;10;PF;M;1|100;7;10.0;1.0;9.0;0.5\n")
	cfg.Input.KeepTmp = true

	_, err := New(cfg, nil, nil).Run(context.Background(), Sinks{Load: &memLoadSink{}})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(cfg.Input.TmpDir, "vendas", "vendas.csv"))
}

func TestRun_Cancelled(t *testing.T) {
	cfg := fixture(t, "1;20230115;10;PF;M;1|100;7;10.0;1.0;9.0;0.5\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(cfg, nil, nil).Run(ctx, Sinks{Load: &memLoadSink{}})
	assert.ErrorIs(t, err, context.Canceled)
}
