// Package pipeline runs the retail ETL end to end.
//
// Stages run strictly one after another; only ingestion reads the three
// datasets concurrently. The first fatal error abandons every later stage.
//
//	extract+ingest -> reconcile -> join -> load -> replicate -> partitions -> divergences -> indicators
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/retail-etl/internal/archive"
	"github.com/JonMunkholm/retail-etl/internal/config"
	"github.com/JonMunkholm/retail-etl/internal/core"
	"github.com/JonMunkholm/retail-etl/internal/core/tables"
	"github.com/JonMunkholm/retail-etl/internal/export"
	"github.com/JonMunkholm/retail-etl/internal/ingest"
	"github.com/JonMunkholm/retail-etl/internal/join"
	"github.com/JonMunkholm/retail-etl/internal/load"
	"github.com/JonMunkholm/retail-etl/internal/logging"
	"github.com/JonMunkholm/retail-etl/internal/metrics"
	"github.com/JonMunkholm/retail-etl/internal/reconcile"
	"github.com/JonMunkholm/retail-etl/internal/replicate"
	"github.com/JonMunkholm/retail-etl/internal/report"
)

// Stage names, used in logs and the stage duration metric.
const (
	StageIngest      = "ingest"
	StageReconcile   = "reconcile"
	StageJoin        = "join"
	StageLoad        = "load"
	StageReplicate   = "replicate"
	StagePartitions  = "partitions"
	StageDivergences = "divergences"
	StageIndicators  = "indicators"
)

// datasetOrder fixes the ingestion order and result slots.
var datasetOrder = []string{tables.Vendas, tables.Clientes, tables.Produtos}

// Sinks are the external stores of a run. A nil Customers skips replication;
// a nil Query skips the indicators.
type Sinks struct {
	Load      load.Sink
	Customers replicate.Collection
	Query     report.Querier
}

// Summary reports what a run did. Fields of stages that never ran stay zero.
type Summary struct {
	RunID       string
	Ingested    map[string]int
	Corrected   int
	Load        load.LoadResult
	Replication replicate.Result
	Partitions  []export.PartitionKey
	Divergences []string
	Indicators  []string
	Duration    time.Duration
}

// Runner executes pipeline runs.
type Runner struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a runner. A nil logger discards output; nil metrics disables collection.
func New(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Runner {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Runner{cfg: cfg, logger: logger, metrics: m}
}

// Run executes every stage against sinks. The extraction directory is removed
// on every exit path unless the configuration keeps it.
func (r *Runner) Run(ctx context.Context, sinks Sinks) (*Summary, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := logging.WithRun(r.logger, runID)

	summary := &Summary{RunID: runID, Ingested: make(map[string]int)}
	logger.Info("run started", "config", r.cfg.String())

	extractor := archive.NewExtractor(r.cfg.Input.TmpDir, logger)
	defer func() {
		if r.cfg.Input.KeepTmp {
			return
		}
		if err := extractor.Cleanup(); err != nil {
			logger.Warn("failed to remove extraction dir", "dir", extractor.Root(), "error", err)
		}
	}()

	var batches []*core.Batch
	err := r.stage(ctx, logger, StageIngest, func(ctx context.Context) error {
		var err error
		batches, err = r.ingest(ctx, logger, extractor)
		if err != nil {
			return err
		}
		for i, name := range datasetOrder {
			summary.Ingested[name] = batches[i].Len()
		}
		return nil
	})
	if err != nil {
		return summary, r.finish(logger, summary, start, err)
	}
	sales, customers, products := batches[0], batches[1], batches[2]

	err = r.stage(ctx, logger, StageReconcile, func(context.Context) error {
		res, err := reconcile.New(tables.ColStore, tables.ColSaleID, logger).Apply(sales)
		if err != nil {
			return err
		}
		summary.Corrected = res.Corrected
		r.metrics.Corrected(res.Corrected)
		return nil
	})
	if err != nil {
		return summary, r.finish(logger, summary, start, err)
	}

	var enrichment *join.Enrichment
	err = r.stage(ctx, logger, StageJoin, func(context.Context) error {
		var err error
		enrichment, err = join.NewCrossReferenceJoiner(logger).Join(sales, products, customers)
		return err
	})
	if err != nil {
		return summary, r.finish(logger, summary, start, err)
	}
	// The dimensions are no longer needed; let them go before the load.
	batches, sales, customers, products = nil, nil, nil, nil

	err = r.stage(ctx, logger, StageLoad, func(ctx context.Context) error {
		loader := load.NewLoader(sinks.Load,
			load.WithBatchSize(r.cfg.Load.BatchSize),
			load.WithLogger(logger),
			load.WithMetrics(r.metrics),
			load.WithProgress(func(p load.Progress) {
				logger.Debug("load progress", "table", p.Table, "state", p.State, "percent", p.Percent())
			}),
		)
		var err error
		summary.Load, err = loader.Load(ctx, enrichment.Sales, r.cfg.Load.Table)
		return err
	})
	if err != nil {
		return summary, r.finish(logger, summary, start, err)
	}

	if sinks.Customers != nil {
		err = r.stage(ctx, logger, StageReplicate, func(ctx context.Context) error {
			rep := replicate.New(sinks.Customers,
				[]string{tables.ColCustomer, tables.ColCustomerName},
				r.cfg.Mongo.BatchSize, logger, r.metrics)
			var err error
			summary.Replication, err = rep.Replicate(ctx, enrichment.Sales)
			return err
		})
		if err != nil {
			return summary, r.finish(logger, summary, start, err)
		}
	} else {
		logger.Info("stage skipped", "stage", StageReplicate, "reason", "no document store configured")
	}

	err = r.stage(ctx, logger, StagePartitions, func(ctx context.Context) error {
		exporter := export.NewPartitionedExporter(tables.ColDate,
			export.NewParquetSink(r.cfg.Output.ParquetDir), logger, r.metrics)
		var err error
		summary.Partitions, err = exporter.Export(ctx, enrichment.Sales)
		return err
	})
	if err != nil {
		return summary, r.finish(logger, summary, start, err)
	}

	err = r.stage(ctx, logger, StageDivergences, func(context.Context) error {
		reporter := export.NewDivergenceReporter(r.cfg.Output.DivergenceDir, logger, r.metrics)
		var err error
		summary.Divergences, err = reporter.Write(enrichment.Divergences)
		return err
	})
	if err != nil {
		return summary, r.finish(logger, summary, start, err)
	}

	if r.cfg.Output.Indicators && sinks.Query != nil {
		err = r.stage(ctx, logger, StageIndicators, func(ctx context.Context) error {
			var err error
			summary.Indicators, err = r.indicators(ctx, logger, sinks.Query)
			return err
		})
		if err != nil {
			return summary, r.finish(logger, summary, start, err)
		}
	} else {
		logger.Info("stage skipped", "stage", StageIndicators)
	}

	return summary, r.finish(logger, summary, start, nil)
}

// RunIndicators regenerates the SQL reports from the already loaded table.
func (r *Runner) RunIndicators(ctx context.Context, q report.Querier, names ...string) ([]string, error) {
	logger := logging.WithRun(r.logger, uuid.NewString())
	var paths []string
	err := r.stage(ctx, logger, StageIndicators, func(ctx context.Context) error {
		var err error
		paths, err = r.indicators(ctx, logger, q, names...)
		return err
	})
	return paths, err
}

func (r *Runner) indicators(ctx context.Context, logger *slog.Logger, q report.Querier, names ...string) ([]string, error) {
	selected, err := report.Select(names...)
	if err != nil {
		return nil, err
	}
	return report.NewReporter(q, r.cfg.Load.Table, r.cfg.Output.IndicatorsDir, logger).Run(ctx, selected)
}

// ingest extracts and normalizes the datasets concurrently, one goroutine per
// dataset. Results land in datasetOrder slots. The first failure cancels the rest.
func (r *Runner) ingest(ctx context.Context, logger *slog.Logger, extractor *archive.Extractor) ([]*core.Batch, error) {
	normalizer := ingest.NewNormalizer(logger).WithMetrics(r.metrics)
	archives := r.cfg.Input.Archives()
	batches := make([]*core.Batch, len(datasetOrder))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(datasetOrder))
	for i, name := range datasetOrder {
		i, name := i, name
		g.Go(func() error {
			def, ok := core.Get(name)
			if !ok {
				return fmt.Errorf("dataset not registered: %s", name)
			}
			path := archives[name]
			if path == "" {
				path = def.Archive
			}

			file, err := extractor.Extract(path)
			if err != nil {
				return err
			}
			batch, err := normalizer.NormalizeDataset(gctx, def, file)
			if err != nil {
				return err
			}
			batches[i] = batch
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return batches, nil
}

// stage runs fn, timing it and logging its outcome.
func (r *Runner) stage(ctx context.Context, logger *slog.Logger, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	start := time.Now()
	logger.Info("stage started", "stage", name)

	err := fn(ctx)
	elapsed := time.Since(start)
	r.metrics.ObserveStage(name, elapsed)
	if err != nil {
		logger.Error("stage failed", "stage", name, "duration", elapsed, "error", err)
		return fmt.Errorf("%s: %w", name, err)
	}
	logger.Info("stage completed", "stage", name, "duration", elapsed)
	return nil
}

func (r *Runner) finish(logger *slog.Logger, summary *Summary, start time.Time, err error) error {
	summary.Duration = time.Since(start)
	if werr := r.metrics.WriteTextfile(r.cfg.Metrics.Textfile); werr != nil {
		logger.Warn("failed to write metrics textfile", "path", r.cfg.Metrics.Textfile, "error", werr)
	}
	if err != nil {
		logger.Error("run failed", "duration", summary.Duration, "error", err)
		return err
	}
	logger.Info("run completed",
		"duration", summary.Duration,
		"rows_loaded", summary.Load.Rows,
		"partitions", len(summary.Partitions),
	)
	return nil
}
