package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/retail-etl/internal/config"
	"github.com/JonMunkholm/retail-etl/internal/core"
	"github.com/JonMunkholm/retail-etl/internal/logging"
	"github.com/JonMunkholm/retail-etl/internal/metrics"
	"github.com/JonMunkholm/retail-etl/internal/pipeline"
	"github.com/JonMunkholm/retail-etl/internal/report"
)

// runFlags override the environment configuration when set.
type runFlags struct {
	envFile        string
	batchSize      int
	table          string
	keepTmp        bool
	skipMongo      bool
	skipIndicators bool
}

func newRootCommand() *cobra.Command {
	var flags runFlags

	root := &cobra.Command{
		Use:           "retail-etl",
		Short:         "Load retail sales extracts into PostgreSQL",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", "", "dotenv file to load (default .env when present)")

	root.AddCommand(
		newRunCommand(&flags),
		newIndicatorsCommand(&flags),
		newDatasetsCommand(),
		newVersionCommand(),
	)
	return root
}

func newRunCommand(flags *runFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline",
		Long: `
Extracts the vendas, clientes and produtos archives, reconciles and enriches
the sales, replaces the sales table in PostgreSQL, replicates customers to
MongoDB and writes the Parquet partitions, divergence reports and indicators.
`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			cfg, logger, err := setup(c, flags)
			if err != nil {
				return err
			}
			return run(c.Context(), cfg, logger, flags)
		},
	}

	f := cmd.Flags()
	f.IntVar(&flags.batchSize, "batch-size", 0, "rows per committed load batch (LOAD_BATCH_SIZE)")
	f.StringVar(&flags.table, "table", "", "destination table (LOAD_TABLE)")
	f.BoolVar(&flags.keepTmp, "keep-tmp", false, "keep the extraction directory (ETL_KEEP_TMP)")
	f.BoolVar(&flags.skipMongo, "skip-mongo", false, "skip customer replication")
	f.BoolVar(&flags.skipIndicators, "skip-indicators", false, "skip the SQL indicators")
	return cmd
}

func newIndicatorsCommand(flags *runFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "indicators [name...]",
		Short: "Regenerate SQL indicators from the loaded table",
		Long: fmt.Sprintf(`
Runs the indicator queries against the already loaded table and writes one CSV
per indicator. With no arguments every indicator runs.

Indicators: %v
`, report.Names()),
		RunE: func(c *cobra.Command, args []string) error {
			cfg, logger, err := setup(c, flags)
			if err != nil {
				return err
			}
			if _, err := report.Select(args...); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(c.Context(), cfg.Load.Timeout)
			defer cancel()

			res, err := pipeline.Connect(ctx, cfg, logger, false)
			if err != nil {
				return err
			}
			defer res.Close(context.Background())

			paths, err := pipeline.New(cfg, logger, nil).RunIndicators(ctx, res.Sinks.Query, args...)
			for _, p := range paths {
				fmt.Fprintln(c.OutOrStdout(), p)
			}
			return err
		},
	}
}

func newDatasetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "datasets",
		Short: "List registered datasets and their column types",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			out := c.OutOrStdout()
			for _, def := range core.All() {
				fmt.Fprintf(out, "%s (%s)\n", def.Name, def.Archive)
				for _, e := range def.Types.Entries() {
					fmt.Fprintf(out, "  %-28s %s\n", e.Column, e.Tag)
				}
			}
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(c *cobra.Command, args []string) {
			fmt.Fprintln(c.OutOrStdout(), version)
		},
	}
}

// setup loads the environment and configuration, applies flag overrides and
// configures logging.
func setup(c *cobra.Command, flags *runFlags) (*config.Config, *slog.Logger, error) {
	if err := loadEnv(flags.envFile); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	fs := c.Flags()
	if fs.Changed("batch-size") {
		cfg.Load.BatchSize = flags.batchSize
	}
	if fs.Changed("table") {
		cfg.Load.Table = flags.table
	}
	if fs.Changed("keep-tmp") {
		cfg.Input.KeepTmp = flags.keepTmp
	}
	if flags.skipIndicators {
		cfg.Output.Indicators = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("configuration loaded",
		"load_table", cfg.Load.Table,
		"load_batch_size", cfg.Load.BatchSize,
		"mongo_enabled", cfg.Mongo.Enabled() && !flags.skipMongo,
		"indicators", cfg.Output.Indicators,
		"datasets", core.DatasetCount(),
	)
	return cfg, logger, nil
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, flags *runFlags) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.Load.Timeout)
	defer cancel()

	res, err := pipeline.Connect(ctx, cfg, logger, !flags.skipMongo)
	if err != nil {
		return err
	}
	defer res.Close(context.Background())

	summary, err := pipeline.New(cfg, logger, metrics.New()).Run(ctx, res.Sinks)
	if err != nil {
		return err
	}

	logger.Info("summary",
		"run_id", summary.RunID,
		"rows_loaded", summary.Load.Rows,
		"identifiers_corrected", summary.Corrected,
		"documents_replicated", summary.Replication.Inserted,
		"partitions", len(summary.Partitions),
		"divergence_reports", len(summary.Divergences),
		"indicator_reports", len(summary.Indicators),
		"duration", summary.Duration,
	)
	return nil
}
