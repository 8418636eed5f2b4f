package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/incident-elevation-etl/internal/adapter/csvsource"
	"github.com/couchcryptid/incident-elevation-etl/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/incident-elevation-etl/internal/adapter/kafka"
	"github.com/couchcryptid/incident-elevation-etl/internal/adapter/openelevation"
	"github.com/couchcryptid/incident-elevation-etl/internal/adapter/parquet"
	"github.com/couchcryptid/incident-elevation-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/incident-elevation-etl/internal/config"
	"github.com/couchcryptid/incident-elevation-etl/internal/domain"
	"github.com/couchcryptid/incident-elevation-etl/internal/observability"
	"github.com/couchcryptid/incident-elevation-etl/internal/pipeline"
	"github.com/couchcryptid/incident-elevation-etl/internal/report"
)

// Set by the linker at build time.
var (
	version = "dev"
	commit  = "none"
)

type runFlags struct {
	input      string
	parquetDir string
	noColor    bool
	serve      bool
	precision  int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "etl",
		Short:         "Enrich police incident reports with elevation and fit report latency models.",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}
	root.AddCommand(newRunCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build details.",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("incident elevation etl\n")
			cmd.Printf("  Version: %s\n", version)
			cmd.Printf("  Commit:  %s\n", commit)
			cmd.Printf("  Runtime: %s\n", runtime.Version())
		},
	}
}

func newRunCmd() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load an incident CSV, enrich it with elevation, fit the models and print the report.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return run(cmd.Context(), cfg, flags, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&flags.input, "input", "i", "", "incident CSV export to analyze")
	cmd.Flags().StringVar(&flags.parquetDir, "parquet-dir", "", "write the enriched and bin tables as Parquet into this directory")
	cmd.Flags().BoolVar(&flags.noColor, "no-color", false, "disable colored significance markers")
	cmd.Flags().BoolVar(&flags.serve, "serve", false, "keep the HTTP server running after the run until interrupted")
	cmd.Flags().IntVar(&flags.precision, "precision", 4, "decimal places in report tables")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func run(parent context.Context, cfg *config.Config, flags runFlags, out io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	days, err := domain.ParseDayMapping(cfg.DayMapping)
	if err != nil {
		return err
	}

	// Resolver chain: paced HTTP client, optional SQLite store, in-memory LRU.
	var resolver domain.ElevationResolver = openelevation.NewClient(cfg.ElevationBaseURL, openelevation.Options{
		Timeout:    cfg.ElevationTimeout,
		Limiter:    openelevation.NewPacer(cfg.ElevationPace),
		MaxRetries: cfg.ElevationMaxRetries,
	}, metrics, logger)

	var store *sqlite.Store
	if cfg.ElevationCacheDB != "" {
		store, err = sqlite.Open(ctx, cfg.ElevationCacheDB, resolver, metrics, logger)
		if err != nil {
			return err
		}
		resolver = store
		logger.Info("elevation store enabled", "path", cfg.ElevationCacheDB)
	}
	resolver = openelevation.NewCachedResolver(resolver, cfg.ElevationCacheSize, metrics)
	logger.Info("elevation lookups configured",
		"base_url", cfg.ElevationBaseURL,
		"pace", cfg.ElevationPace,
		"max_retries", cfg.ElevationMaxRetries,
		"cache_size", cfg.ElevationCacheSize,
		"strict", cfg.ElevationStrict,
	)

	opts := pipeline.Options{
		Days:         days,
		Strict:       cfg.ElevationStrict,
		TestFraction: cfg.TestFraction,
		SplitSeed:    cfg.SplitSeed,
		Binner:       domain.DefaultBinner,
	}

	var extra []pipeline.Option
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled() {
		writer = kafkaadapter.NewWriter(cfg, opts.Binner, logger)
		extra = append(extra, pipeline.WithPublisher(writer))
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaSinkTopic)
	}
	if flags.parquetDir != "" {
		extra = append(extra, pipeline.WithExporter(parquet.NewExporter(flags.parquetDir, opts.Binner)))
		logger.Info("parquet export enabled", "dir", flags.parquetDir)
	}

	p := pipeline.New(csvsource.NewLoader(flags.input, logger), resolver, opts, logger, metrics, extra...)

	var srv *httpadapter.Server
	if cfg.HTTPAddr != "" {
		srv = httpadapter.NewServer(cfg.HTTPAddr, p, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
	}

	res, runErr := p.Run(ctx)
	if runErr != nil {
		logger.Error("pipeline error", "error", runErr)
	}
	if res != nil {
		if flags.noColor {
			color.NoColor = true
		}
		rw := report.New(out, report.Options{Color: !color.NoColor, Precision: flags.precision})
		if err := rw.Write(res); err != nil {
			logger.Error("write report", "error", err)
		}
	}

	if flags.serve && srv != nil && runErr == nil {
		logger.Info("run complete, serving until interrupted", "addr", cfg.HTTPAddr)
		<-ctx.Done()
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Error("elevation store close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return runErr
}
