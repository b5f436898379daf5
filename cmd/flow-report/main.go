package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"vnflow/internal/config"
	"vnflow/internal/dataset"
	"vnflow/internal/exporter"
	"vnflow/internal/fetch"
	"vnflow/internal/infrastructure"
	"vnflow/internal/operations"
)

func main() {
	configFile := flag.String("config", "config.yaml", "path to configuration file")
	sector := flag.String("sector", "", "sector to analyze (required)")
	refresh := flag.Bool("refresh", false, "force a data refresh before running the pipeline")
	flag.Parse()

	if *sector == "" {
		fmt.Fprintln(os.Stderr, "usage: flow-report -sector <name> [-config config.yaml] [-refresh]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Error("Failed to initialize logger", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer infrastructure.CloseLogFile()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store := fetch.NewSnapshotStore(cfg.Paths.DataDir, logger)
	fetcher := fetch.NewFetcher(cfg.Fetch, store, logger)
	loader := dataset.NewLoader(cfg.Paths.DataDir, logger)

	stages := operations.DefaultStages(fetcher, store, loader, logger)
	manager := operations.NewManager(cfg, stages, nil, logger)

	logger.InfoContext(ctx, "running pipeline", slog.String("sector", *sector))
	state, err := manager.Execute(ctx, operations.OperationRequest{
		Sector:      *sector,
		RefreshData: *refresh,
	})
	if err != nil {
		logger.Error("Pipeline failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if state.Report == nil {
		logger.Error("Pipeline produced no report", slog.String("operation", state.ID))
		os.Exit(1)
	}

	reportExporter := exporter.NewReportExporter(cfg.Paths.ReportDir, logger)
	dir, err := reportExporter.Export(state.Report)
	if err != nil {
		logger.Error("Export failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Report written",
		slog.String("sector", *sector),
		slog.String("dir", dir),
		slog.Int("trading_days", state.Report.TradingDays))
}
