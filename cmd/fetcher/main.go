package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"vnflow/internal/config"
	"vnflow/internal/fetch"
	"vnflow/internal/infrastructure"
)

func main() {
	configFile := flag.String("config", "config.yaml", "path to configuration file")
	sector := flag.String("sector", "", "sector to refresh (default: all configured sectors)")
	force := flag.Bool("force", false, "refresh even when the stored snapshot is fresh")
	flag.Parse()

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

	var sectors []config.SectorConfig
	if *sector != "" {
		sc, ok := cfg.Sector(*sector)
		if !ok {
			logger.Error("Unknown sector", slog.String("sector", *sector))
			os.Exit(1)
		}
		sectors = append(sectors, sc)
	} else {
		sectors = cfg.Sectors
	}

	store := fetch.NewSnapshotStore(cfg.Paths.DataDir, logger)
	fetcher := fetch.NewFetcher(cfg.Fetch, store, logger)

	failed := 0
	for _, sc := range sectors {
		if *force {
			snapshot, err := fetcher.Refresh(ctx, sc)
			if err == nil {
				err = store.Write(snapshot)
			}
			if err != nil {
				logger.Error("Refresh failed",
					slog.String("sector", sc.Name),
					slog.String("error", err.Error()))
				failed++
			}
			continue
		}

		refreshed, err := fetcher.Ensure(ctx, sc)
		if err != nil {
			logger.Error("Refresh failed",
				slog.String("sector", sc.Name),
				slog.String("error", err.Error()))
			failed++
			continue
		}
		if !refreshed {
			logger.Info("Snapshot is fresh, skipping", slog.String("sector", sc.Name))
		}
	}

	if failed > 0 {
		logger.Error("Fetch completed with failures", slog.Int("failed", failed))
		os.Exit(1)
	}
	logger.Info("Fetch completed", slog.Int("sectors", len(sectors)))
}
