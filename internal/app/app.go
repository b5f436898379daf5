package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vnflow/internal/config"
	"vnflow/internal/dataset"
	"vnflow/internal/exporter"
	"vnflow/internal/fetch"
	"vnflow/internal/infrastructure"
	"vnflow/internal/operations"
	transporthttp "vnflow/internal/transport/http"
	"vnflow/internal/websocket"
)

// Application holds all wired components of the research server.
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Hub           *websocket.Hub
	Store         *fetch.SnapshotStore
	Fetcher       *fetch.Fetcher
	Loader        *dataset.Loader
	Exporter      *exporter.ReportExporter
	Manager       *operations.Manager
	Router        http.Handler
	Server        *http.Server
}

// New builds a fully wired Application from the given configuration.
// Components are initialized in dependency order: logging and telemetry
// first, then storage and analysis services, then the HTTP layer.
func New(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		def := config.Default()
		cfg = &def
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	providers, err := infrastructure.InitializeOTel(logger, cfg.Logging.Level == "debug")
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry: %w", err)
	}

	if err := ensureDirectories(cfg); err != nil {
		return nil, err
	}

	hub := websocket.NewHub(logger)

	store := fetch.NewSnapshotStore(cfg.Paths.DataDir, logger)
	fetcher := fetch.NewFetcher(cfg.Fetch, store, logger)
	loader := dataset.NewLoader(cfg.Paths.DataDir, logger)
	reportExporter := exporter.NewReportExporter(cfg.Paths.ReportDir, logger)

	stages := operations.DefaultStages(fetcher, store, loader, logger)
	manager := operations.NewManager(cfg, stages, hub, logger)

	router := transporthttp.NewRouter(transporthttp.RouterDeps{
		Config:   cfg,
		Service:  manager,
		Exporter: reportExporter,
		Store:    store,
		WSHub:    transporthttp.NewWSHandler(hub, cfg.WebSocket, logger),
		Metrics:  providers.PrometheusHTTP,
		Meter:    providers.Meter,
		Logger:   logger,
	})

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: providers,
		Hub:           hub,
		Store:         store,
		Fetcher:       fetcher,
		Loader:        loader,
		Exporter:      reportExporter,
		Manager:       manager,
		Router:        router,
	}
	app.Server = app.createServer()

	return app, nil
}

func ensureDirectories(cfg *config.Config) error {
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.ReportDir, cfg.Paths.LogsDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func (a *Application) createServer() *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Start launches the websocket hub and the HTTP server. The server runs
// in a background goroutine; a listen failure cancels the given context.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) {
	a.Hub.Start()

	a.Logger.InfoContext(ctx, "server starting",
		slog.String("addr", a.Server.Addr),
		slog.String("version", infrastructure.ServiceVersion))

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Error("server error", slog.String("error", err.Error()))
			cancel()
		}
	}()
}

// Stop shuts the application down gracefully: drain in-flight HTTP
// requests, stop the websocket hub, then flush telemetry and logs.
func (a *Application) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	a.Logger.InfoContext(shutdownCtx, "server stopping")

	var firstErr error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("server shutdown error", slog.String("error", err.Error()))
		firstErr = err
	}

	a.Hub.Stop()

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn("telemetry shutdown error", slog.String("error", err.Error()))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	infrastructure.CloseLogFile()
	return firstErr
}

// Run starts the application and blocks until an interrupt signal is
// received or the server fails, then performs a graceful shutdown.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.Start(ctx, cancel)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		a.Logger.Info("signal received", slog.String("signal", sig.String()))
	case <-ctx.Done():
		a.Logger.Info("context cancelled")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout+5*time.Second)
	defer stopCancel()
	return a.Stop(stopCtx)
}
