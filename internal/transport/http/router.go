package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/metric"

	"vnflow/internal/config"
	"vnflow/internal/infrastructure"
	"vnflow/internal/middleware"
)

// RouterDeps bundles everything the router mounts.
type RouterDeps struct {
	Config   *config.Config
	Service  ResearchService
	Exporter ReportExporter
	Store    SnapshotStore
	WSHub    *WSHandler
	Metrics  http.Handler // Prometheus scrape handler
	Meter    metric.Meter
	Logger   *slog.Logger
}

// NewRouter assembles the full HTTP surface: middleware stack, API routes,
// metrics, and the websocket endpoint.
func NewRouter(deps RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	cfg := deps.Config
	if cfg == nil {
		def := config.Default()
		cfg = &def
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.StructuredLogger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Compress(5))
	r.Use(middleware.Trace)
	r.Use(middleware.CORS(middleware.CORSConfig{AllowedOrigins: cfg.Server.AllowedOrigins}))
	if deps.Meter != nil {
		r.Use(middleware.Metrics(deps.Meter, logger))
	}
	if cfg.Server.RateLimit.Enabled {
		r.Use(middleware.NewRateLimiter(cfg.Server.RateLimit.RPS, cfg.Server.RateLimit.Burst, logger).Handler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60*time.Second, logger))

		health := NewHealthHandler(logger)
		r.Get("/health", health.HealthCheck)
		r.Get("/version", health.Version)

		r.Mount("/sectors", NewSectorHandler(cfg, deps.Store, logger).Routes())
		r.Mount("/research", NewResearchHandler(deps.Service, deps.Exporter, logger).Routes())
	})

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}
	if deps.WSHub != nil {
		r.Handle("/ws", deps.WSHub)
	}

	return r
}
