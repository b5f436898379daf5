package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"vnflow/internal/config"
	apierrors "vnflow/internal/errors"
)

// SectorHandler serves the configured research universes and the freshness
// of their stored snapshots.
type SectorHandler struct {
	cfg    *config.Config
	store  SnapshotStore
	logger *slog.Logger
}

// NewSectorHandler creates a new sector handler.
func NewSectorHandler(cfg *config.Config, store SnapshotStore, logger *slog.Logger) *SectorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SectorHandler{
		cfg:    cfg,
		store:  store,
		logger: logger.With(slog.String("handler", "sectors")),
	}
}

// SectorSummary is one configured sector with its snapshot state.
type SectorSummary struct {
	Name        string   `json:"name"`
	Tickers     []string `json:"tickers"`
	HasSnapshot bool     `json:"has_snapshot"`
	AgeSeconds  float64  `json:"age_seconds,omitempty"`
	Stale       bool     `json:"stale"`
}

// Routes returns a chi router for sector endpoints.
func (h *SectorHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/{name}", h.Get)
	return r
}

// List handles GET /api/sectors.
func (h *SectorHandler) List(w http.ResponseWriter, r *http.Request) {
	out := make([]SectorSummary, 0, len(h.cfg.Sectors))
	for _, sector := range h.cfg.Sectors {
		out = append(out, h.summarize(sector))
	}
	render.JSON(w, r, out)
}

// Get handles GET /api/sectors/{name}.
func (h *SectorHandler) Get(w http.ResponseWriter, r *http.Request) {
	sector, ok := h.cfg.Sector(chi.URLParam(r, "name"))
	if !ok {
		apierrors.WriteError(w, apierrors.ErrSectorNotFound)
		return
	}
	render.JSON(w, r, h.summarize(sector))
}

func (h *SectorHandler) summarize(sector config.SectorConfig) SectorSummary {
	s := SectorSummary{
		Name:    sector.Name,
		Tickers: sector.Tickers,
		Stale:   true,
	}
	if h.store == nil {
		return s
	}
	if age, ok := h.store.Age(sector.Name); ok {
		s.HasSnapshot = true
		s.AgeSeconds = age.Seconds()
		s.Stale = h.store.IsStale(sector.Name, h.maxAge())
	}
	return s
}

func (h *SectorHandler) maxAge() time.Duration {
	return h.cfg.Fetch.SnapshotMaxAge
}
