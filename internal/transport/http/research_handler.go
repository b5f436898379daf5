package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"vnflow/internal/analysis"
	apierrors "vnflow/internal/errors"
	"vnflow/internal/operations"
)

// ResearchHandler handles research run HTTP requests.
type ResearchHandler struct {
	service  ResearchService
	exporter ReportExporter
	logger   *slog.Logger
}

// NewResearchHandler creates a new research handler.
func NewResearchHandler(service ResearchService, exporter ReportExporter, logger *slog.Logger) *ResearchHandler {
	if service == nil {
		panic("service cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ResearchHandler{
		service:  service,
		exporter: exporter,
		logger:   logger.With(slog.String("handler", "research")),
	}
}

// StartRequest is the body for starting a research run.
type StartRequest struct {
	Sector      string `json:"sector"`
	RefreshData bool   `json:"refresh_data,omitempty"`
}

// Bind implements the render.Binder interface for request validation.
func (r *StartRequest) Bind(*http.Request) error {
	r.Sector = strings.TrimSpace(r.Sector)
	if r.Sector == "" {
		return apierrors.ErrValidation("sector", "sector is required")
	}
	return nil
}

// Routes returns a chi router for research endpoints.
func (h *ResearchHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Start)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/cancel", h.Cancel)
	r.Get("/{id}/report", h.Report)
	r.Post("/{id}/export", h.Export)

	return r
}

// Start handles POST /api/research.
func (h *ResearchHandler) Start(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	data := &StartRequest{}
	if err := render.Bind(r, data); err != nil {
		h.logger.ErrorContext(ctx, "failed to bind research request",
			slog.String("error", err.Error()))
		apierrors.WriteError(w, apierrors.InvalidRequestWithError(err))
		return
	}

	state, err := h.service.Start(ctx, operations.OperationRequest{
		Sector:      data.Sector,
		RefreshData: data.RefreshData,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to start research run",
			slog.String("sector", data.Sector),
			slog.String("error", err.Error()))
		var cfgErr *analysis.ConfigurationError
		if errors.As(err, &cfgErr) {
			apierrors.WriteError(w, apierrors.ErrConfiguration(err))
			return
		}
		apierrors.WriteError(w, apierrors.ErrSectorNotFound)
		return
	}

	h.logger.InfoContext(ctx, "research run started",
		slog.String("operation_id", state.ID),
		slog.String("sector", state.Sector))

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, state)
}

// List handles GET /api/research.
func (h *ResearchHandler) List(w http.ResponseWriter, r *http.Request) {
	states := h.service.List()

	// step states are enough for a listing; reports can be megabytes
	summaries := make([]*operations.OperationState, len(states))
	for i, s := range states {
		trimmed := *s
		trimmed.Report = nil
		summaries[i] = &trimmed
	}
	render.JSON(w, r, summaries)
}

// Get handles GET /api/research/{id}.
func (h *ResearchHandler) Get(w http.ResponseWriter, r *http.Request) {
	state, ok := h.service.Get(chi.URLParam(r, "id"))
	if !ok {
		apierrors.WriteError(w, apierrors.ErrOperationNotFound)
		return
	}
	trimmed := *state
	trimmed.Report = nil
	render.JSON(w, r, &trimmed)
}

// Cancel handles POST /api/research/{id}/cancel.
func (h *ResearchHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.Cancel(id); err != nil {
		if strings.Contains(err.Error(), "not found") {
			apierrors.WriteError(w, apierrors.ErrOperationNotFound)
			return
		}
		apierrors.WriteError(w, apierrors.NewWithDetails(http.StatusConflict,
			"OPERATION_NOT_RUNNING", "Operation is not running", err.Error()))
		return
	}

	h.logger.InfoContext(r.Context(), "research run cancelled",
		slog.String("operation_id", id))
	render.JSON(w, r, map[string]string{"id": id, "status": "cancelling"})
}

// Report handles GET /api/research/{id}/report.
func (h *ResearchHandler) Report(w http.ResponseWriter, r *http.Request) {
	state, ok := h.service.Get(chi.URLParam(r, "id"))
	if !ok {
		apierrors.WriteError(w, apierrors.ErrOperationNotFound)
		return
	}
	if state.Report == nil {
		apierrors.WriteError(w, apierrors.NewWithDetails(http.StatusConflict,
			"REPORT_NOT_READY", "Report is not ready", string(state.Status)))
		return
	}
	render.JSON(w, r, state.Report)
}

// Export handles POST /api/research/{id}/export.
func (h *ResearchHandler) Export(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		apierrors.WriteError(w, apierrors.ErrServiceUnavailable)
		return
	}
	state, ok := h.service.Get(chi.URLParam(r, "id"))
	if !ok {
		apierrors.WriteError(w, apierrors.ErrOperationNotFound)
		return
	}
	if state.Report == nil {
		apierrors.WriteError(w, apierrors.NewWithDetails(http.StatusConflict,
			"REPORT_NOT_READY", "Report is not ready", string(state.Status)))
		return
	}

	dir, err := h.exporter.Export(state.Report)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "report export failed",
			slog.String("operation_id", state.ID),
			slog.String("error", err.Error()))
		apierrors.WriteError(w, apierrors.ErrAnalysisExecution(err))
		return
	}

	render.JSON(w, r, map[string]string{"id": state.ID, "dir": dir})
}
