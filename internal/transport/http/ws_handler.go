package http

import (
	"log/slog"
	"net/http"

	gorilla "github.com/gorilla/websocket"

	"vnflow/internal/config"
	"vnflow/internal/websocket"
)

// WSHandler upgrades HTTP connections and attaches them to the hub.
type WSHandler struct {
	hub      *websocket.Hub
	upgrader gorilla.Upgrader
	logger   *slog.Logger
}

// NewWSHandler creates a websocket handler over the hub.
func NewWSHandler(hub *websocket.Hub, cfg config.WebSocketConfig, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		hub: hub,
		upgrader: gorilla.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			// the dashboard is served from the same origin
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger.With(slog.String("handler", "websocket")),
	}
}

// ServeHTTP handles GET /ws.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response
		h.logger.ErrorContext(r.Context(), "websocket upgrade failed",
			slog.String("error", err.Error()),
			slog.String("remote_addr", r.RemoteAddr))
		return
	}
	websocket.ServeWS(h.hub, conn)
}
