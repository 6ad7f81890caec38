package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Harshitk-cp/sketchhive/internal/health"
	"github.com/Harshitk-cp/sketchhive/internal/hub"
	"github.com/Harshitk-cp/sketchhive/internal/metrics"
	"github.com/gorilla/mux"
)

// StatsSource reports live canvas counters
type StatsSource interface {
	Stats(ctx context.Context) (hub.Stats, error)
}

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	stats     StatsSource
	checker   *health.Checker
	metrics   metrics.Collector
	websocket *WebSocketHandler
	wsPath    string
	staticDir string
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(stats StatsSource, checker *health.Checker, m metrics.Collector, ws *WebSocketHandler) *HTTPHandler {
	return &HTTPHandler{
		stats:     stats,
		checker:   checker,
		metrics:   m,
		websocket: ws,
		wsPath:    ws.config.WebSocket.Path,
		staticDir: ws.config.HTTP.StaticDir,
	}
}

// SetupRoutes sets up HTTP routes
func (h *HTTPHandler) SetupRoutes(r *mux.Router) {
	r.Handle(h.wsPath, h.websocket).Methods("GET")
	r.Handle("/health", h.checker.HTTPHandler()).Methods("GET")
	r.HandleFunc("/status", h.handleStatus).Methods("GET")
	r.Handle("/metrics", h.metrics.Handler()).Methods("GET")

	// The drawing client itself
	if h.staticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(h.staticDir))).Methods("GET")
	}
}

// handleStatus handles status check requests
func (h *HTTPHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	stats, err := h.stats.Stats(ctx)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":         "ok",
		"peers":          stats.Peers,
		"events":         stats.Events,
		"max_events":     stats.MaxEvents,
		"uptime_seconds": int64(time.Since(stats.StartedAt).Seconds()),
		"timestamp":      time.Now().UnixNano() / int64(time.Millisecond),
	})
}
