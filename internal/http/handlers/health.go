package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hongminglow/ondata-be/internal/http/respond"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler returns uptime and database reachability.
type HealthHandler struct {
	startedAt time.Time
	db        Pinger
	logger    *zap.Logger
}

type healthResponse struct {
	Status   string `json:"status"`
	Uptime   string `json:"uptime"`
	Database string `json:"database"`
}

// NewHealthHandler creates a health endpoint handler.
func NewHealthHandler(startedAt time.Time, db Pinger, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{startedAt: startedAt, db: db, logger: logger}
}

// Register wires the handler into a ServeMux.
func (h *HealthHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET "+APIPrefix+"/health", h.handle)
}

func (h *HealthHandler) handle(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:   "ok",
		Uptime:   time.Since(h.startedAt).Truncate(time.Second).String(),
		Database: "ok",
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("health: database unreachable", zap.Error(err))
		resp.Status, resp.Database = "degraded", "unreachable"
		respond.JSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	respond.JSON(w, http.StatusOK, resp)
}
