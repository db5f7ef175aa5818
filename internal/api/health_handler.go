package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ginzlabs/tg-ai-agent/internal/api/shared"
)

// Pinger checks connectivity to a backing dependency.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler serves readiness checks.
type HealthHandler struct {
	db Pinger
}

// NewHealthHandler creates a HealthHandler. db may be nil when no database
// is wired (the bot service).
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
}

// Health handles GET /api/v1/health requests.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			resp.Status = "degraded"
			resp.Database = "unreachable"
			shared.RespondWithJSON(w, r, http.StatusServiceUnavailable, resp)
			return
		}
		resp.Database = "ok"
	}

	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}
