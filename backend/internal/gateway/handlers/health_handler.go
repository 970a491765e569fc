package handlers

import (
	"context"
	"net/http"
	"time"

	"student_records/backend/internal/gateway/util"
)

// HealthHandler reports database reachability.
type HealthHandler struct {
	Ping func(ctx context.Context) error
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Ping(ctx); err != nil {
		util.WriteJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"success":  false,
			"status":   "unhealthy",
			"database": "unreachable",
		})
		return
	}

	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"status":   "ok",
		"database": "connected",
	})
}
