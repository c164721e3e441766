package httpapi

import (
	"context"
	"net/http"
	"time"
)

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": h.ServiceName,
	})
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.Health != nil {
		if err := h.Health.HealthCheck(ctx); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
