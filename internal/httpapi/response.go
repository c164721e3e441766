package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/stuartshay/otel-mileage/internal/domain"
	"github.com/stuartshay/otel-mileage/internal/queue"
)

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// writeError maps the domain error taxonomy onto HTTP status codes. Anything
// unrecognised is logged and reported as a generic failure.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case domain.IsValidation(err):
		respondError(w, http.StatusBadRequest, err.Error())
	case domain.IsNotFound(err):
		respondError(w, http.StatusNotFound, err.Error())
	case domain.IsConflict(err):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, queue.ErrQueueFull):
		respondError(w, http.StatusServiceUnavailable, "export queue is full, retry later")
	default:
		log.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Request failed")
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON reads a JSON body into v, reporting malformed input as a
// validation error
func decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return domain.ValidationError{Msg: "request body is required"}
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.ValidationError{Msg: "invalid JSON body: " + err.Error()}
	}
	return nil
}
