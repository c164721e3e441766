package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stuartshay/otel-mileage/internal/domain"
	"github.com/stuartshay/otel-mileage/internal/queue"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func (h *Handler) createExport(w http.ResponseWriter, r *http.Request) {
	var params queue.JobParams
	if err := decodeJSON(r, &params); err != nil {
		writeError(w, r, err)
		return
	}

	req, err := h.Validator.ParseRequest(params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	params.Format = string(req.Format)
	if params.EndDate == "" {
		params.EndDate = params.StartDate
	}

	jobID, err := h.Exports.Enqueue(params)
	if err != nil {
		writeError(w, r, err)
		return
	}

	job, err := h.Exports.GetJob(jobID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	respondJSON(w, http.StatusAccepted, job)
}

func (h *Handler) getExport(w http.ResponseWriter, r *http.Request) {
	job, err := h.Exports.GetJob(chi.URLParam(r, "jobId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

func (h *Handler) listExports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := intParam(q.Get("limit"), "limit", defaultListLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	offset, err := intParam(q.Get("offset"), "offset", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := queue.JobStatus(q.Get("status"))
	switch status {
	case "", queue.StatusQueued, queue.StatusProcessing, queue.StatusCompleted, queue.StatusFailed:
	default:
		writeError(w, r, domain.ValidationError{Field: "status", Msg: "must be queued, processing, completed or failed"})
		return
	}

	jobs := h.Exports.ListJobs(status, limit, offset)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":       jobs,
		"limit":      limit,
		"offset":     offset,
		"totalCount": len(jobs),
	})
}

func (h *Handler) exportStats(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, h.Exports.GetStats())
}

func intParam(value, field string, fallback int) (int, error) {
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, domain.ValidationError{Field: field, Msg: "must be a non-negative integer"}
	}
	return n, nil
}
