package httpapi

import (
	"net/http"
	"time"

	"github.com/stuartshay/otel-mileage/internal/domain"
	"github.com/stuartshay/otel-mileage/internal/performance"
)

func (h *Handler) completeVisit(w http.ResponseWriter, r *http.Request) {
	var body performance.VisitCompletion
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	stat, err := h.Visits.RecordVisit(r.Context(), body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, stat)
}

func (h *Handler) getAnalytics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	report, err := h.Analytics.Report(r.Context(), q.Get("timeRange"), q.Get("staffId"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, report)
}

func (h *Handler) listDailyStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	start, err := h.parseDate("startDate", q.Get("startDate"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	end, err := h.parseDate("endDate", q.Get("endDate"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	rows, err := h.Analytics.GetRange(r.Context(), start, end, q.Get("staffId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rows == nil {
		rows = []domain.DailyStat{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"stats": rows,
		"count": len(rows),
	})
}

func (h *Handler) parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, domain.ValidationError{Field: field, Msg: "is required"}
	}
	t, err := time.ParseInLocation(domain.DateLayout, value, h.Location)
	if err != nil {
		return time.Time{}, domain.ValidationError{Field: field, Msg: "must be YYYY-MM-DD"}
	}
	return t, nil
}
