package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stuartshay/otel-mileage/internal/domain"
	"github.com/stuartshay/otel-mileage/internal/trips"
)

type positionBody struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Address   string   `json:"address"`
}

func (p positionBody) location() (domain.Location, error) {
	if p.Latitude == nil || p.Longitude == nil {
		return domain.Location{}, domain.ValidationError{Field: "latitude/longitude", Msg: "are required"}
	}
	return domain.Location{Latitude: *p.Latitude, Longitude: *p.Longitude, Address: p.Address}, nil
}

// optionalLocation is nil when no coordinates were sent at all
func (p positionBody) optionalLocation() (*domain.Location, error) {
	if p.Latitude == nil && p.Longitude == nil {
		return nil, nil
	}
	loc, err := p.location()
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

type startTripBody struct {
	StaffID string `json:"staffId"`
	positionBody
}

type startTripResponse struct {
	TripID    string    `json:"tripId"`
	StartTime time.Time `json:"startTime"`
}

func (h *Handler) startTrip(w http.ResponseWriter, r *http.Request) {
	var body startTripBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	loc, err := body.location()
	if err != nil {
		writeError(w, r, err)
		return
	}

	trip, err := h.Trips.StartTrip(r.Context(), trips.StartTripRequest{StaffID: body.StaffID, Location: loc})
	if err != nil {
		writeError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, startTripResponse{TripID: trip.ID, StartTime: trip.StartTime})
}

type endTripBody struct {
	TripID  string `json:"tripId"`
	StaffID string `json:"staffId"`
	positionBody
}

func (h *Handler) endTrip(w http.ResponseWriter, r *http.Request) {
	var body endTripBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	loc, err := body.optionalLocation()
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.Trips.EndTrip(r.Context(), trips.EndTripRequest{
		TripID:   body.TripID,
		StaffID:  body.StaffID,
		Location: loc,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) getTrip(w http.ResponseWriter, r *http.Request) {
	trip, err := h.Trips.GetTrip(r.Context(), chi.URLParam(r, "tripId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, trip)
}

type routePointBody struct {
	positionBody
	Timestamp time.Time `json:"timestamp"`
}

func (h *Handler) appendRoutePoint(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "tripId")

	var body routePointBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	loc, err := body.location()
	if err != nil {
		writeError(w, r, err)
		return
	}

	count, err := h.Trips.AppendRoutePoint(r.Context(), tripID, trips.RoutePointRequest{
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Timestamp: body.Timestamp,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tripId":      tripID,
		"routePoints": count,
	})
}
