// Package trips manages the lifecycle of a staff member's driving session:
// start, route point capture and end, where the driven distance is computed
// and handed to the performance aggregator.
package trips

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stuartshay/otel-mileage/internal/calculator"
	"github.com/stuartshay/otel-mileage/internal/domain"
)

var tracer = otel.Tracer("github.com/stuartshay/otel-mileage/internal/trips")

// Live feed event types
const (
	EventTripStarted = "trip_started"
	EventRoutePoint  = "route_point"
	EventTripEnded   = "trip_ended"
)

// Store is the trip persistence the tracker needs
type Store interface {
	GetStaff(ctx context.Context, staffID string) (domain.Staff, error)
	CreateTrip(ctx context.Context, trip domain.Trip) error
	GetTrip(ctx context.Context, tripID string) (domain.Trip, error)
	GetActiveTripForStaff(ctx context.Context, staffID string) (domain.Trip, error)
	AppendRoutePoint(ctx context.Context, tripID string, point calculator.RoutePoint) (int, error)
	CompleteTrip(ctx context.Context, p domain.TripCompletion) error
}

// Recorder folds a completed trip into the daily rollup
type Recorder interface {
	RecordActivity(ctx context.Context, a domain.Activity) (domain.DailyStat, error)
}

// Notifier receives lifecycle events for the live feed
type Notifier interface {
	Publish(eventType, staffID string, data interface{})
}

// Service is the trip lifecycle tracker
type Service struct {
	store       Store
	recorder    Recorder
	notifier    Notifier
	defaultRate float64
	now         func() time.Time
}

// Option customizes a Service
type Option func(*Service)

// WithClock replaces the wall clock, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithNotifier publishes lifecycle events to n
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// NewService creates a trip tracker
func NewService(store Store, recorder Recorder, defaultRate float64, opts ...Option) *Service {
	s := &Service{
		store:       store,
		recorder:    recorder,
		defaultRate: defaultRate,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartTripRequest opens a trip at the given location
type StartTripRequest struct {
	StaffID  string          `json:"staffId"`
	Location domain.Location `json:"location"`
}

// StartTrip opens a new active trip. A staff member with a trip already in
// progress gets a ConflictError.
func (s *Service) StartTrip(ctx context.Context, req StartTripRequest) (domain.Trip, error) {
	ctx, span := tracer.Start(ctx, "trips.StartTrip", trace.WithAttributes(
		attribute.String("staff.id", req.StaffID),
	))
	defer span.End()

	if req.StaffID == "" {
		return domain.Trip{}, domain.ValidationError{Field: "staffId", Msg: "is required"}
	}
	if err := validateLocation(req.Location); err != nil {
		return domain.Trip{}, err
	}

	if _, err := s.store.GetStaff(ctx, req.StaffID); err != nil {
		return domain.Trip{}, fail(span, err)
	}

	active, err := s.store.GetActiveTripForStaff(ctx, req.StaffID)
	switch {
	case err == nil:
		return domain.Trip{}, domain.ConflictError{
			Resource: "trip",
			Msg:      fmt.Sprintf("staff %s already has active trip %s", req.StaffID, active.ID),
		}
	case !domain.IsNotFound(err):
		return domain.Trip{}, fail(span, err)
	}

	trip := domain.Trip{
		ID:            uuid.New().String(),
		StaffID:       req.StaffID,
		Status:        domain.TripActive,
		StartTime:     s.now().UTC(),
		StartLocation: req.Location,
		RoutePoints:   []calculator.RoutePoint{},
	}

	if err := s.store.CreateTrip(ctx, trip); err != nil {
		return domain.Trip{}, fail(span, err)
	}

	span.SetAttributes(attribute.String("trip.id", trip.ID))
	log.Info().
		Str("trip_id", trip.ID).
		Str("staff_id", trip.StaffID).
		Float64("latitude", trip.StartLocation.Latitude).
		Float64("longitude", trip.StartLocation.Longitude).
		Msg("Trip started")

	s.publish(EventTripStarted, trip.StaffID, trip)
	return trip, nil
}

// RoutePointRequest is one GPS fix captured while driving
type RoutePointRequest struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

// RoutePointEvent is published for every accepted fix
type RoutePointEvent struct {
	TripID    string                `json:"tripId"`
	Point     calculator.RoutePoint `json:"point"`
	NumPoints int                   `json:"numPoints"`
}

// AppendRoutePoint adds a fix to an active trip and returns the new point count
func (s *Service) AppendRoutePoint(ctx context.Context, tripID string, req RoutePointRequest) (int, error) {
	ctx, span := tracer.Start(ctx, "trips.AppendRoutePoint", trace.WithAttributes(
		attribute.String("trip.id", tripID),
	))
	defer span.End()

	if tripID == "" {
		return 0, domain.ValidationError{Field: "tripId", Msg: "is required"}
	}
	if !calculator.ValidCoordinate(req.Latitude, req.Longitude) {
		return 0, domain.ValidationError{
			Field: "point",
			Msg:   fmt.Sprintf("invalid coordinate (%v, %v)", req.Latitude, req.Longitude),
		}
	}

	trip, err := s.store.GetTrip(ctx, tripID)
	if err != nil {
		return 0, fail(span, err)
	}
	if !trip.Active() {
		return 0, domain.ConflictError{Resource: "trip", Msg: fmt.Sprintf("trip %s is %s", trip.ID, trip.Status)}
	}

	point := calculator.RoutePoint{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Timestamp: req.Timestamp,
	}
	if point.Timestamp.IsZero() {
		point.Timestamp = s.now().UTC()
	}

	// the store re-checks the status, so a trip ended in between is still rejected
	count, err := s.store.AppendRoutePoint(ctx, tripID, point)
	if err != nil {
		return 0, fail(span, err)
	}

	log.Debug().
		Str("trip_id", tripID).
		Int("num_points", count).
		Msg("Route point appended")

	s.publish(EventRoutePoint, trip.StaffID, RoutePointEvent{TripID: tripID, Point: point, NumPoints: count})
	return count, nil
}

// EndTripRequest closes a trip. TripID wins over StaffID when both are set;
// with only StaffID the staff member's active trip is ended. Location may be
// nil when the end position is unknown.
type EndTripRequest struct {
	TripID   string           `json:"tripId"`
	StaffID  string           `json:"staffId"`
	Location *domain.Location `json:"location,omitempty"`
}

// EndTripResult summarizes a completed trip
type EndTripResult struct {
	TripID         string  `json:"tripId"`
	StaffID        string  `json:"staffId"`
	TotalDriveTime int     `json:"totalDriveTime"`
	TotalDistance  float64 `json:"totalDistance"`
	CostPerMile    float64 `json:"costPerMile"`
	TotalCost      float64 `json:"totalCost"`
}

// EndTrip completes an active trip, computes its distance and drive time, and
// records both against the staff member's daily stats
func (s *Service) EndTrip(ctx context.Context, req EndTripRequest) (EndTripResult, error) {
	ctx, span := tracer.Start(ctx, "trips.EndTrip")
	defer span.End()

	if req.TripID == "" && req.StaffID == "" {
		return EndTripResult{}, domain.ValidationError{Msg: "tripId or staffId is required"}
	}
	if req.Location != nil {
		if err := validateLocation(*req.Location); err != nil {
			return EndTripResult{}, err
		}
	}

	trip, err := s.resolveActiveTrip(ctx, req)
	if err != nil {
		return EndTripResult{}, fail(span, err)
	}
	span.SetAttributes(
		attribute.String("trip.id", trip.ID),
		attribute.String("staff.id", trip.StaffID),
	)

	staff, err := s.store.GetStaff(ctx, trip.StaffID)
	if err != nil {
		return EndTripResult{}, fail(span, err)
	}

	endTime := s.now().UTC()
	start := trip.StartLocation.Point()
	var end *calculator.Point
	if req.Location != nil {
		p := req.Location.Point()
		end = &p
	}
	distance := calculator.Round2(calculator.TripDistance(trip.RoutePoints, &start, end))
	driveMinutes := calculator.DriveMinutes(trip.StartTime, endTime)

	err = s.store.CompleteTrip(ctx, domain.TripCompletion{
		TripID:         trip.ID,
		EndTime:        endTime,
		EndLocation:    req.Location,
		TotalDistance:  distance,
		TotalDriveTime: driveMinutes,
	})
	if err != nil {
		return EndTripResult{}, fail(span, err)
	}

	rate := staff.Rate(s.defaultRate)
	result := EndTripResult{
		TripID:         trip.ID,
		StaffID:        trip.StaffID,
		TotalDriveTime: driveMinutes,
		TotalDistance:  distance,
		CostPerMile:    rate,
		TotalCost:      calculator.Cost(distance, rate),
	}

	log.Info().
		Str("trip_id", trip.ID).
		Str("staff_id", trip.StaffID).
		Int("route_points", len(trip.RoutePoints)).
		Float64("distance_miles", distance).
		Int("drive_minutes", driveMinutes).
		Float64("cost", result.TotalCost).
		Msg("Trip completed")

	// The trip stays completed even if the rollup fails; the caller sees the error.
	_, err = s.recorder.RecordActivity(ctx, domain.Activity{
		EventID:      TripEventID(trip.ID),
		StaffID:      trip.StaffID,
		Date:         endTime,
		DriveMinutes: driveMinutes,
		Miles:        distance,
	})
	if err != nil {
		log.Error().Err(err).
			Str("trip_id", trip.ID).
			Msg("Failed to record trip in daily stats")
		return EndTripResult{}, fail(span, fmt.Errorf("record trip %s in daily stats: %w", trip.ID, err))
	}

	s.publish(EventTripEnded, trip.StaffID, result)
	return result, nil
}

// GetTrip returns a trip by ID
func (s *Service) GetTrip(ctx context.Context, tripID string) (domain.Trip, error) {
	if tripID == "" {
		return domain.Trip{}, domain.ValidationError{Field: "tripId", Msg: "is required"}
	}
	return s.store.GetTrip(ctx, tripID)
}

// TripEventID is the activity ledger key of a trip completion
func TripEventID(tripID string) string {
	return "trip:" + tripID
}

func (s *Service) resolveActiveTrip(ctx context.Context, req EndTripRequest) (domain.Trip, error) {
	if req.TripID == "" {
		return s.store.GetActiveTripForStaff(ctx, req.StaffID)
	}

	trip, err := s.store.GetTrip(ctx, req.TripID)
	if err != nil {
		return domain.Trip{}, err
	}
	if !trip.Active() {
		return domain.Trip{}, domain.NotFoundError{Resource: "active trip", ID: req.TripID}
	}
	return trip, nil
}

func (s *Service) publish(eventType, staffID string, data interface{}) {
	if s.notifier != nil {
		s.notifier.Publish(eventType, staffID, data)
	}
}

func validateLocation(l domain.Location) error {
	if !calculator.ValidCoordinate(l.Latitude, l.Longitude) {
		return domain.ValidationError{
			Field: "location",
			Msg:   fmt.Sprintf("invalid coordinate (%v, %v)", l.Latitude, l.Longitude),
		}
	}
	return nil
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
