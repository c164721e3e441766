// Package httpapi exposes the trip tracker, visit recording, analytics and
// export queue as a JSON HTTP API.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/stuartshay/otel-mileage/internal/analytics"
	"github.com/stuartshay/otel-mileage/internal/domain"
	"github.com/stuartshay/otel-mileage/internal/export"
	"github.com/stuartshay/otel-mileage/internal/performance"
	"github.com/stuartshay/otel-mileage/internal/queue"
	"github.com/stuartshay/otel-mileage/internal/trips"
)

// TripService is the trip lifecycle tracker
type TripService interface {
	StartTrip(ctx context.Context, req trips.StartTripRequest) (domain.Trip, error)
	AppendRoutePoint(ctx context.Context, tripID string, req trips.RoutePointRequest) (int, error)
	EndTrip(ctx context.Context, req trips.EndTripRequest) (trips.EndTripResult, error)
	GetTrip(ctx context.Context, tripID string) (domain.Trip, error)
}

// VisitRecorder folds completed visits into the daily stats
type VisitRecorder interface {
	RecordVisit(ctx context.Context, v performance.VisitCompletion) (domain.DailyStat, error)
}

// Reporter serves analytics over the daily stats
type Reporter interface {
	Report(ctx context.Context, timeRange, staffID string) (*analytics.Report, error)
	GetRange(ctx context.Context, start, end time.Time, staffID string) ([]domain.DailyStat, error)
}

// ExportQueue holds background export jobs
type ExportQueue interface {
	Enqueue(params queue.JobParams) (string, error)
	GetJob(jobID string) (*queue.Job, error)
	ListJobs(status queue.JobStatus, limit, offset int) []*queue.Job
	GetStats() queue.Stats
}

// ExportValidator checks export parameters before they are queued
type ExportValidator interface {
	ParseRequest(p queue.JobParams) (export.Request, error)
}

// HealthChecker reports backing store readiness
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler serves the API
type Handler struct {
	ServiceName string
	Trips       TripService
	Visits      VisitRecorder
	Analytics   Reporter
	Exports     ExportQueue
	Validator   ExportValidator
	Health      HealthChecker
	Live        http.HandlerFunc
	Location    *time.Location
}

// Routes builds the router with the standard middleware stack
func (h *Handler) Routes(allowedOrigins []string) http.Handler {
	if h.Location == nil {
		h.Location = time.UTC
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)

	if h.Live != nil {
		r.Get("/ws", h.Live)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(otelhttp.NewMiddleware(h.ServiceName))

		r.Post("/trips/start", h.startTrip)
		r.Post("/trips/end", h.endTrip)
		r.Get("/trips/{tripId}", h.getTrip)
		r.Post("/trips/{tripId}/points", h.appendRoutePoint)

		r.Post("/visits/complete", h.completeVisit)

		r.Get("/analytics", h.getAnalytics)
		r.Get("/stats/daily", h.listDailyStats)

		r.Post("/exports", h.createExport)
		r.Get("/exports", h.listExports)
		r.Get("/exports/stats", h.exportStats)
		r.Get("/exports/{jobId}", h.getExport)
	})

	return r
}
