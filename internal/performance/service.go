// Package performance folds completed trips and patient visits into the
// per-staff daily rollups. Each delta is applied exactly once: the store
// records the event id and rejects a replay as a conflict.
package performance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/stuartshay/otel-mileage/internal/domain"
)

var tracer = otel.Tracer("github.com/stuartshay/otel-mileage/internal/performance")

// Store is the persistence the aggregator needs
type Store interface {
	GetStaff(ctx context.Context, staffID string) (domain.Staff, error)
	ApplyActivity(ctx context.Context, a domain.Activity, costPerMile float64) (domain.DailyStat, error)
}

// Notifier receives rollup changes for the live feed
type Notifier interface {
	Publish(eventType, staffID string, data interface{})
}

// EventStatsUpdated is published after every applied delta
const EventStatsUpdated = "stats_updated"

// Service applies activity deltas to daily stats
type Service struct {
	store       Store
	notifier    Notifier
	defaultRate float64
	loc         *time.Location
}

// NewService creates an aggregator. notifier may be nil.
func NewService(store Store, notifier Notifier, defaultRate float64, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		store:       store,
		notifier:    notifier,
		defaultRate: defaultRate,
		loc:         loc,
	}
}

// RecordActivity adds the delta to the staff member's rollup for a.Date and
// returns the updated row
func (s *Service) RecordActivity(ctx context.Context, a domain.Activity) (domain.DailyStat, error) {
	ctx, span := tracer.Start(ctx, "performance.RecordActivity")
	defer span.End()

	if err := validateActivity(a); err != nil {
		return domain.DailyStat{}, err
	}
	if a.EventID == "" {
		a.EventID = uuid.New().String()
	}
	a.Date = s.Day(a.Date)

	span.SetAttributes(
		attribute.String("staff.id", a.StaffID),
		attribute.String("event.id", a.EventID),
		attribute.String("stat.date", a.Date.Format(domain.DateLayout)),
	)

	staff, err := s.store.GetStaff(ctx, a.StaffID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "staff lookup failed")
		return domain.DailyStat{}, err
	}

	stat, err := s.store.ApplyActivity(ctx, a, staff.Rate(s.defaultRate))
	if err != nil {
		if domain.IsConflict(err) {
			log.Warn().
				Str("event_id", a.EventID).
				Str("staff_id", a.StaffID).
				Msg("Activity already applied")
		} else {
			log.Error().Err(err).
				Str("event_id", a.EventID).
				Str("staff_id", a.StaffID).
				Msg("Failed to apply activity")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply activity failed")
		return domain.DailyStat{}, err
	}

	log.Info().
		Str("event_id", a.EventID).
		Str("staff_id", stat.StaffID).
		Str("date", stat.DateKey()).
		Float64("total_miles", stat.TotalMiles).
		Int("total_visits", stat.TotalVisits).
		Int("efficiency", stat.EfficiencyScore).
		Msg("Daily stats updated")

	if s.notifier != nil {
		s.notifier.Publish(EventStatsUpdated, stat.StaffID, stat)
	}

	return stat, nil
}

// VisitCompletion reports a finished patient visit
type VisitCompletion struct {
	VisitID         string    `json:"visitId"`
	StaffID         string    `json:"staffId"`
	DurationMinutes int       `json:"durationMinutes"`
	CompletedAt     time.Time `json:"completedAt"`
}

// RecordVisit adds one visit and its duration to the day it was completed on
func (s *Service) RecordVisit(ctx context.Context, v VisitCompletion) (domain.DailyStat, error) {
	if v.VisitID == "" {
		return domain.DailyStat{}, domain.ValidationError{Field: "visitId", Msg: "is required"}
	}
	if v.CompletedAt.IsZero() {
		v.CompletedAt = time.Now()
	}

	return s.RecordActivity(ctx, domain.Activity{
		EventID:      "visit:" + v.VisitID,
		StaffID:      v.StaffID,
		Date:         v.CompletedAt,
		VisitMinutes: v.DurationMinutes,
		Visits:       1,
	})
}

// Day truncates t to midnight of its calendar day in the service time zone
func (s *Service) Day(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	local := t.In(s.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
}

func validateActivity(a domain.Activity) error {
	switch {
	case a.StaffID == "":
		return domain.ValidationError{Field: "staffId", Msg: "is required"}
	case a.DriveMinutes < 0:
		return domain.ValidationError{Field: "driveMinutes", Msg: fmt.Sprintf("must not be negative, got %d", a.DriveMinutes)}
	case a.Miles < 0:
		return domain.ValidationError{Field: "miles", Msg: fmt.Sprintf("must not be negative, got %.2f", a.Miles)}
	case a.VisitMinutes < 0:
		return domain.ValidationError{Field: "durationMinutes", Msg: fmt.Sprintf("must not be negative, got %d", a.VisitMinutes)}
	case a.Visits < 0:
		return domain.ValidationError{Field: "visits", Msg: fmt.Sprintf("must not be negative, got %d", a.Visits)}
	}
	return nil
}
