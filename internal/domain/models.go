// Package domain holds the records shared by the trip tracker, the performance
// aggregator and the analytics reporter, together with the error taxonomy they
// surface to callers.
package domain

import (
	"time"

	"github.com/stuartshay/otel-mileage/internal/calculator"
)

// TripStatus is the lifecycle state of a trip
type TripStatus string

// A trip moves from active to completed exactly once
const (
	TripActive    TripStatus = "active"
	TripCompleted TripStatus = "completed"
)

// PeriodDay is the only rollup period persisted
const PeriodDay = "day"

// DateLayout is the calendar day format used in keys and query parameters
const DateLayout = "2006-01-02"

// Staff is an agency employee who drives between patient visits
type Staff struct {
	ID          string  `json:"id" db:"id"`
	Name        string  `json:"name" db:"name"`
	Role        string  `json:"role" db:"role"`
	Active      bool    `json:"active" db:"active"`
	CostPerMile float64 `json:"costPerMile" db:"cost_per_mile"`
}

// Rate returns the staff member's mileage rate, or fallback when unset
func (s Staff) Rate(fallback float64) float64 {
	return calculator.EffectiveRate(s.CostPerMile, fallback)
}

// Location is a GPS position with an optional street address
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// Point drops the address
func (l Location) Point() calculator.Point {
	return calculator.Point{Latitude: l.Latitude, Longitude: l.Longitude}
}

// Trip is one driving session of a staff member
type Trip struct {
	ID             string                  `json:"id"`
	StaffID        string                  `json:"staffId"`
	Status         TripStatus              `json:"status"`
	StartTime      time.Time               `json:"startTime"`
	EndTime        *time.Time              `json:"endTime,omitempty"`
	StartLocation  Location                `json:"startLocation"`
	EndLocation    *Location               `json:"endLocation,omitempty"`
	RoutePoints    []calculator.RoutePoint `json:"routePoints"`
	TotalDistance  float64                 `json:"totalDistance"`
	TotalDriveTime int                     `json:"totalDriveTime"`
}

// Active reports whether the trip can still take route points
func (t Trip) Active() bool {
	return t.Status == TripActive
}

// TripCompletion holds the fields written when a trip ends. EndLocation is nil
// when the end position is unknown.
type TripCompletion struct {
	TripID         string
	EndTime        time.Time
	EndLocation    *Location
	TotalDistance  float64
	TotalDriveTime int
}

// DailyStat is the per-staff, per-day rollup of driving and visit activity
type DailyStat struct {
	ID               int64     `json:"id" db:"id"`
	StaffID          string    `json:"staffId" db:"staff_id"`
	Date             time.Time `json:"date" db:"stat_date"`
	Period           string    `json:"period" db:"period"`
	TotalDriveTime   int       `json:"totalDriveTime" db:"total_drive_time"`
	TotalVisits      int       `json:"totalVisits" db:"total_visits"`
	TotalMiles       float64   `json:"totalMiles" db:"total_miles"`
	TotalVisitTime   int       `json:"totalVisitTime" db:"total_visit_time"`
	TotalCost        float64   `json:"totalCost" db:"total_cost"`
	CostPerMile      float64   `json:"costPerMile" db:"cost_per_mile"`
	AvgVisitDuration float64   `json:"avgVisitDuration" db:"avg_visit_duration"`
	EfficiencyScore  int       `json:"efficiencyScore" db:"efficiency_score"`
	UpdatedAt        time.Time `json:"updatedAt" db:"updated_at"`
}

// DateKey formats the stat day as YYYY-MM-DD
func (s DailyStat) DateKey() string {
	return s.Date.Format(DateLayout)
}

// Activity is one additive delta applied to a daily stat. EventID identifies the
// trip or visit completion so that a replay is rejected.
type Activity struct {
	EventID      string
	StaffID      string
	Date         time.Time
	DriveMinutes int
	Miles        float64
	VisitMinutes int
	Visits       int
}

// CompletedTrip is a finished trip joined with the staff details needed for a
// mileage log
type CompletedTrip struct {
	Trip
	StaffName   string  `json:"staffName"`
	CostPerMile float64 `json:"costPerMile"`
}

// Rate returns the staff member's rate, or fallback when unset
func (c CompletedTrip) Rate(fallback float64) float64 {
	return calculator.EffectiveRate(c.CostPerMile, fallback)
}

// Cost prices the trip at the staff member's rate
func (c CompletedTrip) Cost(fallback float64) float64 {
	return calculator.Cost(c.TotalDistance, c.Rate(fallback))
}
