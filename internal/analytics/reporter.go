package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stuartshay/otel-mileage/internal/calculator"
	"github.com/stuartshay/otel-mileage/internal/domain"
)

var tracer = otel.Tracer("github.com/stuartshay/otel-mileage/internal/analytics")

// DefaultTimeRange is used when the caller does not pick one
const DefaultTimeRange = "7d"

var timeRanges = map[string]int{
	"1d":  1,
	"7d":  7,
	"30d": 30,
	"90d": 90,
}

// ParseTimeRange maps 1d, 7d, 30d or 90d to a number of days
func ParseTimeRange(s string) (int, error) {
	if s == "" {
		s = DefaultTimeRange
	}
	days, ok := timeRanges[s]
	if !ok {
		return 0, domain.ValidationError{Field: "timeRange", Msg: fmt.Sprintf("must be one of 1d, 7d, 30d, 90d, got %q", s)}
	}
	return days, nil
}

// Window is an inclusive range of calendar days
type Window struct {
	Start time.Time
	End   time.Time
	Days  int
}

// WindowEnding returns the n-day window whose last day is the day of end
func WindowEnding(end time.Time, days int) Window {
	last := midnight(end)
	return Window{Start: last.AddDate(0, 0, -(days - 1)), End: last, Days: days}
}

// Previous is the window of equal length immediately before w
func (w Window) Previous() Window {
	return WindowEnding(w.Start.AddDate(0, 0, -1), w.Days)
}

// Contains reports whether the day of t falls inside w
func (w Window) Contains(t time.Time) bool {
	key := t.Format(domain.DateLayout)
	return key >= w.Start.Format(domain.DateLayout) && key <= w.End.Format(domain.DateLayout)
}

// Store is the read side the reporter needs
type Store interface {
	ListDailyStats(ctx context.Context, startDate, endDate time.Time, staffID string) ([]domain.DailyStat, error)
	ListActiveStaff(ctx context.Context) ([]domain.Staff, error)
}

// MileagePoint is one day of the mileage chart
type MileagePoint struct {
	Date  string  `json:"date"`
	Miles float64 `json:"miles"`
}

// CostPoint is one day of the cost chart
type CostPoint struct {
	Date string  `json:"date"`
	Cost float64 `json:"cost"`
}

// Report is the dashboard payload for one time range
type Report struct {
	TimeRange        string             `json:"timeRange"`
	StartDate        string             `json:"startDate"`
	EndDate          string             `json:"endDate"`
	TotalMiles       float64            `json:"totalMiles"`
	TotalCost        float64            `json:"totalCost"`
	AvgEfficiency    int                `json:"avgEfficiency"`
	TotalHours       float64            `json:"totalHours"`
	TotalVisits      int                `json:"totalVisits"`
	CO2Reduction     float64            `json:"co2Reduction"`
	MilesChange      float64            `json:"milesChange"`
	CostChange       float64            `json:"costChange"`
	DailyMileage     []MileagePoint     `json:"dailyMileage"`
	DailyCosts       []CostPoint        `json:"dailyCosts"`
	StaffPerformance []StaffPerformance `json:"staffPerformance"`
}

// Reporter builds analytics from the persisted daily rollups
type Reporter struct {
	store Store
	loc   *time.Location
	now   func() time.Time
}

// NewReporter creates a reporter that buckets days in loc
func NewReporter(store Store, loc *time.Location) *Reporter {
	if loc == nil {
		loc = time.UTC
	}
	return &Reporter{store: store, loc: loc, now: time.Now}
}

// GetRange returns the daily rows in [start, end], optionally for one staff member
func (r *Reporter) GetRange(ctx context.Context, start, end time.Time, staffID string) ([]domain.DailyStat, error) {
	if end.Before(start) {
		return nil, domain.ValidationError{Field: "endDate", Msg: "must not be before startDate"}
	}
	return r.store.ListDailyStats(ctx, start, end, staffID)
}

// Report builds the dashboard for the window ending today
func (r *Reporter) Report(ctx context.Context, timeRange, staffID string) (*Report, error) {
	days, err := ParseTimeRange(timeRange)
	if err != nil {
		return nil, err
	}
	if timeRange == "" {
		timeRange = DefaultTimeRange
	}

	ctx, span := tracer.Start(ctx, "analytics.Report", trace.WithAttributes(
		attribute.String("time_range", timeRange),
		attribute.String("staff.id", staffID),
	))
	defer span.End()

	current := WindowEnding(r.now().In(r.loc), days)
	previous := current.Previous()

	// One read covers both windows
	rows, err := r.GetRange(ctx, previous.Start, current.End, staffID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list daily stats failed")
		return nil, err
	}

	var curRows, prevRows []domain.DailyStat
	for _, row := range rows {
		if current.Contains(row.Date) {
			curRows = append(curRows, row)
		} else {
			prevRows = append(prevRows, row)
		}
	}

	staff, err := r.store.ListActiveStaff(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list staff failed")
		return nil, err
	}
	if staffID != "" {
		staff = filterStaff(staff, staffID)
	}

	cur := Aggregate(curRows)
	prev := Aggregate(prevRows)

	milesByDay := make(map[string]float64)
	costByDay := make(map[string]float64)
	for _, row := range curRows {
		milesByDay[row.DateKey()] += row.TotalMiles
		costByDay[row.DateKey()] += row.TotalCost
	}

	report := &Report{
		TimeRange:        timeRange,
		StartDate:        current.Start.Format(domain.DateLayout),
		EndDate:          current.End.Format(domain.DateLayout),
		TotalMiles:       calculator.Round2(cur.TotalMiles),
		TotalCost:        calculator.Round2(cur.TotalCost),
		AvgEfficiency:    cur.AvgEfficiency,
		TotalHours:       calculator.Round1(float64(cur.TotalDriveTime) / 60),
		TotalVisits:      cur.TotalVisits,
		CO2Reduction:     calculator.Round2(cur.CO2ReductionLbs),
		MilesChange:      ComparePeriods(cur.TotalMiles, prev.TotalMiles),
		CostChange:       ComparePeriods(cur.TotalCost, prev.TotalCost),
		StaffPerformance: PerStaffBreakdown(staff, curRows),
	}

	for _, v := range FillDailySeries(milesByDay, current.Start, current.End) {
		report.DailyMileage = append(report.DailyMileage, MileagePoint{Date: v.Date, Miles: calculator.Round2(v.Value)})
	}
	for _, v := range FillDailySeries(costByDay, current.Start, current.End) {
		report.DailyCosts = append(report.DailyCosts, CostPoint{Date: v.Date, Cost: calculator.Round2(v.Value)})
	}

	log.Debug().
		Str("time_range", timeRange).
		Str("staff_id", staffID).
		Int("rows", len(rows)).
		Float64("total_miles", report.TotalMiles).
		Msg("Analytics report built")

	return report, nil
}

func filterStaff(staff []domain.Staff, staffID string) []domain.Staff {
	for _, s := range staff {
		if s.ID == staffID {
			return []domain.Staff{s}
		}
	}
	return nil
}
