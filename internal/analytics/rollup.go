// Package analytics reads daily performance rollups back out for dashboards:
// range totals, gap-filled daily series, period-over-period change and a
// per-staff breakdown.
package analytics

import (
	"sort"
	"time"

	"github.com/stuartshay/otel-mileage/internal/calculator"
	"github.com/stuartshay/otel-mileage/internal/domain"
)

// Totals is the sum of a set of daily rows
type Totals struct {
	TotalMiles      float64 `json:"totalMiles"`
	TotalCost       float64 `json:"totalCost"`
	TotalDriveTime  int     `json:"totalDriveTime"`
	TotalVisitTime  int     `json:"totalVisitTime"`
	TotalVisits     int     `json:"totalVisits"`
	AvgEfficiency   int     `json:"avgEfficiency"`
	CO2ReductionLbs float64 `json:"co2ReductionLbs"`
}

// Aggregate sums rows without weighting and derives overall efficiency and
// CO2 from the sums
func Aggregate(rows []domain.DailyStat) Totals {
	var t Totals
	for _, r := range rows {
		t.TotalMiles += r.TotalMiles
		t.TotalCost += r.TotalCost
		t.TotalDriveTime += r.TotalDriveTime
		t.TotalVisitTime += r.TotalVisitTime
		t.TotalVisits += r.TotalVisits
	}

	t.AvgEfficiency = calculator.EfficiencyScore(float64(t.TotalVisitTime), float64(t.TotalDriveTime))
	t.CO2ReductionLbs = calculator.CO2ReductionLbs(t.TotalMiles)
	return t
}

// DailyValue is one day of a series
type DailyValue struct {
	Date  string
	Value float64
}

// FillDailySeries returns one entry per calendar day in [start, end], in
// ascending order, taking values keyed by YYYY-MM-DD and 0 for missing days
func FillDailySeries(values map[string]float64, start, end time.Time) []DailyValue {
	start = midnight(start)
	end = midnight(end)
	if end.Before(start) {
		return []DailyValue{}
	}

	series := make([]DailyValue, 0, daysBetween(start, end)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := d.Format(domain.DateLayout)
		series = append(series, DailyValue{Date: key, Value: values[key]})
	}
	return series
}

// ComparePeriods is the percent change from previous to current, 1dp. A zero
// previous period yields 0.
func ComparePeriods(current, previous float64) float64 {
	return calculator.PercentChange(current, previous)
}

// StaffPerformance is one staff member's share of a window
type StaffPerformance struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Role       string  `json:"role"`
	Miles      float64 `json:"miles"`
	Efficiency int     `json:"efficiency"`
	Cost       float64 `json:"cost"`
}

// PerStaffBreakdown aggregates rows per staff member, drops staff who drove no
// miles, and sorts by miles descending
func PerStaffBreakdown(staff []domain.Staff, rows []domain.DailyStat) []StaffPerformance {
	byStaff := make(map[string][]domain.DailyStat)
	for _, r := range rows {
		byStaff[r.StaffID] = append(byStaff[r.StaffID], r)
	}

	breakdown := make([]StaffPerformance, 0, len(staff))
	for _, s := range staff {
		totals := Aggregate(byStaff[s.ID])
		if totals.TotalMiles <= 0 {
			continue
		}
		breakdown = append(breakdown, StaffPerformance{
			ID:         s.ID,
			Name:       s.Name,
			Role:       s.Role,
			Miles:      calculator.Round2(totals.TotalMiles),
			Efficiency: totals.AvgEfficiency,
			Cost:       calculator.Round2(totals.TotalCost),
		})
	}

	sort.SliceStable(breakdown, func(i, j int) bool {
		return breakdown[i].Miles > breakdown[j].Miles
	})
	return breakdown
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func daysBetween(start, end time.Time) int {
	// Calendar dates compared in UTC so DST shifts cannot drop or add a day
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	return int(e.Sub(s).Hours() / 24)
}
