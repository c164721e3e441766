package calculator

import (
	"math"

	"github.com/shopspring/decimal"
)

const (
	// DefaultCostPerMile is the IRS standard mileage rate applied when a staff
	// member has no rate of their own
	DefaultCostPerMile = 0.67

	// CO2PoundsPerMile is the average passenger car emission per mile
	CO2PoundsPerMile = 0.404
)

// Round2 rounds to two decimal places, half away from zero
func Round2(v float64) float64 {
	return roundPlaces(v, 2)
}

// Round1 rounds to one decimal place, half away from zero
func Round1(v float64) float64 {
	return roundPlaces(v, 1)
}

func roundPlaces(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

// EffectiveRate returns rate, or fallback when rate is unset or non-positive.
// DefaultCostPerMile backs up a missing fallback.
func EffectiveRate(rate, fallback float64) float64 {
	if rate > 0 {
		return rate
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultCostPerMile
}

// Cost prices a mileage at the given rate, rounded to cents
func Cost(miles, costPerMile float64) float64 {
	c, _ := decimal.NewFromFloat(miles).
		Mul(decimal.NewFromFloat(costPerMile)).
		Round(2).
		Float64()
	return c
}

// EfficiencyScore is the share of on-duty time spent in patient visits, 0-100.
func EfficiencyScore(visitMinutes, driveMinutes float64) int {
	total := visitMinutes + driveMinutes
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * visitMinutes / total))
}

// AvgVisitDuration returns minutes per visit, 0 when no visits were made
func AvgVisitDuration(visitMinutes float64, visits int) float64 {
	if visits <= 0 {
		return 0
	}
	return Round2(visitMinutes / float64(visits))
}

// PercentChange compares two period totals. A zero baseline yields 0 rather
// than an infinite change.
func PercentChange(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	return Round1((current - previous) / previous * 100)
}

// CO2ReductionLbs estimates the emissions represented by a mileage
func CO2ReductionLbs(miles float64) float64 {
	return miles * CO2PoundsPerMile
}
