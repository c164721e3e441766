package database

import (
	"context"
	"fmt"
	"time"

	"github.com/stuartshay/otel-mileage/internal/calculator"
	"github.com/stuartshay/otel-mileage/internal/domain"
)

const statColumns = `
	id, staff_id, stat_date, period, total_drive_time, total_visits,
	total_miles, total_visit_time, total_cost, cost_per_mile,
	avg_visit_duration, efficiency_score, updated_at`

// ApplyActivity records an activity event and folds its deltas into the staff
// member's daily stat in a single transaction.
//
// The increments are applied by the upsert itself, so concurrent events for the
// same (staff, day) serialize on the row lock instead of overwriting each other.
// The derived columns are recomputed while that lock is held. An event ID that
// was already applied is rejected with a ConflictError and changes nothing.
func (c *Client) ApplyActivity(ctx context.Context, a domain.Activity, costPerMile float64) (domain.DailyStat, error) {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.DailyStat{}, persistenceErr("begin activity transaction", err)
	}
	defer func() { _ = tx.Rollback() }() // nolint:errcheck // no-op after commit

	day := a.Date.Format(domain.DateLayout)

	ledger := `
		INSERT INTO activity_events (
			event_id, staff_id, stat_date, drive_minutes, miles, visit_minutes, visits
		) VALUES ($1, $2, $3::date, $4, $5, $6, $7)
		ON CONFLICT (event_id) DO NOTHING
	`
	result, err := tx.ExecContext(ctx, ledger,
		a.EventID, a.StaffID, day, a.DriveMinutes, a.Miles, a.VisitMinutes, a.Visits,
	)
	if err != nil {
		return domain.DailyStat{}, persistenceErr("record activity event", err)
	}
	applied, err := result.RowsAffected()
	if err != nil {
		return domain.DailyStat{}, persistenceErr("record activity event", err)
	}
	if applied == 0 {
		return domain.DailyStat{}, domain.ConflictError{
			Resource: "activity",
			Msg:      fmt.Sprintf("event %s already applied", a.EventID),
		}
	}

	upsert := `
		INSERT INTO performance_stats (
			staff_id, stat_date, period, total_drive_time, total_visits,
			total_miles, total_visit_time, cost_per_mile, updated_at
		) VALUES ($1, $2::date, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (staff_id, stat_date, period) DO UPDATE SET
			total_drive_time = performance_stats.total_drive_time + EXCLUDED.total_drive_time,
			total_visits = performance_stats.total_visits + EXCLUDED.total_visits,
			total_miles = performance_stats.total_miles + EXCLUDED.total_miles,
			total_visit_time = performance_stats.total_visit_time + EXCLUDED.total_visit_time,
			cost_per_mile = EXCLUDED.cost_per_mile,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + statColumns

	var stat domain.DailyStat
	err = tx.QueryRowxContext(ctx, upsert,
		a.StaffID,
		day,
		domain.PeriodDay,
		a.DriveMinutes,
		a.Visits,
		a.Miles,
		a.VisitMinutes,
		costPerMile,
		time.Now().UTC(),
	).StructScan(&stat)
	if err != nil {
		return domain.DailyStat{}, persistenceErr("upsert daily stat", err)
	}

	// Cost is always re-priced from the accumulated miles at the current rate
	stat.CostPerMile = costPerMile
	stat.TotalCost = calculator.Cost(stat.TotalMiles, costPerMile)
	stat.AvgVisitDuration = calculator.AvgVisitDuration(float64(stat.TotalVisitTime), stat.TotalVisits)
	stat.EfficiencyScore = calculator.EfficiencyScore(float64(stat.TotalVisitTime), float64(stat.TotalDriveTime))

	derived := `
		UPDATE performance_stats
		SET total_cost = $2, avg_visit_duration = $3, efficiency_score = $4
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, derived,
		stat.ID, stat.TotalCost, stat.AvgVisitDuration, stat.EfficiencyScore,
	); err != nil {
		return domain.DailyStat{}, persistenceErr("update derived stat fields", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.DailyStat{}, persistenceErr("commit activity transaction", err)
	}

	return stat, nil
}

// ListDailyStats retrieves daily stats with stat_date in [startDate, endDate],
// optionally for a single staff member
func (c *Client) ListDailyStats(ctx context.Context, startDate, endDate time.Time, staffID string) ([]domain.DailyStat, error) {
	query := `
		SELECT ` + statColumns + `
		FROM performance_stats
		WHERE period = $1 AND stat_date >= $2::date AND stat_date <= $3::date
	`

	args := []interface{}{
		domain.PeriodDay,
		startDate.Format(domain.DateLayout),
		endDate.Format(domain.DateLayout),
	}

	if staffID != "" {
		query += " AND staff_id = $4"
		args = append(args, staffID)
	}

	query += " ORDER BY stat_date ASC, staff_id ASC"

	var stats []domain.DailyStat
	if err := c.db.SelectContext(ctx, &stats, query, args...); err != nil {
		return nil, persistenceErr("list daily stats", err)
	}

	return stats, nil
}
