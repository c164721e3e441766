package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stuartshay/otel-mileage/internal/calculator"
	"github.com/stuartshay/otel-mileage/internal/domain"
)

const tripColumns = `
	t.id, t.staff_id, t.status, t.start_time, t.end_time,
	t.start_latitude, t.start_longitude, t.start_address,
	t.end_latitude, t.end_longitude, t.end_address,
	t.route_points, t.total_distance, t.total_drive_time`

// tripRow mirrors a trips row, keeping nullable end fields as sql.Null types
type tripRow struct {
	ID             string          `db:"id"`
	StaffID        string          `db:"staff_id"`
	Status         string          `db:"status"`
	StartTime      time.Time       `db:"start_time"`
	EndTime        sql.NullTime    `db:"end_time"`
	StartLatitude  float64         `db:"start_latitude"`
	StartLongitude float64         `db:"start_longitude"`
	StartAddress   string          `db:"start_address"`
	EndLatitude    sql.NullFloat64 `db:"end_latitude"`
	EndLongitude   sql.NullFloat64 `db:"end_longitude"`
	EndAddress     sql.NullString  `db:"end_address"`
	RoutePoints    []byte          `db:"route_points"`
	TotalDistance  float64         `db:"total_distance"`
	TotalDriveTime int             `db:"total_drive_time"`
}

func (r tripRow) toDomain() (domain.Trip, error) {
	trip := domain.Trip{
		ID:        r.ID,
		StaffID:   r.StaffID,
		Status:    domain.TripStatus(r.Status),
		StartTime: r.StartTime,
		StartLocation: domain.Location{
			Latitude:  r.StartLatitude,
			Longitude: r.StartLongitude,
			Address:   r.StartAddress,
		},
		TotalDistance:  r.TotalDistance,
		TotalDriveTime: r.TotalDriveTime,
		RoutePoints:    []calculator.RoutePoint{},
	}

	if r.EndTime.Valid {
		end := r.EndTime.Time
		trip.EndTime = &end
	}
	if r.EndLatitude.Valid && r.EndLongitude.Valid {
		trip.EndLocation = &domain.Location{
			Latitude:  r.EndLatitude.Float64,
			Longitude: r.EndLongitude.Float64,
			Address:   r.EndAddress.String,
		}
	}
	if len(r.RoutePoints) > 0 {
		if err := json.Unmarshal(r.RoutePoints, &trip.RoutePoints); err != nil {
			return domain.Trip{}, fmt.Errorf("decode route points for trip %s: %w", r.ID, err)
		}
	}

	return trip, nil
}

// CreateTrip inserts a new active trip. A second active trip for the same staff
// member violates trips_one_active_per_staff and is reported as a conflict.
func (c *Client) CreateTrip(ctx context.Context, trip domain.Trip) error {
	query := `
		INSERT INTO trips (
			id, staff_id, status, start_time,
			start_latitude, start_longitude, start_address, route_points
		) VALUES ($1, $2, $3, $4, $5, $6, $7, '[]'::jsonb)
	`

	_, err := c.db.ExecContext(ctx, query,
		trip.ID,
		trip.StaffID,
		string(trip.Status),
		trip.StartTime,
		trip.StartLocation.Latitude,
		trip.StartLocation.Longitude,
		trip.StartLocation.Address,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ConflictError{Resource: "trip", Msg: "staff member already has an active trip", Err: err}
		}
		return persistenceErr("insert trip", err)
	}

	return nil
}

// GetTrip retrieves a trip by ID
func (c *Client) GetTrip(ctx context.Context, tripID string) (domain.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips t WHERE t.id = $1`

	var row tripRow
	if err := c.db.GetContext(ctx, &row, query, tripID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Trip{}, domain.NotFoundError{Resource: "trip", ID: tripID}
		}
		return domain.Trip{}, persistenceErr("get trip", err)
	}

	return row.toDomain()
}

// GetActiveTripForStaff returns the most recently started active trip of a staff member
func (c *Client) GetActiveTripForStaff(ctx context.Context, staffID string) (domain.Trip, error) {
	query := `
		SELECT ` + tripColumns + `
		FROM trips t
		WHERE t.staff_id = $1 AND t.status = 'active'
		ORDER BY t.start_time DESC
		LIMIT 1
	`

	var row tripRow
	if err := c.db.GetContext(ctx, &row, query, staffID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Trip{}, domain.NotFoundError{Resource: "active trip for staff", ID: staffID}
		}
		return domain.Trip{}, persistenceErr("get active trip", err)
	}

	return row.toDomain()
}

// AppendRoutePoint atomically appends a fix to an active trip's route and
// returns the new number of points
func (c *Client) AppendRoutePoint(ctx context.Context, tripID string, point calculator.RoutePoint) (int, error) {
	payload, err := json.Marshal([]calculator.RoutePoint{point})
	if err != nil {
		return 0, fmt.Errorf("encode route point: %w", err)
	}

	query := `
		UPDATE trips
		SET route_points = route_points || $2::jsonb, updated_at = NOW()
		WHERE id = $1 AND status = 'active'
		RETURNING jsonb_array_length(route_points)
	`

	var count int
	err = c.db.QueryRowxContext(ctx, query, tripID, string(payload)).Scan(&count)
	if err == nil {
		return count, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, persistenceErr("append route point", err)
	}

	// Nothing updated: tell a missing trip apart from a finished one
	trip, getErr := c.GetTrip(ctx, tripID)
	if getErr != nil {
		return 0, getErr
	}
	return 0, domain.ConflictError{Resource: "trip", Msg: fmt.Sprintf("trip %s is %s", trip.ID, trip.Status)}
}

// CompleteTrip marks an active trip completed. A trip that is no longer active
// (already ended by a concurrent request) is reported as not found.
func (c *Client) CompleteTrip(ctx context.Context, p domain.TripCompletion) error {
	query := `
		UPDATE trips
		SET status = 'completed',
			end_time = $2,
			end_latitude = $3,
			end_longitude = $4,
			end_address = $5,
			total_distance = $6,
			total_drive_time = $7,
			updated_at = NOW()
		WHERE id = $1 AND status = 'active'
	`

	var lat, lng sql.NullFloat64
	var address sql.NullString
	if p.EndLocation != nil {
		lat = sql.NullFloat64{Float64: p.EndLocation.Latitude, Valid: true}
		lng = sql.NullFloat64{Float64: p.EndLocation.Longitude, Valid: true}
		address = sql.NullString{String: p.EndLocation.Address, Valid: true}
	}

	result, err := c.db.ExecContext(ctx, query,
		p.TripID,
		p.EndTime,
		lat,
		lng,
		address,
		p.TotalDistance,
		p.TotalDriveTime,
	)
	if err != nil {
		return persistenceErr("complete trip", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistenceErr("complete trip", err)
	}
	if affected == 0 {
		return domain.NotFoundError{Resource: "active trip", ID: p.TripID}
	}

	return nil
}

// ListCompletedTrips returns trips that ended in [from, to), joined with staff
// name and rate, ordered by end time
func (c *Client) ListCompletedTrips(ctx context.Context, from, to time.Time, staffID string) ([]domain.CompletedTrip, error) {
	query := `
		SELECT ` + tripColumns + `, s.name AS staff_name, COALESCE(s.cost_per_mile, 0) AS staff_cost_per_mile
		FROM trips t
		JOIN staff s ON s.id = t.staff_id
		WHERE t.status = 'completed' AND t.end_time >= $1 AND t.end_time < $2
	`

	args := []interface{}{from, to}

	if staffID != "" {
		query += " AND t.staff_id = $3"
		args = append(args, staffID)
	}

	query += " ORDER BY t.end_time ASC"

	type completedRow struct {
		tripRow
		StaffName        string  `db:"staff_name"`
		StaffCostPerMile float64 `db:"staff_cost_per_mile"`
	}

	var rows []completedRow
	if err := c.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, persistenceErr("list completed trips", err)
	}

	trips := make([]domain.CompletedTrip, 0, len(rows))
	for _, r := range rows {
		trip, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		trips = append(trips, domain.CompletedTrip{
			Trip:        trip,
			StaffName:   r.StaffName,
			CostPerMile: r.StaffCostPerMile,
		})
	}

	return trips, nil
}
