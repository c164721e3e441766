package database

import (
	"context"
	"fmt"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS staff (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		cost_per_mile NUMERIC(6,3),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS trips (
		id TEXT PRIMARY KEY,
		staff_id TEXT NOT NULL REFERENCES staff(id),
		status TEXT NOT NULL CHECK (status IN ('active', 'completed')),
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ,
		start_latitude DOUBLE PRECISION NOT NULL,
		start_longitude DOUBLE PRECISION NOT NULL,
		start_address TEXT NOT NULL DEFAULT '',
		end_latitude DOUBLE PRECISION,
		end_longitude DOUBLE PRECISION,
		end_address TEXT,
		route_points JSONB NOT NULL DEFAULT '[]'::jsonb,
		total_distance NUMERIC(10,2) NOT NULL DEFAULT 0,
		total_drive_time INT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	// At most one active trip per staff member
	`CREATE UNIQUE INDEX IF NOT EXISTS trips_one_active_per_staff
		ON trips (staff_id) WHERE status = 'active'`,

	`CREATE INDEX IF NOT EXISTS trips_end_time_idx ON trips (end_time) WHERE status = 'completed'`,

	`CREATE TABLE IF NOT EXISTS performance_stats (
		id BIGSERIAL PRIMARY KEY,
		staff_id TEXT NOT NULL REFERENCES staff(id),
		stat_date DATE NOT NULL,
		period TEXT NOT NULL DEFAULT 'day',
		total_drive_time INT NOT NULL DEFAULT 0,
		total_visits INT NOT NULL DEFAULT 0,
		total_miles NUMERIC(12,2) NOT NULL DEFAULT 0,
		total_visit_time INT NOT NULL DEFAULT 0,
		total_cost NUMERIC(12,2) NOT NULL DEFAULT 0,
		cost_per_mile NUMERIC(6,3) NOT NULL DEFAULT 0.67,
		avg_visit_duration NUMERIC(10,2) NOT NULL DEFAULT 0,
		efficiency_score INT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (staff_id, stat_date, period)
	)`,

	`CREATE TABLE IF NOT EXISTS activity_events (
		event_id TEXT PRIMARY KEY,
		staff_id TEXT NOT NULL,
		stat_date DATE NOT NULL,
		drive_minutes INT NOT NULL DEFAULT 0,
		miles NUMERIC(10,2) NOT NULL DEFAULT 0,
		visit_minutes INT NOT NULL DEFAULT 0,
		visits INT NOT NULL DEFAULT 0,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates the tables and indexes the service needs
func (c *Client) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
