package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/stuartshay/otel-mileage/internal/domain"
)

const staffColumns = `id, name, role, active, COALESCE(cost_per_mile, 0) AS cost_per_mile`

// GetStaff retrieves a staff member by ID. A NULL rate is returned as 0 so
// callers apply the default.
func (c *Client) GetStaff(ctx context.Context, staffID string) (domain.Staff, error) {
	query := `SELECT ` + staffColumns + ` FROM staff WHERE id = $1`

	var staff domain.Staff
	if err := c.db.GetContext(ctx, &staff, query, staffID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Staff{}, domain.NotFoundError{Resource: "staff", ID: staffID}
		}
		return domain.Staff{}, persistenceErr("get staff", err)
	}

	return staff, nil
}

// ListActiveStaff returns all active staff ordered by name
func (c *Client) ListActiveStaff(ctx context.Context) ([]domain.Staff, error) {
	query := `SELECT ` + staffColumns + ` FROM staff WHERE active ORDER BY name`

	var staff []domain.Staff
	if err := c.db.SelectContext(ctx, &staff, query); err != nil {
		return nil, persistenceErr("list staff", err)
	}

	return staff, nil
}
