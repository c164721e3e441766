// Package database provides the PostgreSQL store for staff, trips, daily
// performance stats and the activity event ledger, with connection pooling and
// health checks.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/stuartshay/otel-mileage/internal/domain"
)

// uniqueViolation is the PostgreSQL SQLSTATE for a unique constraint failure
const uniqueViolation = "23505"

// Client wraps a PostgreSQL database connection
type Client struct {
	db *sqlx.DB
}

// NewClient creates a new database client with connection pooling
func NewClient(dsn string) (*Client, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (also failed to close: %w)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Client{db: db}, nil
}

// NewClientFromDB wraps an already opened *sql.DB using PostgreSQL bind vars
func NewClientFromDB(db *sql.DB) *Client {
	return &Client{db: sqlx.NewDb(db, "postgres")}
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// HealthCheck verifies database connectivity
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint failure
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}

func persistenceErr(op string, err error) error {
	return domain.PersistenceError{Op: op, Err: err}
}
