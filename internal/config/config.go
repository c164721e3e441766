// Package config provides application configuration management,
// loading settings from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // TIMEZONE must resolve on minimal images

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Service configuration
	ServiceName string
	Environment string
	GRPCPort    string
	HTTPPort    string

	// Database configuration
	PostgresHost     string
	PostgresPort     string
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string

	// Mileage rate applied when a staff member has none
	DefaultCostPerMile float64

	// Timezone that defines calendar day boundaries for daily stats
	Timezone string
	Location *time.Location

	// Mileage export configuration. ExportSchedule is a cron spec; "off"
	// disables the nightly export.
	ReportOutputPath string
	ExportWorkers    int
	ExportSchedule   string
	ExportFormat     string

	// HTTP
	CORSAllowedOrigins []string

	// OpenTelemetry configuration
	OTELEndpoint    string
	OTELEnabled     bool
	OTELSampleRatio float64

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "otel-mileage"),
		Environment: getEnv("ENVIRONMENT", "development"),
		GRPCPort:    getEnv("GRPC_PORT", "50051"),
		HTTPPort:    getEnv("HTTP_PORT", "8080"),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "6432"),
		PostgresDB:       getEnv("POSTGRES_DB", "mileage"),
		PostgresUser:     getEnv("POSTGRES_USER", "development"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "development"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		Timezone:         getEnv("TIMEZONE", "UTC"),
		ReportOutputPath: getEnv("REPORT_OUTPUT_PATH", "/data/reports"),
		ExportSchedule:   getEnv("EXPORT_SCHEDULE", "5 0 * * *"),
		ExportFormat:     strings.ToLower(getEnv("EXPORT_FORMAT", "csv")),

		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),

		OTELEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}

	var err error
	cfg.DefaultCostPerMile, err = parseFloat("DEFAULT_COST_PER_MILE", "0.67")
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_COST_PER_MILE: %w", err)
	}
	if cfg.DefaultCostPerMile <= 0 {
		return nil, fmt.Errorf("invalid DEFAULT_COST_PER_MILE: must be positive, got %v", cfg.DefaultCostPerMile)
	}

	cfg.ExportWorkers, err = parseInt("EXPORT_WORKERS", "2")
	if err != nil {
		return nil, fmt.Errorf("invalid EXPORT_WORKERS: %w", err)
	}
	if cfg.ExportWorkers < 1 {
		return nil, fmt.Errorf("invalid EXPORT_WORKERS: must be at least 1, got %d", cfg.ExportWorkers)
	}

	cfg.OTELEnabled, err = parseBool("OTEL_ENABLED", "false")
	if err != nil {
		return nil, fmt.Errorf("invalid OTEL_ENABLED: %w", err)
	}

	cfg.OTELSampleRatio, err = parseFloat("OTEL_SAMPLE_RATIO", "1.0")
	if err != nil {
		return nil, fmt.Errorf("invalid OTEL_SAMPLE_RATIO: %w", err)
	}
	if cfg.OTELSampleRatio < 0 || cfg.OTELSampleRatio > 1 {
		return nil, fmt.Errorf("invalid OTEL_SAMPLE_RATIO: must be between 0 and 1, got %v", cfg.OTELSampleRatio)
	}

	switch cfg.ExportFormat {
	case "csv", "xlsx", "pdf":
	default:
		return nil, fmt.Errorf("invalid EXPORT_FORMAT: must be csv, xlsx or pdf, got %q", cfg.ExportFormat)
	}

	cfg.Location, err = time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *Config) DatabaseDSN() string {
	sslMode := c.PostgresSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%s dbname=%s user=%s password=%s sslmode=%s",
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresDB,
		c.PostgresUser,
		c.PostgresPassword,
		sslMode,
	)
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseFloat parses a float64 from an environment variable or default value
func parseFloat(key, defaultValue string) (float64, error) {
	value := getEnv(key, defaultValue)
	return strconv.ParseFloat(value, 64)
}

func parseInt(key, defaultValue string) (int, error) {
	return strconv.Atoi(getEnv(key, defaultValue))
}

func parseBool(key, defaultValue string) (bool, error) {
	return strconv.ParseBool(getEnv(key, defaultValue))
}

// splitList splits a comma separated value, dropping empty entries
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
