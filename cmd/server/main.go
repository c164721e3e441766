package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/stuartshay/otel-mileage/internal/analytics"
	"github.com/stuartshay/otel-mileage/internal/config"
	"github.com/stuartshay/otel-mileage/internal/database"
	"github.com/stuartshay/otel-mileage/internal/export"
	"github.com/stuartshay/otel-mileage/internal/httpapi"
	"github.com/stuartshay/otel-mileage/internal/live"
	"github.com/stuartshay/otel-mileage/internal/performance"
	"github.com/stuartshay/otel-mileage/internal/queue"
	"github.com/stuartshay/otel-mileage/internal/scheduler"
	"github.com/stuartshay/otel-mileage/internal/tracing"
	"github.com/stuartshay/otel-mileage/internal/trips"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Initialize structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	log.Info().Str("version", version).Msg("Starting otel-mileage service")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setLogLevel(cfg.LogLevel)
	if cfg.Environment != "development" {
		// Plain JSON lines for the log collector
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.ServiceName).Logger()
	}

	log.Info().
		Str("service_name", cfg.ServiceName).
		Str("environment", cfg.Environment).
		Str("http_port", cfg.HTTPPort).
		Str("grpc_port", cfg.GRPCPort).
		Str("db_host", cfg.PostgresHost).
		Str("db_port", cfg.PostgresPort).
		Str("timezone", cfg.Location.String()).
		Float64("default_cost_per_mile", cfg.DefaultCostPerMile).
		Msg("Configuration loaded")

	shutdownTracer, err := tracing.InitTracer(tracing.FromConfig(cfg, version))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize tracing")
	}

	dbClient, err := database.NewClient(cfg.DatabaseDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database client")
	}
	defer dbClient.Close()

	log.Info().Msg("Database connection established")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := dbClient.Migrate(ctx); err != nil {
		cancel()
		log.Fatal().Err(err).Msg("Database migration failed")
	}
	cancel()

	log.Info().Msg("Database schema up to date")

	// Background components stop when runCtx is cancelled
	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()

	hub := live.NewHub(cfg.CORSAllowedOrigins)
	go hub.Run(runCtx)

	stats := performance.NewService(dbClient, hub, cfg.DefaultCostPerMile, cfg.Location)
	tracker := trips.NewService(dbClient, stats, cfg.DefaultCostPerMile, trips.WithNotifier(hub))
	reporter := analytics.NewReporter(dbClient, cfg.Location)

	exporter := export.NewExporter(dbClient, cfg.ReportOutputPath, cfg.DefaultCostPerMile, cfg.Location)
	exportQueue := queue.NewQueue(cfg.ExportWorkers, exporter.Process)

	nightly := scheduler.NewScheduler(exportQueue, cfg.ExportSchedule, cfg.ExportFormat, cfg.Location)
	if err := nightly.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}

	api := &httpapi.Handler{
		ServiceName: cfg.ServiceName,
		Trips:       tracker,
		Visits:      stats,
		Analytics:   reporter,
		Exports:     exportQueue,
		Validator:   exporter,
		Health:      dbClient,
		Live:        hub.ServeWS,
		Location:    cfg.Location,
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:           api.Routes(cfg.CORSAllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// gRPC carries the standard health service for the platform probes
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	go watchDatabase(runCtx, dbClient, healthServer, cfg.ServiceName)

	reflection.Register(grpcServer)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create TCP listener")
	}

	go func() {
		log.Info().Str("port", cfg.GRPCPort).Msg("gRPC server listening")
		if err := grpcServer.Serve(listener); err != nil {
			log.Fatal().Err(err).Msg("gRPC server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutdown signal received, gracefully stopping...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	healthServer.Shutdown()
	nightly.Stop()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	} else {
		log.Info().Msg("HTTP server stopped")
	}

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-shutdownCtx.Done():
		log.Warn().Msg("Shutdown timeout exceeded, forcing stop")
		grpcServer.Stop()
	case <-stopped:
		log.Info().Msg("gRPC server stopped")
	}

	if err := exportQueue.Shutdown(10 * time.Second); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown export workers")
	}

	stopRun()

	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to flush traces")
	}

	log.Info().Msg("Service shutdown complete")
}

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

type servingStatusSetter interface {
	SetServingStatus(service string, status grpc_health_v1.HealthCheckResponse_ServingStatus)
}

// watchDatabase mirrors database reachability into the gRPC health status
func watchDatabase(ctx context.Context, db healthChecker, hs servingStatusSetter, service string) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServingStatus(ctx, db, hs, service)
		}
	}
}

func updateServingStatus(ctx context.Context, db healthChecker, hs servingStatusSetter, service string) {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := grpc_health_v1.HealthCheckResponse_SERVING
	if err := db.HealthCheck(checkCtx); err != nil {
		log.Warn().Err(err).Msg("Database health check failed")
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	hs.SetServingStatus("", status)
	hs.SetServingStatus(service, status)
}

// setLogLevel configures the global log level
func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Info().Str("level", level).Msg("Log level set")
}
