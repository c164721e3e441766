// Package tracing wires OpenTelemetry for the mileage service: an OTLP gRPC
// exporter, service resource attributes, ratio sampling and W3C propagation.
package tracing

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/stuartshay/otel-mileage/internal/config"
)

// ShutdownFunc flushes and stops the tracer provider
type ShutdownFunc func(context.Context) error

// Config holds OpenTelemetry configuration
type Config struct {
	ServiceName      string
	ServiceNamespace string
	ServiceVersion   string
	Environment      string
	OTLPEndpoint     string
	SampleRatio      float64
	Enabled          bool
}

// FromConfig derives tracing settings from the service configuration
func FromConfig(cfg *config.Config, version string) Config {
	return Config{
		ServiceName:      cfg.ServiceName,
		ServiceNamespace: "agency-backoffice",
		ServiceVersion:   version,
		Environment:      cfg.Environment,
		OTLPEndpoint:     cfg.OTELEndpoint,
		SampleRatio:      cfg.OTELSampleRatio,
		Enabled:          cfg.OTELEnabled,
	}
}

// Sampler honours the parent decision and samples root spans at the ratio
func (c Config) Sampler() sdktrace.Sampler {
	switch {
	case c.SampleRatio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case c.SampleRatio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.SampleRatio))
	}
}

// InitTracer installs the global tracer provider and propagator. When tracing
// is disabled only the propagator is installed, so incoming trace context is
// still forwarded, and the returned shutdown is a no-op.
func InitTracer(cfg Config) (ShutdownFunc, error) {
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	if !cfg.Enabled {
		log.Info().Msg("Tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	ctx := context.Background()

	conn, err := grpc.NewClient(
		cfg.OTLPEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection to collector: %w", err)
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	res, err := resource.New(
		ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceNamespace(cfg.ServiceNamespace),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
		resource.WithSchemaURL(semconv.SchemaURL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(cfg.Sampler()),
	)
	otel.SetTracerProvider(tp)

	log.Info().
		Str("endpoint", cfg.OTLPEndpoint).
		Float64("sample_ratio", cfg.SampleRatio).
		Msg("Tracing enabled")

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown tracer provider: %w", err)
		}
		return conn.Close()
	}, nil
}
