// Package main provides tests for the health wiring of the server
package main

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/health/grpc_health_v1"
)

type stubDB struct{ err error }

func (s stubDB) HealthCheck(context.Context) error { return s.err }

type recordingHealth struct {
	statuses map[string]grpc_health_v1.HealthCheckResponse_ServingStatus
}

func (r *recordingHealth) SetServingStatus(service string, status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	if r.statuses == nil {
		r.statuses = map[string]grpc_health_v1.HealthCheckResponse_ServingStatus{}
	}
	r.statuses[service] = status
}

func TestUpdateServingStatus(t *testing.T) {
	hs := &recordingHealth{}

	updateServingStatus(context.Background(), stubDB{}, hs, "otel-mileage")
	if hs.statuses[""] != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("expected SERVING, got %v", hs.statuses[""])
	}
	if hs.statuses["otel-mileage"] != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("expected named service SERVING, got %v", hs.statuses["otel-mileage"])
	}

	updateServingStatus(context.Background(), stubDB{err: errors.New("connection refused")}, hs, "otel-mileage")
	if hs.statuses[""] != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("expected NOT_SERVING, got %v", hs.statuses[""])
	}
}

func TestWatchDatabaseStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		watchDatabase(ctx, stubDB{}, &recordingHealth{}, "otel-mileage")
		close(done)
	}()
	cancel()
	<-done
}

func TestSetLogLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"warn":    zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"verbose": zerolog.InfoLevel,
	}

	for level, expected := range tests {
		setLogLevel(level)
		if got := zerolog.GlobalLevel(); got != expected {
			t.Errorf("setLogLevel(%q) = %v, expected %v", level, got, expected)
		}
	}
}
