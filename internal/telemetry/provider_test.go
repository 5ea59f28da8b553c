package telemetry_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/sanjit/pieuvre-mcp/internal/telemetry"
)

func TestSetup_NoopWhenEndpointEmpty(t *testing.T) {
	shutdown, err := telemetry.Setup(context.Background(), "test-service", "dev", telemetry.Options{Enabled: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetup_NoopWhenDisabled(t *testing.T) {
	opts := telemetry.Options{Enabled: false, Endpoint: "http://localhost:4318"}
	shutdown, err := telemetry.Setup(context.Background(), "test-service", "dev", opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("noop shutdown should not error: %v", err)
	}
}

func TestSetup_CreatesProviderWhenEndpointSet(t *testing.T) {
	// No spans are recorded, so every export reaching the server is a metric push.
	var posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	opts := telemetry.Options{Enabled: true, Endpoint: srv.URL, MetricInterval: time.Hour}
	shutdown, err := telemetry.Setup(context.Background(), "test-service", "dev", opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mp, ok := otel.GetMeterProvider().(*sdkmetric.MeterProvider)
	if !ok {
		t.Fatalf("global meter provider is %T, want *metric.MeterProvider", otel.GetMeterProvider())
	}
	counter, err := mp.Meter("telemetry-test").Int64Counter("telemetry_test_total")
	if err != nil {
		t.Fatalf("create counter: %v", err)
	}
	counter.Add(context.Background(), 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
	if posts.Load() == 0 {
		t.Fatal("shutdown did not flush metrics to the endpoint")
	}
}
