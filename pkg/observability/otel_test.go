package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitOTelDisabled(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(InfoLevel, buf)

	providers, err := InitOTel(context.Background(), OTelConfig{Enabled: false}, logger)
	if err != nil {
		t.Fatalf("InitOTel returned error: %v", err)
	}
	if providers != nil {
		t.Error("Expected nil providers when telemetry is disabled")
	}
	if !strings.Contains(buf.String(), "OpenTelemetry is disabled") {
		t.Error("Expected the disabled path to be logged")
	}
}

// Exercises the configuration the service runs with when PVS_OTEL_ENABLED is
// set. Needs a collector listening on the endpoint, so it only runs outside
// short mode.
func TestInitOTelEnabled(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping collector-backed initialization in short mode")
	}

	logger := NewLogger(InfoLevel, &bytes.Buffer{})
	cfg := OTelConfig{
		Enabled:        true,
		Endpoint:       "localhost:4317",
		ServiceName:    "pvs",
		ServiceVersion: "1.0.0",
		Insecure:       true,
	}

	providers, err := InitOTel(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("InitOTel returned error: %v", err)
	}
	if providers.TracerProvider == nil {
		t.Error("Expected a tracer provider")
	}
	if providers.MeterProvider == nil {
		t.Error("Expected a meter provider")
	}
	if providers.Metrics == nil {
		t.Error("Expected the metric instruments to be created")
	}

	// Export failures are expected when the collector drops the connection.
	_ = ShutdownOTel(context.Background(), providers, logger)
}

func TestShutdownOTelNilProviders(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})

	if err := ShutdownOTel(context.Background(), nil, logger); err != nil {
		t.Errorf("Expected nil providers to shut down cleanly, got %v", err)
	}

	if err := ShutdownOTel(context.Background(), &OTelProviders{}, logger); err != nil {
		t.Errorf("Expected empty providers to shut down cleanly, got %v", err)
	}
}

func TestShutdownOTelLogsCompletion(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(InfoLevel, buf)

	providers := &OTelProviders{TracerProvider: sdktrace.NewTracerProvider()}

	if err := ShutdownOTel(context.Background(), providers, logger); err != nil {
		t.Fatalf("ShutdownOTel returned error: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "Shutting down OpenTelemetry providers") {
		t.Error("Expected shutdown start to be logged")
	}
	if !strings.Contains(output, "Tracer provider shutdown complete") {
		t.Error("Expected tracer provider completion to be logged")
	}
}

func TestUpdateLoggerWithTraceContext(t *testing.T) {
	t.Run("no active span", func(t *testing.T) {
		logger := NewLogger(InfoLevel, &bytes.Buffer{})
		updated := UpdateLoggerWithTraceContext(context.Background(), logger)
		if len(updated.fields) != 0 {
			t.Errorf("Expected no trace fields without a span, got %v", updated.fields)
		}
	})

	t.Run("recording span", func(t *testing.T) {
		tracer := sdktrace.NewTracerProvider().Tracer("pvs")
		ctx, span := tracer.Start(context.Background(), "convert")
		defer span.End()

		logger := NewLogger(InfoLevel, &bytes.Buffer{}).WithField("request_id", "r1")
		updated := UpdateLoggerWithTraceContext(ctx, logger)

		if v, ok := updated.fields["trace_id"].(string); !ok || v == "" {
			t.Error("Expected a non-empty trace_id field")
		}
		if v, ok := updated.fields["span_id"].(string); !ok || v == "" {
			t.Error("Expected a non-empty span_id field")
		}
		if updated.fields["request_id"] != "r1" {
			t.Error("Expected existing fields to survive the trace enrichment")
		}
	})

	t.Run("sampled out", func(t *testing.T) {
		tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.NeverSample()))
		ctx, span := tp.Tracer("pvs").Start(context.Background(), "convert")
		defer span.End()

		logger := NewLogger(InfoLevel, &bytes.Buffer{})
		updated := UpdateLoggerWithTraceContext(ctx, logger)
		if len(updated.fields) != 0 {
			t.Errorf("Expected no trace fields for a non-recording span, got %v", updated.fields)
		}
	})
}
