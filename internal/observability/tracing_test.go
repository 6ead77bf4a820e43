package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/signalsfoundry/rackplan/internal/logging"
)

func TestTracingConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("RACKPLAN_TRACING_ENABLED", "")
	t.Setenv("RACKPLAN_TRACING_EXPORTER", "")
	t.Setenv("RACKPLAN_TRACING_SAMPLE_RATIO", "7")

	cfg := TracingConfigFromEnv()
	if cfg.Enabled {
		t.Fatalf("tracing should default to disabled")
	}
	if cfg.Exporter != "stdout" || cfg.ServiceName != "rackplan" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.SampleRatio != 1 {
		t.Fatalf("out-of-range ratio should be ignored, got %v", cfg.SampleRatio)
	}
}

func TestInitTracingStdoutExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()
	shutdown, err := InitTracing(ctx, TracingConfig{
		Enabled:     true,
		ServiceName: "rackplan-test",
		Exporter:    "stdout",
		SampleRatio: 1,
		Writer:      &buf,
	}, logging.Noop())
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}

	_, span := StartSpan(ctx, "link/connect", "link", "l-1")
	span.End()

	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !strings.Contains(buf.String(), "link/connect") {
		t.Fatalf("expected exported span in stdout exporter output, got %q", buf.String())
	}
}

func TestInitTracingRejectsUnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin"}, nil)
	if err == nil {
		t.Fatalf("expected error for unsupported exporter")
	}
}
