package telemetry

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"bad exporter", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "jaeger" }, true},
		{"otlp without endpoint", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "otlp" }, true},
		{"sampling out of range", func(c *Config) { c.Tracing.SamplingRate = 1.5 }, true},
		{"missing version", func(c *Config) { c.ServiceVersion = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LoggingConfig{Level: "debug", Format: "json"})

	logger.NewComponentLogger("engine").WithPassID("p-1").WithProject("demo", "/p").Info("hello")

	out := buf.String()
	for _, want := range []string{`"component":"engine"`, `"pass_id":"p-1"`, `"project":"demo"`, `"message":"hello"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log line %q missing %s", out, want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"WARNING": zerolog.WarnLevel,
		" error ": zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFromContextWithoutLogger(t *testing.T) {
	// Must not panic and must not write anywhere.
	FromContext(context.Background()).Info("dropped")
}

func TestMetricsRecording(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatal(err)
	}

	m.RecordPassStarted()
	m.RecordPassCompleted("succeeded", 10*time.Millisecond)
	m.RecordFileWrite(true)
	m.RecordFileWrite(false)
	m.RecordFileWrite(false)
	m.RecordError("ConfigurationError")
	m.RecordUpdateCheck("update")
	m.SetDeclarations("sources", 3)

	if got := testutil.ToFloat64(m.passesStarted); got != 1 {
		t.Errorf("passes started = %v", got)
	}
	if got := testutil.ToFloat64(m.filesWritten.WithLabelValues("unchanged")); got != 2 {
		t.Errorf("unchanged files = %v", got)
	}
	if got := testutil.ToFloat64(m.declarations.WithLabelValues("sources")); got != 3 {
		t.Errorf("sources gauge = %v", got)
	}
}

func TestDisabledMetricsAreNoops(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false, TextfilePath: filepath.Join(t.TempDir(), "m.prom")})
	if err != nil {
		t.Fatal(err)
	}
	m.RecordPassStarted()
	m.RecordStage("render", time.Second, nil)
	m.RecordPolicyFinding("p", "warning")
	if err := m.WriteTextfile(); err != nil {
		t.Errorf("WriteTextfile() error = %v", err)
	}
	if m.registry != nil {
		t.Error("disabled metrics have a registry")
	}
}

func TestWriteTextfile(t *testing.T) {
	cfg := DefaultConfig().Metrics
	cfg.TextfilePath = filepath.Join(t.TempDir(), "geobuild.prom")
	m, err := NewMetrics(cfg)
	if err != nil {
		t.Fatal(err)
	}
	m.RecordPassStarted()

	if err := m.WriteTextfile(); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}
	data, err := os.ReadFile(cfg.TextfilePath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "geobuild_passes_started_total 1") {
		t.Errorf("textfile missing counter:\n%s", data)
	}
}

func TestStageRecordsSpanAndMetric(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tel := Nop()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	tel.Tracer = &Tracer{provider: provider, tracer: provider.Tracer("geobuild"), config: TracingConfig{Enabled: true}}

	ctx := tel.WithContext(context.Background())
	ok := StartStage(ctx, "render")
	ok.End(nil)
	failed := StartStage(ctx, "script")
	failed.End(errors.New("boom"))

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	if spans[0].Name != "pass.render" || spans[0].Status.Code != codes.Ok {
		t.Errorf("first span = %s %v", spans[0].Name, spans[0].Status)
	}
	if spans[1].Status.Code != codes.Error || spans[1].Status.Description != "boom" {
		t.Errorf("failed span status = %v", spans[1].Status)
	}

	if n := testutil.CollectAndCount(tel.Metrics.stageDuration); n != 2 {
		t.Errorf("stage histogram series = %d, want 2", n)
	}
}

func TestStageWithoutTelemetry(t *testing.T) {
	st := StartStage(context.Background(), "render")
	if st.Span != nil {
		t.Error("span started without telemetry")
	}
	st.End(nil)
}
