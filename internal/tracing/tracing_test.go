package tracing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// restoreGlobals puts back the otel globals a test replaces.
func restoreGlobals(t *testing.T) {
	t.Helper()
	tp, prop := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(prop)
	})
}

func TestConfig_Validate(t *testing.T) {
	base := Config{ServiceName: "leaderboard-api", Enabled: true, SamplingRate: 0.1}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid", func(*Config) {}, nil},
		{"grpc exporter", func(c *Config) { c.ExporterType = ExporterOTLPGRPC }, nil},
		{"full sampling", func(c *Config) { c.SamplingRate = 1 }, nil},
		{"missing service name", func(c *Config) { c.ServiceName = "" }, ErrMissingServiceName},
		{"negative rate", func(c *Config) { c.SamplingRate = -0.5 }, ErrInvalidSamplingRate},
		{"rate above one", func(c *Config) { c.SamplingRate = 1.5 }, ErrInvalidSamplingRate},
		{"unknown exporter", func(c *Config) { c.ExporterType = "jaeger" }, ErrUnknownExporter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestNewProvider_Disabled(t *testing.T) {
	restoreGlobals(t)
	before := otel.GetTracerProvider()

	// Invalid settings are ignored while tracing is off.
	provider, err := NewProvider(context.Background(), Config{Enabled: false, SamplingRate: 7}, discardLogger())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Error("expected the global tracer provider to be left alone")
	}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Errorf("expected no shutdown error, got %v", err)
	}
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	restoreGlobals(t)

	_, err := NewProvider(context.Background(), Config{
		Enabled:      true,
		ServiceName:  "leaderboard-api",
		ExporterType: "zipkin",
	}, discardLogger())
	if !errors.Is(err, ErrUnknownExporter) {
		t.Errorf("expected ErrUnknownExporter, got %v", err)
	}
}

func TestNewProvider_Exporters(t *testing.T) {
	// OTLP exporters connect lazily, so construction succeeds offline.
	for _, exporter := range []string{"", ExporterOTLPHTTP, ExporterOTLPGRPC} {
		t.Run("exporter "+exporter, func(t *testing.T) {
			restoreGlobals(t)

			provider, err := NewProvider(context.Background(), Config{
				ServiceName:  "leaderboard-api",
				Enabled:      true,
				Environment:  "test",
				ExporterType: exporter,
				OTLPEndpoint: "127.0.0.1:4318",
				SamplingRate: 0,
				InsecureMode: true,
			}, discardLogger())
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if err := provider.Shutdown(context.Background()); err != nil {
				t.Errorf("expected no shutdown error, got %v", err)
			}
		})
	}
}

func TestNewProvider_ExportsLeaderboardSpans(t *testing.T) {
	restoreGlobals(t)
	exporter := tracetest.NewInMemoryExporter()

	provider, err := newProvider(context.Background(), Config{
		ServiceName:  "leaderboard-api",
		Environment:  "staging",
		SamplingRate: 1,
	}, sdktrace.WithSyncer(exporter))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	ctx, endRequest := StartSpan(context.Background(), "leaderboard.dataset")
	_, endQuery := StartDBSpan(ctx, "results", DBOperationQuery)
	endQuery(nil)
	endRequest(nil)

	if err := provider.Shutdown(context.Background()); err != nil {
		t.Fatalf("expected no shutdown error, got %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 exported spans, got %d", len(spans))
	}
	got := make(map[string]string)
	for _, kv := range spans[0].Resource.Attributes() {
		got[string(kv.Key)] = kv.Value.Emit()
	}
	expected := map[string]string{
		string(semconv.ServiceNameKey):           "leaderboard-api",
		string(semconv.ServiceVersionKey):        "dev",
		string(semconv.DeploymentEnvironmentKey): "staging",
	}
	for k, v := range expected {
		if got[k] != v {
			t.Errorf("expected resource %s=%q, got %q", k, v, got[k])
		}
	}
}

func TestNewProvider_Propagation(t *testing.T) {
	restoreGlobals(t)
	exporter := tracetest.NewInMemoryExporter()

	provider, err := newProvider(context.Background(), Config{ServiceName: "leaderboard-api", SamplingRate: 1},
		sdktrace.WithSyncer(exporter))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer provider.Shutdown(context.Background())

	ctx, endSpan := StartSpan(context.Background(), "leaderboard.combined_view")
	carrier := propagation.HeaderCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	endSpan(nil)

	if carrier.Get("traceparent") == "" {
		t.Fatal("expected a traceparent header to be injected")
	}
	extracted := trace.SpanContextFromContext(otel.GetTextMapPropagator().Extract(context.Background(), carrier))
	if extracted.TraceID() != exporter.GetSpans()[0].SpanContext.TraceID() {
		t.Errorf("expected trace %s to round trip, got %s", exporter.GetSpans()[0].SpanContext.TraceID(), extracted.TraceID())
	}
}

func TestSampler(t *testing.T) {
	sampledParent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x4b, 0xf9},
		SpanID:     trace.SpanID{0x01},
		TraceFlags: trace.FlagsSampled,
	})
	parentCtx := trace.ContextWithRemoteSpanContext(context.Background(), sampledParent)

	tests := []struct {
		name     string
		rate     float64
		parent   context.Context
		expected sdktrace.SamplingDecision
	}{
		{"zero rate drops new traces", 0, context.Background(), sdktrace.Drop},
		{"zero rate drops continued traces", 0, parentCtx, sdktrace.Drop},
		{"full rate records new traces", 1, context.Background(), sdktrace.RecordAndSample},
		{"partial rate follows a sampled parent", 0.01, parentCtx, sdktrace.RecordAndSample},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := sampler(tt.rate).ShouldSample(sdktrace.SamplingParameters{
				ParentContext: tt.parent,
				TraceID:       trace.TraceID{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
				Name:          "GET /api/v1/combined-view",
			})
			if result.Decision != tt.expected {
				t.Errorf("expected decision %v, got %v", tt.expected, result.Decision)
			}
		})
	}
}
