package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestDefaultTracerConfig(t *testing.T) {
	cfg := DefaultTracerConfig("dockerkit")
	if cfg.ServiceName != "dockerkit" {
		t.Errorf("expected ServiceName 'dockerkit', got %s", cfg.ServiceName)
	}
	if cfg.Endpoint != "localhost:4318" {
		t.Errorf("expected Endpoint 'localhost:4318', got %s", cfg.Endpoint)
	}
	if cfg.SampleRate != 1.0 || !cfg.Insecure {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.Enabled {
		t.Error("tracing must be off by default")
	}
}

func TestDefaultMeterConfig(t *testing.T) {
	cfg := DefaultMeterConfig("dockerkit")
	if cfg.Interval != 15*time.Second {
		t.Errorf("expected Interval 15s, got %v", cfg.Interval)
	}
}

func TestStartSpanAndEndSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	_, span := StartSpan(context.Background(), SpanProcessExecute)
	EndSpan(span, errors.New("spawn failed"))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != SpanProcessExecute {
		t.Errorf("expected span name %q, got %q", SpanProcessExecute, spans[0].Name())
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", spans[0].Status().Code)
	}
	if len(spans[0].Events()) != 1 {
		t.Errorf("expected recorded error event, got %d events", len(spans[0].Events()))
	}
}

func TestNewResource(t *testing.T) {
	res, err := newResource("dockerkit", "1.2.3", "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := map[string]string{}
	for _, kv := range res.Attributes() {
		found[string(kv.Key)] = kv.Value.Emit()
	}
	if found[AttrServiceName] != "dockerkit" || found[AttrServiceVersion] != "1.2.3" || found[AttrEnvironment] != "test" {
		t.Errorf("unexpected resource attributes %v", found)
	}
}

func TestProcessMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	pm, err := NewProcessMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("unexpected error creating metrics: %v", err)
	}

	ctx := context.Background()
	pm.RecordStart(ctx, "docker", "blocking")
	pm.RecordExit(ctx, "docker", 0, 20*time.Millisecond)
	pm.RecordSpawnFailure(ctx, "nope")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}
	for _, want := range []string{"process.started", "process.exited", "process.duration", "process.active", "process.spawn_failed"} {
		if !names[want] {
			t.Errorf("expected metric %q to be recorded, got %v", want, names)
		}
	}
}
