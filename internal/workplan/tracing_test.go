package workplan

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/robert-malhotra/ewoc-work-plan/internal/tiles"
)

func spanAttr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestBuild_TileSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer provider.Shutdown(context.Background())

	f := newFixture("31TCJ")
	f.asm.WithTracer(provider.Tracer("test"))

	if _, err := f.asm.Build(context.Background(), request("31TCJ")); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name() != "workplan.tile" {
		t.Errorf("expected span workplan.tile, got %s", span.Name())
	}
	if v, ok := spanAttr(span, "tile"); !ok || v.AsString() != "31TCJ" {
		t.Errorf("expected tile attribute 31TCJ, got %v", v)
	}
	if v, ok := spanAttr(span, "s2_nb"); !ok || v.AsInt64() != 3 {
		t.Errorf("expected s2_nb attribute 3, got %v", v)
	}
	if span.Status().Code == codes.Error {
		t.Errorf("expected a successful span, got %v", span.Status())
	}
}

func TestBuild_FailedTileSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer provider.Shutdown(context.Background())

	f := newFixture("31TCJ")
	f.asm.footprints = tiles.NewGrid(map[string]string{"32ABC": footprint})
	f.asm.WithTracer(provider.Tracer("test"))

	if _, err := f.asm.Build(context.Background(), request("32ABC")); err == nil {
		t.Fatal("expected a fatal tile error")
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", spans[0].Status())
	}
	if len(spans[0].Events()) == 0 {
		t.Error("expected the error recorded as a span event")
	}
}
