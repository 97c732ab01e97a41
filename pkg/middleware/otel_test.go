package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// setupSpanRecorder installs a recording tracer provider as the global
// provider for the duration of the test.
func setupSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return sr
}

func TestOpenTelemetrySpanPerRequest(t *testing.T) {
	sr := setupSpanRecorder(t)

	var handlerSpan trace.Span
	handler := OpenTelemetry()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerSpan = trace.SpanFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/hello_world", nil))

	if handlerSpan == nil || !handlerSpan.SpanContext().IsValid() {
		t.Fatal("handler did not see a span in the request context")
	}

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != "GET /hello_world" {
		t.Errorf("span name = %q, want %q", span.Name(), "GET /hello_world")
	}
	if span.SpanKind() != trace.SpanKindServer {
		t.Errorf("span kind = %v, want server", span.SpanKind())
	}
	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	if got := attrs["http.method"].AsString(); got != http.MethodGet {
		t.Errorf("http.method = %q, want %q", got, http.MethodGet)
	}
	if got := attrs["http.status_code"].AsInt64(); got != http.StatusOK {
		t.Errorf("http.status_code = %d, want %d", got, http.StatusOK)
	}
	if span.Status().Code != codes.Ok {
		t.Errorf("span status = %v, want Ok", span.Status().Code)
	}
}

func TestOpenTelemetryErrorStatusOn5xx(t *testing.T) {
	sr := setupSpanRecorder(t)

	handler := OpenTelemetry()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	status := spans[0].Status()
	if status.Code != codes.Error {
		t.Fatalf("span status = %v, want Error", status.Code)
	}
	if status.Description != http.StatusText(http.StatusInternalServerError) {
		t.Errorf("status description = %q, want %q", status.Description, http.StatusText(http.StatusInternalServerError))
	}
}

func TestOpenTelemetryFilterSkipsTracing(t *testing.T) {
	sr := setupSpanRecorder(t)

	nextCalled := false
	handler := OpenTelemetry(
		WithRequestFilter(func(r *http.Request) bool { return r.URL.Path != "/metrics" }),
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if !nextCalled {
		t.Fatal("filtered request did not reach the handler")
	}
	if n := len(sr.Ended()); n != 0 {
		t.Fatalf("recorded %d spans for a filtered request, want 0", n)
	}
}
