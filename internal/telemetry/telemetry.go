// Package telemetry bootstraps OpenTelemetry tracing for codecoder and
// exposes the small span/metric helpers its services actually call,
// adapted from the teacher's progressive-disclosure telemetry API (Level
// 1: Counter; span helpers for log/error correlation) and its otel.go
// provider bootstrap, trimmed to a single exporter choice instead of a
// full registry/cardinality/rate-limiter pipeline.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Exporter selects where spans are sent.
type Exporter string

const (
	// ExporterStdout prints spans to stdout; the default for local runs.
	ExporterStdout Exporter = "stdout"
	// ExporterOTLP ships spans to an OTLP/gRPC collector.
	ExporterOTLP Exporter = "otlp"
)

var (
	shutdownOnce sync.Once
	tracer       = otel.Tracer("codecoder")
	meter        = otel.Meter("codecoder")

	countersMu sync.Mutex
	counters   = map[string]metric.Int64Counter{}
)

// Init wires a TracerProvider for serviceName using exporter, registers
// it as the global provider, and returns a shutdown func to flush
// pending spans on process exit. Call once at startup (spec.md §2:
// structured logging and tracing are carried regardless of the spec's
// UI/LLM-serialization non-goals).
func Init(ctx context.Context, serviceName string, exporter Exporter, otlpEndpoint string) (func(context.Context) error, error) {
	exp, err := newSpanExporter(ctx, exporter, otlpEndpoint)
	if err != nil {
		return nil, fmt.Errorf("build span exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tracer = tp.Tracer(serviceName)

	return func(shutdownCtx context.Context) error {
		var shutdownErr error
		shutdownOnce.Do(func() {
			shutdownErr = tp.Shutdown(shutdownCtx)
		})
		return shutdownErr
	}, nil
}

func newSpanExporter(ctx context.Context, exporter Exporter, otlpEndpoint string) (sdktrace.SpanExporter, error) {
	switch exporter {
	case ExporterOTLP:
		if otlpEndpoint == "" {
			otlpEndpoint = "localhost:4317"
		}
		return otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(otlpEndpoint), otlptracegrpc.WithInsecure())
	default:
		return stdouttrace.New(stdouttrace.WithoutTimestamps())
	}
}

// AddSpanEvent marks a meaningful point in time within the span carried
// by ctx. Safe to call with no active span or a nil ctx.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}

// RecordSpanError records err on the span carried by ctx and marks the
// span as failed. Safe to call with no active span, a nil ctx, or a nil
// err.
func RecordSpanError(ctx context.Context, err error) {
	if ctx == nil || err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// Counter increments a named counter metric by 1, with labels given as
// alternating key/value pairs (spec.md §2's structured-logging/metrics
// ambient stack). The underlying otel/metric instrument is created once
// per name and reused.
func Counter(name string, labels ...string) {
	counter, err := counterFor(name)
	if err != nil {
		return
	}
	counter.Add(context.Background(), 1, metric.WithAttributes(labelsToAttributes(labels)...))
}

func counterFor(name string) (metric.Int64Counter, error) {
	countersMu.Lock()
	defer countersMu.Unlock()
	if c, ok := counters[name]; ok {
		return c, nil
	}
	c, err := meter.Int64Counter(name)
	if err != nil {
		return nil, err
	}
	counters[name] = c
	return c, nil
}

func labelsToAttributes(labels []string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels)/2)
	for i := 0; i+1 < len(labels); i += 2 {
		attrs = append(attrs, attribute.String(labels[i], labels[i+1]))
	}
	return attrs
}

// TracingMiddleware wraps next with automatic span creation and W3C
// trace-context propagation for incoming HTTP requests, matching the
// teacher's server-side instrumentation convention.
func TracingMiddleware(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName)
	}
}

// TracedTransport wraps base (http.DefaultTransport when nil) so
// outbound requests propagate trace context to downstream services —
// used by the Proxy Dispatcher's upstream client (spec §4.15).
func TracedTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return otelhttp.NewTransport(base)
}

// StartSpan starts a span named name under ctx's current trace, for
// components that need an explicit span boundary rather than relying on
// TracingMiddleware/TracedTransport.
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}
