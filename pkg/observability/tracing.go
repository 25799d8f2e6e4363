package observability

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const serviceName = "seoflow"

var (
	tracerMu       sync.Mutex
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer = noop.NewTracerProvider().Tracer(serviceName)
)

// TracingConfig controls trace exporting.
type TracingConfig struct {
	// Enabled turns span export on. When false all spans are no-ops.
	Enabled bool
	// PrettyPrint makes the stdout exporter emit indented JSON.
	PrettyPrint bool
}

// InitTracing installs a stdout-exporting tracer provider. Call ShutdownTracing
// before process exit to flush spans.
func InitTracing(cfg TracingConfig) error {
	if !cfg.Enabled {
		return nil
	}

	opts := []stdouttrace.Option{}
	if cfg.PrettyPrint {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return fmt.Errorf("create stdout trace exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return fmt.Errorf("build trace resource: %w", err)
	}

	tracerMu.Lock()
	defer tracerMu.Unlock()
	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	tracer = tracerProvider.Tracer(serviceName)
	return nil
}

// ShutdownTracing flushes and stops the tracer provider.
func ShutdownTracing(ctx context.Context) error {
	tracerMu.Lock()
	tp := tracerProvider
	tracerMu.Unlock()
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

// StartSpan starts a span with the given name and attributes.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracerMu.Lock()
	tr := tracer
	tracerMu.Unlock()
	return tr.Start(ctx, name, trace.WithAttributes(attrs...))
}
