// Package observability provides OpenTelemetry tracing for Stockpile.
// Spans are emitted around bundle loads and payload fetches so that slow
// dependency chains and remote sources can be diagnosed in production.
package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	tracer   trace.Tracer = noop.NewTracerProvider().Tracer("stockpile")
	provider *sdktrace.TracerProvider
	initOnce sync.Once
)

// Config contains tracing configuration.
type Config struct {
	// ServiceName labels every emitted span
	ServiceName string
	// SamplingRate is the fraction of traces sampled (1.0 = all)
	SamplingRate float64
	// Pretty enables multi-line exporter output for local debugging
	Pretty bool
}

// Initialize sets up the tracer provider with a stdout exporter.
// Until Initialize is called, Tracer returns a no-op tracer, so
// instrumented code paths do not need to guard span creation.
func Initialize(cfg Config) error {
	var err error

	initOnce.Do(func() {
		var opts []stdouttrace.Option
		if cfg.Pretty {
			opts = append(opts, stdouttrace.WithPrettyPrint())
		}

		var exporter *stdouttrace.Exporter
		exporter, err = stdouttrace.New(opts...)
		if err != nil {
			return
		}

		sampler := sdktrace.AlwaysSample()
		if cfg.SamplingRate > 0 && cfg.SamplingRate < 1 {
			sampler = sdktrace.TraceIDRatioBased(cfg.SamplingRate)
		}

		provider = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithSampler(sampler),
		)
		otel.SetTracerProvider(provider)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))

		name := cfg.ServiceName
		if name == "" {
			name = "stockpile"
		}
		tracer = provider.Tracer(name)
	})

	return err
}

// Tracer returns the global tracer.
func Tracer() trace.Tracer {
	return tracer
}

// Shutdown flushes pending spans and releases exporter resources.
func Shutdown(ctx context.Context) error {
	if provider == nil {
		return nil
	}
	return provider.Shutdown(ctx)
}

// StartSpan starts a span with the given name and attributes.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// EndSpan records err on the span (if non-nil) and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
