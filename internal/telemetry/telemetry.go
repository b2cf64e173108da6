// Package telemetry wires opt-in OpenTelemetry tracing for flightbreak.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Environment variables controlling tracing.
const (
	EnvEndpoint = "FLIGHTBREAK_OTEL_ENDPOINT"
	EnvEnabled  = "FLIGHTBREAK_OTEL_ENABLED"
)

// ShutdownFunc flushes pending spans.
type ShutdownFunc func(context.Context) error

// Enabled reports whether Setup would install an exporter.
func Enabled() bool {
	if strings.EqualFold(os.Getenv(EnvEnabled), "false") {
		return false
	}
	return os.Getenv(EnvEndpoint) != ""
}

// Setup installs an OTLP/HTTP tracer provider as the global provider.
//
// Tracing is opt-in: when FLIGHTBREAK_OTEL_ENDPOINT is empty or
// FLIGHTBREAK_OTEL_ENABLED is "false", Setup returns a no-op shutdown and
// spans started through otel.Tracer are discarded.
func Setup(ctx context.Context, service, version string) (ShutdownFunc, error) {
	noop := func(context.Context) error { return nil }
	if !Enabled() {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(os.Getenv(EnvEndpoint)),
	)
	if err != nil {
		return noop, fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(service),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return noop, fmt.Errorf("build otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}
