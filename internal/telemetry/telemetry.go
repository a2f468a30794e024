// Package telemetry sets up OpenTelemetry tracing for session and capture
// spans.
package telemetry

import (
	"context"
	"fmt"

	"github.com/caarlos0/env/v11"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/cjeanneret/camctl/internal/debug"
)

// ServiceName is reported as the service.name resource attribute.
const ServiceName = "camctl"

// Settings are read from the environment.
type Settings struct {
	Endpoint string `env:"CAMCTL_OTEL_ENDPOINT"`
	Enabled  bool   `env:"CAMCTL_OTEL_ENABLED" envDefault:"true"`
}

// Shutdown flushes pending spans.
type Shutdown func(context.Context) error

func noop(context.Context) error { return nil }

// Setup installs a global tracer provider exporting over OTLP/HTTP.
//
// Tracing is opt-in: without CAMCTL_OTEL_ENDPOINT, or with
// CAMCTL_OTEL_ENABLED=false, Setup returns a no-op shutdown and leaves the
// global provider alone, so spans cost nothing.
func Setup(ctx context.Context) (Shutdown, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return noop, fmt.Errorf("parse env: %w", err)
	}
	return SetupWith(ctx, s)
}

// SetupWith is Setup with explicit settings.
func SetupWith(ctx context.Context, s Settings) (Shutdown, error) {
	if !s.Enabled || s.Endpoint == "" {
		debug.Verbose("Telemetry: tracing disabled")
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(s.Endpoint))
	if err != nil {
		return noop, fmt.Errorf("otlp exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(ServiceName)))
	if err != nil {
		return noop, fmt.Errorf("otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	debug.Info("Telemetry: exporting traces to %s", s.Endpoint)
	return tp.Shutdown, nil
}
