// Package telemetry sets up OpenTelemetry tracing
package telemetry

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Version is reported as service.version
var Version = "dev"

// Settings configures the tracer provider
type Settings struct {
	Endpoint     string // OTLP gRPC endpoint; empty disables export
	ServiceName  string
	SamplingRate float64
}

// Provider is the configured tracer provider and its shutdown hook
type Provider struct {
	trace.TracerProvider
	shutdown func(context.Context) error
}

// Shutdown flushes pending spans and releases the exporter
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.shutdown == nil {
		return nil
	}
	return p.shutdown(ctx)
}

// Setup builds a tracer provider and installs it globally. Without an
// endpoint it installs a no-op provider.
func Setup(ctx context.Context, s Settings, logger zerolog.Logger) (*Provider, error) {
	if s.Endpoint == "" {
		tp := noop.NewTracerProvider()
		otel.SetTracerProvider(tp)
		logger.Debug().Msg("Tracing disabled; no OTLP endpoint configured")
		return &Provider{TracerProvider: tp}, nil
	}

	var endpointOpt otlptracegrpc.Option
	if strings.Contains(s.Endpoint, "://") {
		endpointOpt = otlptracegrpc.WithEndpointURL(s.Endpoint)
	} else {
		endpointOpt = otlptracegrpc.WithEndpoint(s.Endpoint)
	}
	exporter, err := otlptracegrpc.New(ctx, endpointOpt, otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("create OTLP trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(s.ServiceName),
			semconv.ServiceVersion(Version),
		),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(Sampler(s.SamplingRate))),
		sdktrace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info().
		Str("endpoint", s.Endpoint).
		Float64("sampling_rate", s.SamplingRate).
		Msg("Tracing enabled")
	return &Provider{TracerProvider: tp, shutdown: tp.Shutdown}, nil
}

// Sampler maps a sampling rate onto a root sampler
func Sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}
