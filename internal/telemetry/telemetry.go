// Package telemetry configures OpenTelemetry tracing for DittoNS.
//
// When enabled, spans opened by the namespace engine and the HTTP adapter
// are exported over OTLP/HTTP. When disabled, the global tracer provider
// stays the OpenTelemetry no-op and spans cost nothing.
package telemetry

import (
	"context"
	"fmt"
	"strings"

	"github.com/marmos91/dittons/internal/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
)

var log = logger.With("telemetry")

const serviceName = "dittons"

// Config holds the tracing configuration.
type Config struct {
	// Enabled turns on span export.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP/HTTP collector, e.g. "localhost:4318" or a full
	// URL such as "https://otel.example.com:4318".
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint" validate:"required_if=Enabled true"`

	// Insecure disables TLS towards a host:port endpoint.
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRatio is the fraction of root traces recorded (0 to 1).
	SampleRatio float64 `mapstructure:"sample_ratio" yaml:"sample_ratio" validate:"min=0,max=1"`
}

// Provider owns the tracer provider installed globally by NewProvider.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// NewProvider installs the global tracer provider and propagator.
//
// With tracing disabled only the W3C propagator is installed, so trace
// context still flows through the HTTP adapter to upstream spans.
func NewProvider(ctx context.Context, config Config, version string) (*Provider, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !config.Enabled {
		log.Debug("Tracing disabled")
		return &Provider{}, nil
	}

	exporter, err := otlptracehttp.New(ctx, exporterOptions(config)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res := resource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(version),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(config.SampleRatio))),
	)
	otel.SetTracerProvider(tp)

	log.Info("Tracing enabled: endpoint=%s sample_ratio=%.2f", config.Endpoint, config.SampleRatio)
	return &Provider{tp: tp}, nil
}

func exporterOptions(config Config) []otlptracehttp.Option {
	if strings.Contains(config.Endpoint, "://") {
		return []otlptracehttp.Option{otlptracehttp.WithEndpointURL(config.Endpoint)}
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(config.Endpoint)}
	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return opts
}

// Enabled reports whether spans are exported.
func (p *Provider) Enabled() bool {
	return p.tp != nil
}

// Shutdown flushes pending spans and stops the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	log.Debug("Shutting down tracer provider")
	return p.tp.Shutdown(ctx)
}
