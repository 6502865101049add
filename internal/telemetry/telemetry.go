package telemetry

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config selects the OTLP collector and names the service in exported spans.
type Config struct {
	ServiceName    string
	ServiceVersion string
	// Endpoint is host:port of an OTLP gRPC collector. Empty disables export.
	Endpoint string
	Insecure bool
}

// Shutdown flushes pending spans and stops the provider.
type Shutdown func(context.Context) error

func noop(context.Context) error { return nil }

// Setup installs a global tracer provider exporting to cfg.Endpoint. Without an
// endpoint nothing is installed and the returned Shutdown does nothing.
func Setup(ctx context.Context, cfg Config, logger zerolog.Logger) (Shutdown, error) {
	if cfg.Endpoint == "" {
		logger.Debug().Msg("tracing export disabled: no OTLP endpoint")
		return noop, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return noop, fmt.Errorf("otlp exporter: %w", err)
	}

	shutdown, err := Install(ctx, cfg, sdktrace.WithBatcher(exporter))
	if err != nil {
		_ = exporter.Shutdown(ctx)
		return noop, err
	}
	logger.Info().Str("endpoint", cfg.Endpoint).Str("service", cfg.ServiceName).Msg("tracing export enabled")
	return shutdown, nil
}

// Install builds a tracer provider with the service resource and the given
// span processors and sets it as the global provider.
func Install(ctx context.Context, cfg Config, processors ...sdktrace.TracerProviderOption) (Shutdown, error) {
	attrs := resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	)
	res, err := resource.New(ctx, attrs)
	if err != nil {
		return noop, fmt.Errorf("otel resource: %w", err)
	}

	opts := append([]sdktrace.TracerProviderOption{sdktrace.WithResource(res)}, processors...)
	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}
