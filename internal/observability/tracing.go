// Package observability wires OTLP trace export into Genkit's tracer
// provider.
package observability

import (
	"context"
	"os"
	"time"

	"github.com/firebase/genkit/go/core/tracing"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/solace-labs/solace/internal/config"
	"github.com/solace-labs/solace/internal/log"
)

const shutdownTimeout = 5 * time.Second

// Setup registers an OTLP HTTP exporter with Genkit's TracerProvider.
// Must run before genkit.Init so the provider is ready when flows
// start. Returns a shutdown function; with no endpoint configured,
// tracing is disabled and the shutdown is a no-op.
//
// The exporter targets a local collector (agent sidecar), which owns
// authentication, buffering, and forwarding.
func Setup(ctx context.Context, cfg config.TracingConfig, logger log.Logger) func() {
	if cfg.Endpoint == "" {
		logger.Debug("tracing disabled, no OTLP endpoint configured")
		return func() {}
	}

	// OTEL env vars are how Genkit's TracerProvider picks up resource
	// attributes. Setenv here is safe: Setup runs exactly once during
	// startup, before any goroutines spawn.
	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}
	if cfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(), // local collector, no TLS
	)
	if err != nil {
		logger.Warn("creating OTLP exporter, tracing disabled", "error", err)
		return func() {}
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Info("tracing enabled",
		"endpoint", cfg.Endpoint,
		"service", cfg.ServiceName,
		"environment", cfg.Environment)

	shutdown := tracing.TracerProvider().Shutdown
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}
