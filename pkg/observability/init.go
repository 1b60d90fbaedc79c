package observability

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ajitpratap0/mongobridge/pkg/config"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracingConfig contains tracing configuration
type TracingConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	// Output receives exported spans; stdout when nil
	Output io.Writer
	// PrettyPrint indents exported spans
	PrettyPrint bool
}

// TracingConfigFrom builds a TracingConfig from the observability section.
// Spans go to stderr, keeping stdout for command output, unless a trace
// file is configured. The file is opened for appending and returned so the
// caller can close it after Shutdown.
func TracingConfigFrom(cfg config.ObservabilityConfig, version string) (TracingConfig, io.Closer, error) {
	tc := TracingConfig{
		Enabled:        cfg.EnableTracing,
		ServiceName:    "mongobridge",
		ServiceVersion: version,
		Environment:    getEnv("MONGOBRIDGE_ENV", "development"),
	}
	if !cfg.EnableTracing {
		return tc, nil, nil
	}
	if cfg.TraceFile == "" {
		tc.Output = os.Stderr
		tc.PrettyPrint = true
		return tc, nil, nil
	}
	f, err := os.OpenFile(cfg.TraceFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return tc, nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	tc.Output = f
	return tc, f, nil
}

// newProvider builds the tracer provider for cfg. A disabled config gets a
// no-op provider so callers never branch on tracing being on.
func newProvider(cfg TracingConfig, exporter sdktrace.SpanExporter) (trace.TracerProvider, func(context.Context) error, error) {
	if !cfg.Enabled {
		return noop.NewTracerProvider(), func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if exporter == nil {
		opts := []stdouttrace.Option{}
		if cfg.Output != nil {
			opts = append(opts, stdouttrace.WithWriter(cfg.Output))
		}
		if cfg.PrettyPrint {
			opts = append(opts, stdouttrace.WithPrettyPrint())
		}
		exporter, err = stdouttrace.New(opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exporter),
	)
	return tp, tp.Shutdown, nil
}

// getEnv gets environment variable with default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
