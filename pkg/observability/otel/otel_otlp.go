// Package otelobs wires OpenTelemetry tracing for the CTI service.
package otelobs

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otlptracehttp "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"

	"shieldx-cti/pkg/structlog"
)

// InitTracer sets up an OTLP HTTP exporter and returns a shutdown func.
// With an empty endpoint tracing stays on the global no-op provider.
func InitTracer(ctx context.Context, serviceName, endpoint string, logger *structlog.Logger) func(context.Context) error {
	noop := func(context.Context) error { return nil }
	if endpoint == "" {
		logger.Info("tracing disabled", structlog.Fields{"reason": "no OTLP endpoint"})
		return noop
	}
	exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	if err != nil {
		logger.Error("otlp exporter init failed", structlog.Fields{"error": err})
		return noop
	}
	res, err := resource.New(ctx, resource.WithAttributes(attribute.String("service.name", serviceName)))
	if err != nil {
		logger.Warn("otel resource init failed", structlog.Fields{"error": err})
	}
	tp := trace.NewTracerProvider(trace.WithBatcher(exp), trace.WithResource(res))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	logger.Info("tracing enabled", structlog.Fields{"endpoint": endpoint})
	return tp.Shutdown
}
