package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// OTelExporter pushes OpenTelemetry metrics over OTLP/HTTP.
type OTelExporter struct {
	provider *metric.MeterProvider
	shutdown func(context.Context) error
}

// NewOTelExporter creates a periodic OTLP exporter and installs it as the
// global meter provider.
func NewOTelExporter(ctx context.Context, serviceName, endpoint string, interval time.Duration) (*OTelExporter, error) {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	exporter, err := otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(endpoint),
		otlpmetrichttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(exporter, metric.WithInterval(interval))),
		metric.WithResource(res),
	)
	otel.SetMeterProvider(provider)

	return &OTelExporter{provider: provider, shutdown: provider.Shutdown}, nil
}

// Shutdown flushes and stops the exporter.
func (e *OTelExporter) Shutdown(ctx context.Context) error {
	if e == nil || e.shutdown == nil {
		return nil
	}
	return e.shutdown(ctx)
}
