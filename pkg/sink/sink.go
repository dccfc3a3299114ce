// Package sink delivers finished reports to downstream consumers.
package sink

import (
	"context"
	"errors"
	"fmt"

	"shieldx-cti/pkg/event"
	"shieldx-cti/pkg/metrics"
	"shieldx-cti/pkg/structlog"
)

// Sink accepts finished reports.
type Sink interface {
	Name() string
	Emit(ctx context.Context, r event.Report) error
}

// Fanout emits to every sink. A failing sink is logged and counted and
// does not stop delivery to the others.
type Fanout struct {
	sinks   []Sink
	logger  *structlog.Logger
	metrics *metrics.Pipeline
}

// NewFanout returns a fan-out over sinks, skipping nil entries.
func NewFanout(logger *structlog.Logger, m *metrics.Pipeline, sinks ...Sink) *Fanout {
	if logger == nil {
		logger = structlog.Nop()
	}
	f := &Fanout{logger: logger, metrics: m}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Name implements Sink.
func (f *Fanout) Name() string { return "fanout" }

// Len returns the number of configured sinks.
func (f *Fanout) Len() int { return len(f.sinks) }

// Emit implements Sink. The returned error joins every sink failure.
func (f *Fanout) Emit(ctx context.Context, r event.Report) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Emit(ctx, r); err != nil {
			f.metrics.SinkFailed(s.Name())
			f.logger.WithContext(ctx).Warn("report sink failed", structlog.Fields{
				"sink":     s.Name(),
				"event_id": r.EventID,
				"error":    err,
			})
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// EmitAll emits each report in order.
func (f *Fanout) EmitAll(ctx context.Context, reports []event.Report) error {
	var errs []error
	for _, r := range reports {
		if err := f.Emit(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
