// Package pipeline sequences the CTI stages for each event:
//
//	Start -> Normalized -> AnomalyChecked -> [Classified -> Explained] -> RiskAssessed -> Responded -> Done
//
// The bracketed branch runs only for anomalous events. Stage failures are
// recorded on the state and never stop the pass.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"shieldx-cti/pkg/event"
	"shieldx-cti/pkg/explain"
	"shieldx-cti/pkg/features"
	"shieldx-cti/pkg/metrics"
	"shieldx-cti/pkg/ml"
	"shieldx-cti/pkg/response"
	"shieldx-cti/pkg/risk"
	"shieldx-cti/pkg/structlog"
)

const instrumentation = "shieldx-cti/pipeline"

// ErrInvalidEvent is returned when a payload cannot be turned into an
// Event at all. It is the only hard failure of a pipeline pass.
var ErrInvalidEvent = errors.New("invalid event")

// Detector is the anomaly oracle contract used by the orchestrator.
type Detector interface {
	Infer(v *features.Vector) ml.AnomalyResult
}

// Classifier is the threat classifier contract used by the orchestrator.
type Classifier interface {
	Infer(isAnomaly bool, v *features.Vector) ml.ClassificationResult
}

// Orchestrator runs events through the stage machine. It holds no
// per-event state and is safe for concurrent use.
type Orchestrator struct {
	normalizer *features.Normalizer
	detector   Detector
	classifier Classifier

	logger  *structlog.Logger
	metrics *metrics.Pipeline
	tracer  trace.Tracer
	events  otelmetric.Int64Counter
	now     func() time.Time
	newID   func() string
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *structlog.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *metrics.Pipeline) Option { return func(o *Orchestrator) { o.metrics = m } }

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option { return func(o *Orchestrator) { o.tracer = t } }

// WithClock overrides time.Now for report timestamps.
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

// WithIDGenerator overrides the event id generator.
func WithIDGenerator(f func() string) Option { return func(o *Orchestrator) { o.newID = f } }

// New returns an orchestrator over the two oracles.
func New(detector Detector, classifier Classifier, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		normalizer: features.New(),
		detector:   detector,
		classifier: classifier,
		logger:     structlog.Nop(),
		tracer:     otel.Tracer(instrumentation),
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	counter, err := otel.Meter(instrumentation).Int64Counter("cti.events.processed",
		otelmetric.WithDescription("Events that reached the Done stage."))
	if err == nil {
		o.events = counter
	}
	return o
}

// Decode parses one JSON object into an Event.
func Decode(data []byte) (event.Event, error) {
	var ev event.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if ev == nil {
		return nil, fmt.Errorf("%w: payload is not an object", ErrInvalidEvent)
	}
	return ev, nil
}

// ProcessJSON decodes data and processes it. Undecodable payloads fail
// with ErrInvalidEvent.
func (o *Orchestrator) ProcessJSON(ctx context.Context, data []byte) (State, error) {
	ev, err := Decode(data)
	if err != nil {
		return State{}, err
	}
	return o.Process(ctx, ev), nil
}

// Process runs one event to Done and returns the terminal snapshot.
func (o *Orchestrator) Process(ctx context.Context, ev event.Event) State {
	id := ev.ID()
	if id == "" {
		id = o.newID()
	}
	ctx, span := o.tracer.Start(ctx, "cti.process", trace.WithAttributes(attribute.String("cti.event_id", id)))
	defer span.End()

	s := NewState(ev, id, o.now())
	s = o.step(ctx, s, "normalize", o.normalize)
	if s.Stage == StageNormalized {
		s = o.step(ctx, s, "detect", o.detect)
		if s.Anomaly.IsAnomaly {
			s = o.step(ctx, s, "classify", o.classify)
			s = o.step(ctx, s, "explain", o.explain)
		}
	}
	s = o.step(ctx, s, "risk_assess", o.assess)
	s = o.step(ctx, s, "respond", o.respond)
	s = o.finish(s)

	span.SetAttributes(
		attribute.Bool("cti.is_anomaly", s.Anomaly.IsAnomaly),
		attribute.String("cti.threat_type", s.Classification.ThreatType),
		attribute.String("cti.risk_level", string(s.Risk.Level)),
		attribute.String("cti.status", s.Status),
	)
	o.metrics.ObserveReport(string(s.Risk.Level))
	if o.events != nil {
		o.events.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("risk_level", string(s.Risk.Level))))
	}
	return s
}

type stageFunc func(State) State

func (o *Orchestrator) step(ctx context.Context, s State, name string, fn stageFunc) State {
	_, span := o.tracer.Start(ctx, "cti."+name)
	start := time.Now()
	next := fn(s)
	o.metrics.ObserveStage(name, time.Since(start))
	if len(next.Errors) > len(s.Errors) {
		msg := next.Errors[len(next.Errors)-1].Message
		span.SetAttributes(attribute.String("cti.stage_error", msg))
		o.metrics.StageFailed(name)
		o.logger.Warn("stage degraded", structlog.Fields{"event_id": s.EventID, "stage": name, "error": msg})
	}
	span.End()
	return next
}

func (o *Orchestrator) normalize(s State) State {
	v, err := o.normalizer.Normalize(s.Event)
	if err != nil {
		// features stay nil; downstream stages keep their Normal defaults
		return s.fail(StageNormalized, err.Error())
	}
	next := s.advance(StageNormalized)
	next.Features = &v
	return next
}

func (o *Orchestrator) detect(s State) State {
	res := o.detector.Infer(s.Features)
	o.metrics.ObserveOracle("anomaly", res.Status)
	next := s.advance(StageAnomalyChecked)
	next.Anomaly = res
	if res.Status == ml.StatusError {
		next = next.fail(StageAnomalyChecked, res.Error)
	}
	return next
}

func (o *Orchestrator) classify(s State) State {
	res := o.classifier.Infer(s.Anomaly.IsAnomaly, s.Features)
	o.metrics.ObserveOracle("classifier", res.Status)
	next := s.advance(StageClassified)
	next.Classification = res
	if res.Status == ml.StatusError {
		next = next.fail(StageClassified, res.Error)
	}
	return next
}

func (o *Orchestrator) explain(s State) State {
	next := s.advance(StageExplained)
	next.Explanation = explain.Explain(s.Event, s.Anomaly.IsAnomaly, s.Classification.ThreatType, s.Anomaly.Score)
	return next
}

func (o *Orchestrator) assess(s State) State {
	next := s.advance(StageRiskAssessed)
	next.Risk = risk.Assess(s.Anomaly.IsAnomaly, s.Classification.ThreatType, s.Anomaly.Score)
	return next
}

func (o *Orchestrator) respond(s State) State {
	next := s.advance(StageResponded)
	next.Response = response.Plan(s.Risk.Level, s.Classification.ThreatType, s.Event)
	return next
}

func (o *Orchestrator) finish(s State) State {
	next := s.advance(StageDone)
	switch {
	case next.Features == nil:
		next.Status = StatusFailed
	case next.Failed():
		next.Status = StatusDegraded
	default:
		next.Status = StatusSuccess
	}
	return next
}
