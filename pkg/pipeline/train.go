package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"shieldx-cti/pkg/event"
	"shieldx-cti/pkg/features"
	"shieldx-cti/pkg/metrics"
	"shieldx-cti/pkg/structlog"
)

// ErrNoTrainingData is returned when a batch yields no usable vectors.
var ErrNoTrainingData = errors.New("no usable training samples")

// DetectorTrainer is the training side of the anomaly oracle.
type DetectorTrainer interface {
	Train(ctx context.Context, vectors []features.Vector) error
}

// ClassifierTrainer is the training side of the threat classifier.
type ClassifierTrainer interface {
	Train(ctx context.Context, vectors []features.Vector, labels []string) error
	Classes() []string
}

// LabelFunc derives the ground-truth label of a training event.
type LabelFunc func(event.Event) string

// Dataset holds parallel feature vectors and labels.
type Dataset struct {
	Vectors []features.Vector
	Labels  []string
	// Skipped counts events dropped for having no resolvable numeric fields.
	Skipped int
}

// BuildDataset normalizes events and labels them. Events whose vector
// sums to zero carry no signal and are skipped.
func BuildDataset(events []event.Event, label LabelFunc) Dataset {
	var ds Dataset
	n := features.New()
	for _, ev := range events {
		v, err := n.Normalize(ev)
		if err != nil || v.Sum() == 0 {
			ds.Skipped++
			continue
		}
		ds.Vectors = append(ds.Vectors, v)
		ds.Labels = append(ds.Labels, label(ev))
	}
	return ds
}

// TrainResult summarises one training job.
type TrainResult struct {
	JobID    string        `json:"job_id"`
	Samples  int           `json:"samples"`
	Skipped  int           `json:"skipped"`
	Classes  []string      `json:"classes"`
	Duration time.Duration `json:"-"`
}

// Trainer is the batch training entrypoint for both oracles.
type Trainer struct {
	detector   DetectorTrainer
	classifier ClassifierTrainer
	label      LabelFunc
	logger     *structlog.Logger
	metrics    *metrics.Pipeline
}

// NewTrainer returns a trainer labelling events with label.
func NewTrainer(detector DetectorTrainer, classifier ClassifierTrainer, label LabelFunc, logger *structlog.Logger, m *metrics.Pipeline) *Trainer {
	if logger == nil {
		logger = structlog.Nop()
	}
	return &Trainer{detector: detector, classifier: classifier, label: label, logger: logger, metrics: m}
}

// Train fits the detector and then the classifier on events. Each oracle
// keeps its previous model if its own fit or persist fails.
func (t *Trainer) Train(ctx context.Context, events []event.Event) (TrainResult, error) {
	start := time.Now()
	res := TrainResult{JobID: uuid.NewString()}
	log := t.logger.WithContext(ctx).WithFields(structlog.Fields{"job_id": res.JobID})

	ds := BuildDataset(events, t.label)
	res.Samples, res.Skipped = len(ds.Vectors), ds.Skipped
	if len(ds.Vectors) == 0 {
		return res, ErrNoTrainingData
	}
	log.Info("training started", structlog.Fields{"samples": res.Samples, "skipped": res.Skipped})

	if err := t.detector.Train(ctx, ds.Vectors); err != nil {
		t.observe(log, "failed", start, err)
		return res, fmt.Errorf("train anomaly oracle: %w", err)
	}
	if err := t.classifier.Train(ctx, ds.Vectors, ds.Labels); err != nil {
		t.observe(log, "failed", start, err)
		return res, fmt.Errorf("train threat classifier: %w", err)
	}
	res.Classes = t.classifier.Classes()
	res.Duration = time.Since(start)
	t.observe(log, "success", start, nil)
	log.Audit("model_retrain", structlog.Fields{"samples": res.Samples, "classes": res.Classes})
	return res, nil
}

func (t *Trainer) observe(log *structlog.Logger, outcome string, start time.Time, err error) {
	d := time.Since(start)
	t.metrics.ObserveTraining(outcome, d)
	if err != nil {
		log.Error("training failed", structlog.Fields{"error": err, "duration_ms": d.Milliseconds()})
		return
	}
	log.Info("training finished", structlog.Fields{"duration_ms": d.Milliseconds()})
}
