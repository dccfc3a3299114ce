package ml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"shieldx-cti/pkg/artifact"
	"shieldx-cti/pkg/features"
	"shieldx-cti/pkg/structlog"
)

// AnomalyArtifact is the artifact store name of the anomaly model.
const AnomalyArtifact = "iforest"

// AnomalyConfig tunes the isolation forest and the score rescaling.
type AnomalyConfig struct {
	NumTrees      int
	SampleSize    int
	Contamination float64
	// The reported score is clamp(ScoreOffset + ScoreScale*raw, 0, 1).
	// The defaults reproduce 0.5 - score_samples/2 from scikit-learn.
	ScoreOffset float64
	ScoreScale  float64
	Seed        int64
}

// DefaultAnomalyConfig mirrors IsolationForest(contamination=0.1, random_state=42).
func DefaultAnomalyConfig() AnomalyConfig {
	return AnomalyConfig{
		NumTrees:      100,
		SampleSize:    256,
		Contamination: 0.1,
		ScoreOffset:   0.5,
		ScoreScale:    0.5,
		Seed:          42,
	}
}

// AnomalyOracle flags outlying feature vectors.
type AnomalyOracle struct {
	cfg    AnomalyConfig
	store  artifact.Store
	logger *structlog.Logger

	trainMu sync.Mutex // serialises Train and Load
	mu      sync.RWMutex
	model   *IsolationForest
}

// NewAnomalyOracle returns an untrained oracle persisting to store.
func NewAnomalyOracle(cfg AnomalyConfig, store artifact.Store, logger *structlog.Logger) *AnomalyOracle {
	if store == nil {
		store = artifact.NewMemoryStore()
	}
	if logger == nil {
		logger = structlog.Nop()
	}
	return &AnomalyOracle{cfg: cfg, store: store, logger: logger.WithFields(structlog.Fields{"oracle": "anomaly"})}
}

// Trained reports whether a model is loaded.
func (o *AnomalyOracle) Trained() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.model != nil
}

// Load restores a persisted model if one exists. It returns false when
// there is nothing to load.
func (o *AnomalyOracle) Load(ctx context.Context) (bool, error) {
	o.trainMu.Lock()
	defer o.trainMu.Unlock()

	ok, err := o.store.Exists(ctx, AnomalyArtifact)
	if err != nil || !ok {
		return false, err
	}
	blob, err := o.store.Load(ctx, AnomalyArtifact)
	if err != nil {
		return false, err
	}
	var f IsolationForest
	if err := json.Unmarshal(blob, &f); err != nil {
		return false, fmt.Errorf("decode %s artifact: %w", AnomalyArtifact, err)
	}
	if !f.Fitted() || f.Dims != features.Size {
		return false, fmt.Errorf("%s artifact is not a fitted %d-feature model", AnomalyArtifact, features.Size)
	}
	o.swap(&f)
	o.logger.Info("loaded anomaly model", structlog.Fields{"trees": len(f.Trees), "threshold": f.Threshold})
	return true, nil
}

// Train fits a new model over vectors, persists it, then swaps it in.
// An empty dataset is a no-op. On any error, including cancellation, the
// previous model and artifact stay in place.
func (o *AnomalyOracle) Train(ctx context.Context, vectors []features.Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	o.trainMu.Lock()
	defer o.trainMu.Unlock()

	X := make([][]float64, len(vectors))
	for i, v := range vectors {
		X[i] = v.Slice()
	}
	f := NewIsolationForest(o.cfg.NumTrees, o.cfg.SampleSize)
	if err := f.Fit(ctx, X, o.cfg.Contamination, rand.New(rand.NewSource(o.cfg.Seed))); err != nil {
		return fmt.Errorf("fit isolation forest: %w", err)
	}
	blob, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode isolation forest: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := o.store.Save(ctx, AnomalyArtifact, blob); err != nil {
		return fmt.Errorf("persist %s: %w", AnomalyArtifact, err)
	}
	o.swap(f)
	o.logger.Info("trained anomaly model", structlog.Fields{"samples": len(vectors), "threshold": f.Threshold})
	return nil
}

func (o *AnomalyOracle) swap(f *IsolationForest) {
	o.mu.Lock()
	o.model = f
	o.mu.Unlock()
}

// Infer scores v. It never fails: an untrained oracle or nil v yields a
// skipped result and internal errors yield an error result.
func (o *AnomalyOracle) Infer(v *features.Vector) AnomalyResult {
	o.mu.RLock()
	model := o.model
	o.mu.RUnlock()

	if v == nil || model == nil {
		return AnomalyResult{Score: 0, IsAnomaly: false, Status: StatusSkipped}
	}
	raw, outlier, err := o.decide(model, v)
	if err != nil {
		return AnomalyResult{Score: 0, IsAnomaly: false, Status: StatusError, Error: err.Error()}
	}
	return AnomalyResult{
		Score:     clamp01(o.cfg.ScoreOffset + o.cfg.ScoreScale*raw),
		IsAnomaly: outlier,
		Status:    StatusSuccess,
	}
}

func (o *AnomalyOracle) decide(model *IsolationForest, v *features.Vector) (raw float64, outlier bool, err error) {
	defer guard(&err)
	raw, outlier, err = model.Decide(v.Slice())
	if err != nil && !errors.Is(err, ErrOracleCompute) {
		err = fmt.Errorf("%w: %v", ErrOracleCompute, err)
	}
	return raw, outlier, err
}
