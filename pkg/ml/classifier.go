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

// ClassifierArtifact is the artifact store name of the threat classifier.
const ClassifierArtifact = "rf_classifier"

// ClassifierConfig tunes the random forest.
type ClassifierConfig struct {
	NumTrees int
	MaxDepth int
	Seed     int64
}

// DefaultClassifierConfig mirrors RandomForestClassifier(n_estimators=50, random_state=42).
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{NumTrees: 50, MaxDepth: 32, Seed: 42}
}

// ThreatClassifier assigns a threat category to anomalous feature vectors.
// Categories are whatever label strings it was trained on.
type ThreatClassifier struct {
	cfg    ClassifierConfig
	store  artifact.Store
	logger *structlog.Logger

	trainMu sync.Mutex
	mu      sync.RWMutex
	model   *RandomForest
}

// NewThreatClassifier returns an untrained classifier persisting to store.
func NewThreatClassifier(cfg ClassifierConfig, store artifact.Store, logger *structlog.Logger) *ThreatClassifier {
	if store == nil {
		store = artifact.NewMemoryStore()
	}
	if logger == nil {
		logger = structlog.Nop()
	}
	return &ThreatClassifier{cfg: cfg, store: store, logger: logger.WithFields(structlog.Fields{"oracle": "classifier"})}
}

// Trained reports whether a model is loaded.
func (c *ThreatClassifier) Trained() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model != nil
}

// Classes returns the category labels known to the current model.
func (c *ThreatClassifier) Classes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.model == nil {
		return nil
	}
	return append([]string(nil), c.model.Classes...)
}

// Load restores a persisted model if one exists.
func (c *ThreatClassifier) Load(ctx context.Context) (bool, error) {
	c.trainMu.Lock()
	defer c.trainMu.Unlock()

	ok, err := c.store.Exists(ctx, ClassifierArtifact)
	if err != nil || !ok {
		return false, err
	}
	blob, err := c.store.Load(ctx, ClassifierArtifact)
	if err != nil {
		return false, err
	}
	var f RandomForest
	if err := json.Unmarshal(blob, &f); err != nil {
		return false, fmt.Errorf("decode %s artifact: %w", ClassifierArtifact, err)
	}
	if !f.Fitted() || len(f.Classes) == 0 || f.Dims != features.Size {
		return false, fmt.Errorf("%s artifact is not a fitted %d-feature model", ClassifierArtifact, features.Size)
	}
	c.swap(&f)
	c.logger.Info("loaded classifier model", structlog.Fields{"trees": len(f.Trees), "classes": f.Classes})
	return true, nil
}

// Train fits on parallel vectors and labels, persists the model, then swaps
// it in. An empty dataset is a no-op; mismatched lengths are an error.
func (c *ThreatClassifier) Train(ctx context.Context, vectors []features.Vector, labels []string) error {
	if len(vectors) == 0 || len(labels) == 0 {
		return nil
	}
	if len(vectors) != len(labels) {
		return fmt.Errorf("got %d feature vectors but %d labels", len(vectors), len(labels))
	}
	c.trainMu.Lock()
	defer c.trainMu.Unlock()

	X := make([][]float64, len(vectors))
	for i, v := range vectors {
		X[i] = v.Slice()
	}
	f := NewRandomForest(c.cfg.NumTrees, c.cfg.MaxDepth)
	if err := f.Fit(ctx, X, labels, rand.New(rand.NewSource(c.cfg.Seed))); err != nil {
		return fmt.Errorf("fit random forest: %w", err)
	}
	blob, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode random forest: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.store.Save(ctx, ClassifierArtifact, blob); err != nil {
		return fmt.Errorf("persist %s: %w", ClassifierArtifact, err)
	}
	c.swap(f)
	c.logger.Info("trained classifier model", structlog.Fields{"samples": len(vectors), "classes": f.Classes})
	return nil
}

func (c *ThreatClassifier) swap(f *RandomForest) {
	c.mu.Lock()
	c.model = f
	c.mu.Unlock()
}

// Infer classifies v. Classification is gated on isAnomaly: non-anomalous
// input, an untrained model or nil v all short-circuit to Normal.
func (c *ThreatClassifier) Infer(isAnomaly bool, v *features.Vector) ClassificationResult {
	c.mu.RLock()
	model := c.model
	c.mu.RUnlock()

	if !isAnomaly || v == nil || model == nil {
		return NormalClassification()
	}
	threat, confidence, err := c.predict(model, v)
	if err != nil {
		return ClassificationResult{ThreatType: ThreatUnknown, Confidence: 0, Status: StatusError, Error: err.Error()}
	}
	return ClassificationResult{ThreatType: threat, Confidence: clamp01(confidence), Status: StatusSuccess}
}

func (c *ThreatClassifier) predict(model *RandomForest, v *features.Vector) (threat string, confidence float64, err error) {
	defer guard(&err)
	threat, confidence, err = model.Predict(v.Slice())
	if err != nil && !errors.Is(err, ErrOracleCompute) {
		err = fmt.Errorf("%w: %v", ErrOracleCompute, err)
	}
	return threat, confidence, err
}
