// Package ml holds the two trainable oracles used by the pipeline: an
// unsupervised anomaly detector and a supervised threat classifier. Both
// keep their fitted model behind an RWMutex and replace it only after a
// new fit has been persisted.
package ml

import (
	"errors"
	"fmt"
)

// Oracle result statuses.
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

// Canonical classification for traffic that was not flagged anomalous.
const (
	ThreatNormal  = "Normal"
	ThreatUnknown = "Unknown"
)

var (
	// ErrOracleUnavailable marks an untrained oracle or absent features.
	ErrOracleUnavailable = errors.New("oracle unavailable")
	// ErrOracleCompute marks an internal prediction failure.
	ErrOracleCompute = errors.New("oracle compute error")
)

// AnomalyResult is the anomaly oracle output.
type AnomalyResult struct {
	Score     float64 `json:"score"`
	IsAnomaly bool    `json:"is_anomaly"`
	Status    string  `json:"status"`
	Error     string  `json:"error,omitempty"`
}

// ClassificationResult is the threat classifier output.
type ClassificationResult struct {
	ThreatType string  `json:"threat_type"`
	Confidence float64 `json:"confidence"`
	Status     string  `json:"status"`
	Error      string  `json:"error,omitempty"`
}

// NormalClassification is returned whenever classification is gated off.
func NormalClassification() ClassificationResult {
	return ClassificationResult{ThreatType: ThreatNormal, Confidence: 1.0, Status: StatusSuccess}
}

// guard converts a panic inside model evaluation into ErrOracleCompute.
func guard(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: panic: %v", ErrOracleCompute, r)
	}
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
