package pipeline

import (
	"strings"
	"time"

	"shieldx-cti/pkg/event"
	"shieldx-cti/pkg/explain"
	"shieldx-cti/pkg/features"
	"shieldx-cti/pkg/ml"
	"shieldx-cti/pkg/risk"
)

// Stage is a node of the per-event state machine.
type Stage int

const (
	StageStart Stage = iota
	StageNormalized
	StageAnomalyChecked
	StageClassified
	StageExplained
	StageRiskAssessed
	StageResponded
	StageDone
)

var stageNames = [...]string{"start", "normalized", "anomaly_checked", "classified", "explained", "risk_assessed", "responded", "done"}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// Report statuses.
const (
	StatusStarted  = "started"
	StatusSuccess  = "success"
	StatusDegraded = "degraded"
	StatusFailed   = "failed"
)

// StageError records a stage that fell back to its default output.
type StageError struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
}

// State is an immutable snapshot of one event's progress. Stages take a
// snapshot and return a new one with their own fields filled in; the
// slices are copied on write so earlier snapshots never change.
type State struct {
	EventID    string
	ReceivedAt time.Time
	Event      event.Event

	Features       *features.Vector
	Anomaly        ml.AnomalyResult
	Classification ml.ClassificationResult
	Explanation    string
	Risk           risk.Result
	Response       string

	Stage  Stage
	Path   []Stage
	Status string
	Errors []StageError
}

// NewState returns the defaulted Start snapshot for ev.
func NewState(ev event.Event, eventID string, receivedAt time.Time) State {
	return State{
		EventID:        eventID,
		ReceivedAt:     receivedAt,
		Event:          ev,
		Anomaly:        ml.AnomalyResult{Status: ml.StatusSkipped},
		Classification: ml.NormalClassification(),
		Explanation:    explain.NoDeviation,
		Risk:           risk.Result{Level: risk.Low, Score: 0},
		Stage:          StageStart,
		Path:           []Stage{StageStart},
		Status:         StatusStarted,
	}
}

// advance returns a copy of s moved to stage.
func (s State) advance(stage Stage) State {
	next := s
	next.Stage = stage
	next.Path = append(append(make([]Stage, 0, len(s.Path)+1), s.Path...), stage)
	return next
}

// fail returns a copy of s with a stage error appended.
func (s State) fail(stage Stage, msg string) State {
	next := s
	next.Errors = append(append(make([]StageError, 0, len(s.Errors)+1), s.Errors...), StageError{Stage: stage, Message: msg})
	return next
}

// Failed reports whether any stage fell back.
func (s State) Failed() bool { return len(s.Errors) > 0 }

// Error joins stage errors as "stage: message; ...".
func (s State) Error() string {
	if len(s.Errors) == 0 {
		return ""
	}
	parts := make([]string, len(s.Errors))
	for i, e := range s.Errors {
		parts[i] = e.Stage.String() + ": " + e.Message
	}
	return strings.Join(parts, "; ")
}

// Report flattens the terminal snapshot into the reporting contract.
func (s State) Report() event.Report {
	ts := s.Event.Timestamp()
	if ts == "" {
		ts = s.ReceivedAt.UTC().Format(time.RFC3339)
	}
	return event.Report{
		EventID:                s.EventID,
		Timestamp:              ts,
		SrcIP:                  s.Event.SrcIP(""),
		DstIP:                  s.Event.DstIP(""),
		DstPort:                s.Event.DstPort(""),
		Protocol:               s.Event.Protocol(""),
		IsAnomaly:              s.Anomaly.IsAnomaly,
		AnomalyScore:           s.Anomaly.Score,
		ThreatType:             s.Classification.ThreatType,
		Confidence:             s.Classification.Confidence,
		Explanation:            s.Explanation,
		RiskLevel:              string(s.Risk.Level),
		RiskScore:              s.Risk.Score,
		ResponseRecommendation: s.Response,
		Status:                 s.Status,
		Error:                  s.Error(),
	}
}
