// Package explain renders a short, rule-based rationale for a verdict.
package explain

import (
	"fmt"
	"math"
	"strings"

	"shieldx-cti/pkg/event"
)

// NoDeviation is the explanation for traffic that was not flagged.
const NoDeviation = "Activity is normal. No significant deviations detected."

// Fallback is appended when no field heuristic fires.
const Fallback = "ML model identified complex non-linear deviations from baseline in network rates/durations."

// Heuristic thresholds on raw UNSW-NB15 style fields.
const (
	TTLThreshold     = 100
	RateThreshold    = 10000.0
	PayloadThreshold = 5000
)

// Explain builds the explanation for one event. Output depends only on its
// arguments.
func Explain(ev event.Event, isAnomaly bool, threatType string, anomalyScore float64) string {
	if !isAnomaly {
		return NoDeviation
	}
	parts := []string{fmt.Sprintf("Threat '%s' detected with anomaly score %.2f.", threatType, anomalyScore)}

	sttl := whole(ev.Float("sttl"))
	rate := ev.Float("rate")
	sbytes := whole(ev.Float("sbytes"))

	if sttl > TTLThreshold {
		parts = append(parts, fmt.Sprintf("Unusually high source Time-To-Live (sttl=%d).", sttl))
	}
	if rate > RateThreshold {
		parts = append(parts, fmt.Sprintf("Extremely high packet transmission rate (%.1f pkts/sec).", rate))
	}
	if sbytes > PayloadThreshold {
		parts = append(parts, fmt.Sprintf("Large payload detected from source (%d bytes).", sbytes))
	}
	if len(parts) == 1 {
		parts = append(parts, Fallback)
	}
	return strings.Join(parts, " ")
}

// whole truncates toward zero, saturating at the int64 range.
func whole(f float64) int64 {
	switch {
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	default:
		return int64(f)
	}
}
