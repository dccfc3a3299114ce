// Package risk combines the anomaly score with a per-category severity
// prior into a risk level and a 0..100 score.
package risk

import "math"

// Level is a coarse risk bucket.
type Level string

const (
	Low      Level = "Low"
	Medium   Level = "Medium"
	High     Level = "High"
	Critical Level = "Critical"
)

// DefaultTier applies to any category missing from the table, "Normal"
// included.
const DefaultTier = 1

// Level thresholds on tier+score.
const (
	CriticalAt = 3.5
	HighAt     = 2.5
	MediumAt   = 1.5
)

// severity is the categorical prior. CICIDS names first, then UNSW-NB15.
var severity = map[string]int{
	"Phishing":         2,
	"Malware":          3,
	"DDoS":             3,
	"DoS Hulk":         2,
	"PortScan":         2,
	"Bot":              3,
	"Infiltration":     3,
	"Web Attack":       2,
	"FTP-Patator":      2,
	"SSH-Patator":      2,
	"DoS slowloris":    2,
	"DoS Slowhttptest": 2,
	"DoS GoldenEye":    2,
	"Heartbleed":       3,

	"Fuzzers":        2,
	"Exploits":       3,
	"Backdoor":       3,
	"Shellcode":      3,
	"Analysis":       2,
	"Reconnaissance": 2,
	"DoS":            2,
	"Worms":          3,
	"Intrusion":      3,
	"Generic":        1,
}

// Result is the assessor output.
type Result struct {
	Level Level   `json:"risk_level"`
	Score float64 `json:"risk_score"`
}

// Tier returns the severity tier for a threat category.
func Tier(threatType string) int {
	if t, ok := severity[threatType]; ok {
		return t
	}
	return DefaultTier
}

// Assess scores one event. Non-anomalous events are always {Low, 0}.
func Assess(isAnomaly bool, threatType string, anomalyScore float64) Result {
	if !isAnomaly {
		return Result{Level: Low, Score: 0}
	}
	if math.IsNaN(anomalyScore) {
		anomalyScore = 0
	}
	total := float64(Tier(threatType)) + anomalyScore

	var level Level
	switch {
	case total >= CriticalAt:
		level = Critical
	case total >= HighAt:
		level = High
	case total >= MediumAt:
		level = Medium
	default:
		level = Low
	}
	return Result{Level: level, Score: math.Min(100, math.Max(0, total/4*100))}
}
