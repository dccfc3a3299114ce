package event

// Report is the flat per-event record consumed by dashboards and other
// reporting collaborators.
type Report struct {
	EventID                string  `json:"event_id" yaml:"event_id"`
	Timestamp              string  `json:"timestamp" yaml:"timestamp"`
	SrcIP                  string  `json:"src_ip" yaml:"src_ip"`
	DstIP                  string  `json:"dst_ip" yaml:"dst_ip"`
	DstPort                string  `json:"dst_port" yaml:"dst_port"`
	Protocol               string  `json:"protocol" yaml:"protocol"`
	IsAnomaly              bool    `json:"is_anomaly" yaml:"is_anomaly"`
	AnomalyScore           float64 `json:"anomaly_score" yaml:"anomaly_score"`
	ThreatType             string  `json:"threat_type" yaml:"threat_type"`
	Confidence             float64 `json:"confidence" yaml:"confidence"`
	Explanation            string  `json:"explanation" yaml:"explanation"`
	RiskLevel              string  `json:"risk_level" yaml:"risk_level"`
	RiskScore              float64 `json:"risk_score" yaml:"risk_score"`
	ResponseRecommendation string  `json:"response_recommendation" yaml:"response_recommendation"`
	Status                 string  `json:"status" yaml:"status"`
	Error                  string  `json:"error,omitempty" yaml:"error,omitempty"`
}
