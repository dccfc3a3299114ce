// Package metrics exposes Prometheus collectors for the CTI pipeline and
// an optional OTLP metric exporter.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cti"

// Pipeline groups the collectors updated by the orchestrator, the trainer
// and the HTTP service. A nil *Pipeline is valid and records nothing.
type Pipeline struct {
	StageDuration *prometheus.HistogramVec
	StageFailures *prometheus.CounterVec
	OracleResults *prometheus.CounterVec
	Reports       *prometheus.CounterVec
	Training      *prometheus.HistogramVec
	HTTPRequests  *prometheus.CounterVec
	SinkFailures  *prometheus.CounterVec
}

// NewPipeline builds the collectors and registers them with reg when reg
// is non-nil. Duplicate registration is ignored.
func NewPipeline(reg prometheus.Registerer) *Pipeline {
	p := &Pipeline{
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "Time spent in each pipeline stage.",
				Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
			},
			[]string{"stage"},
		),
		StageFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "stage_failures_total",
				Help:      "Stage failures that degraded a report.",
			},
			[]string{"stage"},
		),
		OracleResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "oracle",
				Name:      "results_total",
				Help:      "Oracle inference outcomes by status.",
			},
			[]string{"oracle", "status"},
		),
		Reports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "reports_total",
				Help:      "Reports produced, by risk level.",
			},
			[]string{"risk_level"},
		),
		Training: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "training",
				Name:      "duration_seconds",
				Help:      "Duration of training jobs.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
			},
			[]string{"outcome"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests by route and status code.",
			},
			[]string{"route", "code"},
		),
		SinkFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sink",
				Name:      "failures_total",
				Help:      "Reports a sink failed to deliver.",
			},
			[]string{"sink"},
		),
	}
	if reg != nil {
		for _, c := range p.collectors() {
			_ = reg.Register(c)
		}
	}
	return p
}

func (p *Pipeline) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		p.StageDuration, p.StageFailures, p.OracleResults, p.Reports,
		p.Training, p.HTTPRequests, p.SinkFailures,
	}
}

// ObserveStage records the latency of one stage.
func (p *Pipeline) ObserveStage(stage string, d time.Duration) {
	if p == nil {
		return
	}
	p.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// StageFailed counts a degraded stage.
func (p *Pipeline) StageFailed(stage string) {
	if p == nil {
		return
	}
	p.StageFailures.WithLabelValues(stage).Inc()
}

// ObserveOracle counts one oracle result.
func (p *Pipeline) ObserveOracle(oracle, status string) {
	if p == nil {
		return
	}
	p.OracleResults.WithLabelValues(oracle, status).Inc()
}

// ObserveReport counts a finished report.
func (p *Pipeline) ObserveReport(riskLevel string) {
	if p == nil {
		return
	}
	p.Reports.WithLabelValues(riskLevel).Inc()
}

// ObserveTraining records a training job.
func (p *Pipeline) ObserveTraining(outcome string, d time.Duration) {
	if p == nil {
		return
	}
	p.Training.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveHTTP counts one served request.
func (p *Pipeline) ObserveHTTP(route, code string) {
	if p == nil {
		return
	}
	p.HTTPRequests.WithLabelValues(route, code).Inc()
}

// SinkFailed counts a report a sink could not deliver.
func (p *Pipeline) SinkFailed(sink string) {
	if p == nil {
		return
	}
	p.SinkFailures.WithLabelValues(sink).Inc()
}

// Handler serves the Prometheus exposition for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
