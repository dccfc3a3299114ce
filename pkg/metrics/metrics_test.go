package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPipeline(reg)

	p.ObserveReport("Critical")
	p.ObserveReport("Critical")
	p.ObserveReport("Low")
	p.ObserveOracle("anomaly", "skipped")
	p.StageFailed("normalize")
	p.ObserveStage("risk_assess", time.Millisecond)
	p.ObserveTraining("success", 2*time.Second)
	p.ObserveHTTP("/v1/process", "200")
	p.SinkFailed("redis")

	assert.Equal(t, 2.0, testutil.ToFloat64(p.Reports.WithLabelValues("Critical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.Reports.WithLabelValues("Low")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.OracleResults.WithLabelValues("anomaly", "skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.StageFailures.WithLabelValues("normalize")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.SinkFailures.WithLabelValues("redis")))
	assert.Equal(t, 1, testutil.CollectAndCount(p.StageDuration))

	// registering twice on the same registry is tolerated
	assert.NotPanics(t, func() { NewPipeline(reg) })
}

func TestNilPipelineIsNoop(t *testing.T) {
	var p *Pipeline
	assert.NotPanics(t, func() {
		p.ObserveReport("Low")
		p.ObserveStage("x", time.Second)
		p.StageFailed("x")
		p.ObserveOracle("a", "b")
		p.ObserveTraining("failed", time.Second)
		p.ObserveHTTP("/", "500")
		p.SinkFailed("postgres")
	})
}

func TestHandlerExposition(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPipeline(reg)
	p.ObserveReport("High")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `cti_pipeline_reports_total{risk_level="High"} 1`))
}
