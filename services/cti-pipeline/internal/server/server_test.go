package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shieldx-cti/pkg/artifact"
	"shieldx-cti/pkg/auth"
	"shieldx-cti/pkg/collector"
	"shieldx-cti/pkg/event"
	"shieldx-cti/pkg/metrics"
	"shieldx-cti/pkg/ml"
	"shieldx-cti/pkg/pipeline"
	"shieldx-cti/pkg/sink"
)

type harness struct {
	srv     *Server
	det     *ml.AnomalyOracle
	cls     *ml.ThreatClassifier
	recent  *sink.Recent
	metrics *metrics.Pipeline
	jwt     *auth.JWTManager
}

type option func(*Config, *harness)

func withStore(store artifact.Store) option {
	return func(_ *Config, h *harness) {
		h.det = ml.NewAnomalyOracle(ml.DefaultAnomalyConfig(), store, nil)
		h.cls = ml.NewThreatClassifier(ml.DefaultClassifierConfig(), store, nil)
	}
}

func withAuth(t *testing.T) option {
	return func(cfg *Config, h *harness) {
		jm, err := auth.NewJWTManager(auth.JWTConfig{Secret: "s3cret"})
		require.NoError(t, err)
		h.jwt = jm
		cfg.Auth = auth.NewMiddleware(jm)
	}
}

func newHarness(t *testing.T, opts ...option) *harness {
	t.Helper()
	reg := prometheus.NewRegistry()
	h := &harness{recent: sink.NewRecent(16), metrics: metrics.NewPipeline(reg)}
	cfg := Config{Gatherer: reg, Metrics: h.metrics, Recent: h.recent, Workers: 4, TrainTimeout: time.Minute}
	withStore(artifact.NewMemoryStore())(&cfg, h)
	for _, o := range opts {
		o(&cfg, h)
	}
	cfg.Orchestrator = pipeline.New(h.det, h.cls, pipeline.WithMetrics(h.metrics))
	cfg.Trainer = pipeline.NewTrainer(h.det, h.cls, collector.Label, nil, h.metrics)
	cfg.Sink = sink.NewFanout(nil, h.metrics, h.recent)
	cfg.Oracles = map[string]Oracle{"anomaly": h.det, "classifier": h.cls}
	h.srv = New(cfg)
	return h
}

func (h *harness) do(method, path string, body any, header ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func trainingBatch(n int) map[string]any {
	rng := rand.New(rand.NewSource(5))
	events := make([]event.Event, 0, 2*n)
	for i := 0; i < n; i++ {
		events = append(events,
			event.Event{
				"dur": rng.Float64(), "spkts": 2 + rng.Intn(4), "dpkts": 2 + rng.Intn(4),
				"sbytes": 300 + rng.Intn(200), "dbytes": 500 + rng.Intn(300), "sttl": 31, "rate": 50 + rng.Float64()*20,
				"attack_cat": "Normal",
			},
			event.Event{
				"dur": 0.00001, "spkts": 2000 + rng.Intn(100), "dpkts": 0,
				"sbytes": 90000 + rng.Intn(1000), "dbytes": 0, "sttl": 254, "rate": 200000 + rng.Float64()*1000,
				"attack_cat": "DDoS",
			},
		)
	}
	return map[string]any{"events": events}
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]bool{"anomaly": false, "classifier": false}, resp.Oracles)
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
}

func TestProcess_UntrainedStillReports(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodPost, "/v1/process", `{"event_id":"e-1","src_ip":"10.0.0.9","sbytes":120}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var rep event.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Equal(t, "e-1", rep.EventID)
	assert.False(t, rep.IsAnomaly)
	assert.Equal(t, "Normal", rep.ThreatType)
	assert.Equal(t, "Low", rep.RiskLevel)

	got := h.do(http.MethodGet, "/v1/reports/e-1", nil)
	require.Equal(t, http.StatusOK, got.Code)
	assert.Contains(t, got.Body.String(), `"event_id":"e-1"`)

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/v1/reports/missing", nil).Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.HTTPRequests.WithLabelValues("/v1/process", "200")))
}

func TestProcess_InvalidPayload(t *testing.T) {
	h := newHarness(t)
	for _, body := range []string{`[1,2]`, `null`, `{"broken"`} {
		rec := h.do(http.MethodPost, "/v1/process", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Equal(t, 0, h.recent.Len())
}

func TestTrainThenProcess(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodPost, "/v1/train", trainingBatch(80))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res pipeline.TrainResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.NotEmpty(t, res.JobID)
	assert.Equal(t, 160, res.Samples)
	assert.Equal(t, []string{"DDoS", "Normal"}, res.Classes)
	assert.True(t, h.det.Trained())
	assert.True(t, h.cls.Trained())

	batch := map[string]any{"events": []event.Event{
		{"event_id": "b-0", "dur": 0.4, "spkts": 3, "dpkts": 3, "sbytes": 420, "dbytes": 610, "sttl": 31, "rate": 55},
		{"event_id": "b-1", "src_ip": "203.0.113.7", "dur": 0.00001, "spkts": 5000, "dpkts": 0, "sbytes": 400000, "dbytes": 0, "sttl": 254, "rate": 900000},
	}}
	rec = h.do(http.MethodPost, "/v1/process/batch", batch)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp BatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Reports, 2)
	assert.Equal(t, "b-0", resp.Reports[0].EventID)
	assert.Equal(t, "b-1", resp.Reports[1].EventID)
	assert.True(t, resp.Reports[1].IsAnomaly)
	assert.Equal(t, "DDoS", resp.Reports[1].ThreatType)
	assert.Equal(t, "Critical", resp.Reports[1].RiskLevel)
	assert.Contains(t, resp.Reports[1].ResponseRecommendation, "203.0.113.7")
	assert.Equal(t, 2, h.recent.Len())
}

func TestProcessBatch_RejectsNonObjects(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodPost, "/v1/process/batch", `{"events":[{"sbytes":1}, 42]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "events[1]")
}

func TestTrain_BadRequests(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/v1/train", `{"events":[]}`).Code)

	rec := h.do(http.MethodPost, "/v1/train", `{"events":[{"note":"nothing numeric"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), pipeline.ErrNoTrainingData.Error())
}

type readOnlyStore struct{ *artifact.MemoryStore }

func (readOnlyStore) Save(_ context.Context, name string, _ []byte) error {
	return &artifact.ConfigurationError{Location: "/ro/" + name, Err: errors.New("read-only file system")}
}

func TestTrain_ConfigurationErrorIs500(t *testing.T) {
	h := newHarness(t, withStore(readOnlyStore{artifact.NewMemoryStore()}))
	rec := h.do(http.MethodPost, "/v1/train", trainingBatch(10))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "read-only")
	assert.False(t, h.det.Trained())
}

func TestTrain_RequiresToken(t *testing.T) {
	h := newHarness(t, withAuth(t))
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, "/v1/train", trainingBatch(10)).Code)

	viewer, err := h.jwt.Issue("ops", "viewer")
	require.NoError(t, err)
	rec := h.do(http.MethodPost, "/v1/train", trainingBatch(10), "Authorization", "Bearer "+viewer)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	trainer, err := h.jwt.Issue("ops", auth.RoleTrainer)
	require.NoError(t, err)
	rec = h.do(http.MethodPost, "/v1/train", trainingBatch(10), "Authorization", "Bearer "+trainer)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, http.StatusOK, h.do(http.MethodPost, "/v1/process", `{"sbytes":1}`).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	h.do(http.MethodPost, "/v1/process", `{"sbytes":10}`)
	rec := h.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cti_")
	assert.Contains(t, rec.Body.String(), fmt.Sprintf("route=%q", "/v1/process"))
}
