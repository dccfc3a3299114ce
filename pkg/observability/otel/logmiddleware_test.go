package otelobs

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shieldx-cti/pkg/structlog"
)

func TestHTTPTraceLogMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := structlog.NewLogger("cti-test", structlog.LevelInfo, &buf)

	var seen string
	h := HTTPTraceLogMiddleware(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = structlog.CorrelationID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/process", nil)
	req.Header.Set("X-Correlation-ID", "corr-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "corr-123", seen)
	assert.Equal(t, "corr-123", rec.Header().Get("X-Correlation-ID"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "access", line["message"])
	assert.Equal(t, "/v1/process", line["path"])
	assert.Equal(t, float64(http.StatusTeapot), line["status"])
	assert.Equal(t, "corr-123", line["correlation_id"])
	assert.Equal(t, "-", line["trace_id"])
}

func TestHTTPTraceLogMiddleware_MintsCorrelationID(t *testing.T) {
	h := HTTPTraceLogMiddleware(structlog.Nop(), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
}

func TestHTTPTraceLogMiddleware_NilHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HTTPTraceLogMiddleware(structlog.Nop(), nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInitTracerWithoutEndpoint(t *testing.T) {
	shutdown := InitTracer(context.Background(), "cti-test", "", structlog.Nop())
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}
