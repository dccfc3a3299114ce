package otelobs

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"shieldx-cti/pkg/structlog"
)

// HTTPTraceLogMiddleware writes one access log line per request carrying
// trace_id/span_id and the request correlation id, and echoes the ids in
// Trace-Id/Span-Id/X-Correlation-ID response headers.
func HTTPTraceLogMiddleware(logger *structlog.Logger, next http.Handler) http.Handler {
	if next == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) })
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		if id := r.Header.Get("X-Correlation-ID"); id != "" {
			ctx = structlog.ContextWithCorrelationID(ctx, id)
		}
		ctx, corrID := structlog.EnsureCorrelationID(ctx)
		r = r.WithContext(ctx)

		traceID, spanID := "-", "-"
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			traceID = sc.TraceID().String()
			spanID = sc.SpanID().String()
			w.Header().Set("Trace-Id", traceID)
			w.Header().Set("Span-Id", spanID)
		}
		w.Header().Set("X-Correlation-ID", corrID)

		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sr, r)

		logger.WithContext(ctx).Info("access", structlog.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   sr.status,
			"dur_ms":   time.Since(start).Milliseconds(),
			"trace_id": traceID,
			"span_id":  spanID,
		})
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}
