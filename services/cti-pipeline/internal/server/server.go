// Package server exposes the CTI pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"shieldx-cti/pkg/artifact"
	"shieldx-cti/pkg/auth"
	"shieldx-cti/pkg/event"
	"shieldx-cti/pkg/metrics"
	otelobs "shieldx-cti/pkg/observability/otel"
	"shieldx-cti/pkg/pipeline"
	"shieldx-cti/pkg/sink"
	"shieldx-cti/pkg/structlog"
)

// ServiceName is reported in traces and logs.
const ServiceName = "cti-pipeline"

// DefaultMaxBodyBytes bounds request bodies.
const DefaultMaxBodyBytes = 32 << 20

// Oracle reports whether a model is loaded.
type Oracle interface {
	Trained() bool
}

// Config wires the server to the pipeline components.
type Config struct {
	Orchestrator *pipeline.Orchestrator
	Trainer      *pipeline.Trainer
	// Sink receives every report produced over HTTP. Optional.
	Sink sink.Sink
	// Recent serves GET /v1/reports/{event_id}. Optional.
	Recent *sink.Recent
	// Auth guards /v1/train when set.
	Auth    *auth.Middleware
	Oracles map[string]Oracle

	Logger   *structlog.Logger
	Metrics  *metrics.Pipeline
	Gatherer prometheus.Gatherer

	Workers      int
	TrainTimeout time.Duration
	MaxBodyBytes int64
}

// Server holds the router and its dependencies.
type Server struct {
	cfg Config
	r   *chi.Mux
}

// New builds the router.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = structlog.Nop()
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.TrainTimeout <= 0 {
		cfg.TrainTimeout = 10 * time.Minute
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	s := &Server{cfg: cfg, r: chi.NewRouter()}
	s.r.Use(middleware.Recoverer)
	s.r.Use(s.instrument)
	s.routes()
	return s
}

func (s *Server) routes() {
	s.r.Get("/healthz", s.health)
	s.r.Method(http.MethodGet, "/metrics", metrics.Handler(s.cfg.Gatherer))

	s.r.Route("/v1", func(r chi.Router) {
		r.Post("/process", s.process)
		r.Post("/process/batch", s.processBatch)
		r.Get("/reports/{event_id}", s.getReport)
		r.Group(func(r chi.Router) {
			if s.cfg.Auth != nil {
				r.Use(s.cfg.Auth.Authenticate, s.cfg.Auth.RequireRole(auth.RoleTrainer))
			}
			r.Post("/train", s.train)
		})
	})
}

// Handler returns the router wrapped with tracing and access logging.
func (s *Server) Handler() http.Handler {
	return otelobs.WrapHTTPHandler(ServiceName, otelobs.HTTPTraceLogMiddleware(s.cfg.Logger, s.r))
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.cfg.Metrics.ObserveHTTP(route, strconv.Itoa(status))
	})
}

type healthResponse struct {
	Status  string          `json:"status"`
	Oracles map[string]bool `json:"oracles"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok", Oracles: make(map[string]bool, len(s.cfg.Oracles))}
	for name, o := range s.cfg.Oracles {
		resp.Oracles[name] = o.Trained()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) process(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	state, err := s.cfg.Orchestrator.ProcessJSON(r.Context(), body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	report := state.Report()
	s.emit(r.Context(), report)
	writeJSON(w, http.StatusOK, report)
}

// BatchRequest is the body of /v1/process/batch and /v1/train.
type BatchRequest struct {
	Events []json.RawMessage `json:"events"`
}

// BatchResponse is the body returned by /v1/process/batch.
type BatchResponse struct {
	Reports []event.Report `json:"reports"`
}

func (s *Server) processBatch(w http.ResponseWriter, r *http.Request) {
	events, err := s.decodeBatch(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	states := s.cfg.Orchestrator.ProcessBatch(r.Context(), events, s.cfg.Workers)
	resp := BatchResponse{Reports: make([]event.Report, len(states))}
	for i, st := range states {
		resp.Reports[i] = st.Report()
		s.emit(r.Context(), resp.Reports[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) train(w http.ResponseWriter, r *http.Request) {
	events, err := s.decodeBatch(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(events) == 0 {
		writeError(w, http.StatusBadRequest, "no events provided")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.TrainTimeout)
	defer cancel()

	res, err := s.cfg.Trainer.Train(ctx, events)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, pipeline.ErrNoTrainingData):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, artifact.ErrConfiguration):
		writeError(w, http.StatusInternalServerError, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "event_id")
	if s.cfg.Recent == nil {
		writeError(w, http.StatusNotFound, "report cache disabled")
		return
	}
	report, ok := s.cfg.Recent.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no report for event %q", id))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// emit delivers a report to the sinks. Failures are logged by the sink
// and never fail the request.
func (s *Server) emit(ctx context.Context, report event.Report) {
	if s.cfg.Sink == nil {
		return
	}
	_ = s.cfg.Sink.Emit(ctx, report)
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("unable to read body: %w", err)
	}
	return body, nil
}

func (s *Server) decodeBatch(w http.ResponseWriter, r *http.Request) ([]event.Event, error) {
	body, err := s.readBody(w, r)
	if err != nil {
		return nil, err
	}
	var req BatchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	events := make([]event.Event, len(req.Events))
	for i, raw := range req.Events {
		ev, err := pipeline.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("events[%d]: %w", i, err)
		}
		events[i] = ev
	}
	return events, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
