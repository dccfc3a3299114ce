package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"shieldx-cti/pkg/artifact"
	"shieldx-cti/pkg/auth"
	"shieldx-cti/pkg/collector"
	"shieldx-cti/pkg/config"
	"shieldx-cti/pkg/database"
	"shieldx-cti/pkg/metrics"
	"shieldx-cti/pkg/ml"
	otelobs "shieldx-cti/pkg/observability/otel"
	"shieldx-cti/pkg/pipeline"
	"shieldx-cti/pkg/sink"
	"shieldx-cti/pkg/structlog"
	"shieldx-cti/services/cti-pipeline/internal/server"
)

func main() {
	cfg, err := config.Load()
	logger := structlog.NewLogger(server.ServiceName, structlog.ParseLevel(cfg.LogLevel), os.Stdout)
	if err != nil {
		logger.Fatal("invalid configuration", structlog.Fields{"error": err})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer := otelobs.InitTracer(ctx, server.ServiceName, cfg.OTLPEndpoint, logger)
	defer shutdownTracer(context.Background())
	if cfg.OTLPEndpoint != "" {
		exp, err := metrics.NewOTelExporter(ctx, server.ServiceName, cfg.OTLPEndpoint, 30*time.Second)
		if err != nil {
			logger.Warn("otlp metrics disabled", structlog.Fields{"error": err})
		} else {
			defer exp.Shutdown(context.Background())
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewPipeline(reg)

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable at startup", structlog.Fields{"addr": cfg.RedisAddr, "error": err})
		}
	}

	var store artifact.Store
	switch cfg.ArtifactBackend {
	case config.BackendRedis:
		store = artifact.NewRedisStore(rdb, "")
	default:
		store = artifact.NewFileStore(cfg.ModelDir)
	}

	det := ml.NewAnomalyOracle(cfg.Anomaly(), store, logger)
	cls := ml.NewThreatClassifier(cfg.Classifier(), store, logger)
	for name, load := range map[string]func(context.Context) (bool, error){
		ml.AnomalyArtifact:    det.Load,
		ml.ClassifierArtifact: cls.Load,
	} {
		ok, err := load(ctx)
		switch {
		case err != nil:
			logger.Warn("model load failed; oracle stays untrained", structlog.Fields{"artifact": name, "error": err})
		case !ok:
			logger.Info("no persisted model; oracle stays untrained", structlog.Fields{"artifact": name})
		}
	}

	breaker := sink.DefaultBreakerSettings()
	breaker.OnStateChange = func(name string, from, to sink.BreakerState) {
		logger.Warn("sink circuit changed state", structlog.Fields{"sink": name, "from": from.String(), "to": to.String()})
	}
	recent := sink.NewRecent(cfg.RecentSize)
	sinks := []sink.Sink{recent}
	if rdb != nil {
		sinks = append(sinks, sink.NewBreaker(sink.NewRedisPublisher(rdb, cfg.ReportChannel), breaker))
	}
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name(server.ServiceName), nats.MaxReconnects(-1))
		if err != nil {
			logger.Warn("nats sink disabled", structlog.Fields{"url": cfg.NATSURL, "error": err})
		} else {
			defer nc.Drain()
			sinks = append(sinks, sink.NewBreaker(sink.NewNATSPublisher(nc, cfg.NATSSubject), breaker))
		}
	}
	if cfg.DatabaseURL != "" {
		db, err := database.Open(ctx, database.Config{DSN: cfg.DatabaseURL})
		if err != nil {
			logger.Fatal("database connection failed", structlog.Fields{"error": err})
		}
		defer db.Close()
		if err := database.AutoMigrate(ctx, db); err != nil {
			logger.Fatal("database migration failed", structlog.Fields{"error": err})
		}
		sinks = append(sinks, sink.NewBreaker(sink.NewPostgresStore(db.Primary), breaker))
	}

	var mw *auth.Middleware
	if cfg.AdminJWTSecret != "" {
		jm, err := auth.NewJWTManager(auth.JWTConfig{Secret: cfg.AdminJWTSecret})
		if err != nil {
			logger.Fatal("jwt setup failed", structlog.Fields{"error": err})
		}
		mw = auth.NewMiddleware(jm)
	} else {
		logger.Warn("CTI_ADMIN_JWT_SECRET not set; /v1/train is unauthenticated", nil)
	}

	srv := server.New(server.Config{
		Orchestrator: pipeline.New(det, cls, pipeline.WithLogger(logger), pipeline.WithMetrics(m)),
		Trainer:      pipeline.NewTrainer(det, cls, collector.Label, logger, m),
		Sink:         sink.NewFanout(logger, m, sinks...),
		Recent:       recent,
		Auth:         mw,
		Oracles:      map[string]server.Oracle{"anomaly": det, "classifier": cls},
		Logger:       logger,
		Metrics:      m,
		Gatherer:     reg,
		Workers:      cfg.Workers,
		TrainTimeout: cfg.TrainTimeout,
	})

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Info("cti-pipeline listening", structlog.Fields{"addr": cfg.HTTPAddr, "backend": cfg.ArtifactBackend, "sinks": len(sinks)})
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("cti-pipeline stopped", structlog.Fields{"error": err})
	}
}
