// Package config loads the pipeline service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"shieldx-cti/pkg/ml"
)

// Artifact backends.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// Config holds every CTI_* setting.
type Config struct {
	HTTPAddr        string
	ModelDir        string
	ArtifactBackend string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	ReportChannel string

	NATSURL     string
	NATSSubject string

	DatabaseURL string
	RecentSize  int

	Workers        int
	AdminJWTSecret string

	IForestTrees  int
	IForestSample int
	Contamination float64
	ScoreOffset   float64
	ScoreScale    float64
	ForestTrees   int
	Seed          int64
	TrainTimeout  time.Duration

	LogLevel     string
	OTLPEndpoint string
}

// Load reads the environment, applies defaults and validates the result.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	e := env{get: getenv}
	cfg := Config{
		HTTPAddr:        e.str("CTI_HTTP_ADDR", ":7010"),
		ModelDir:        e.str("CTI_MODEL_DIR", "./models"),
		ArtifactBackend: strings.ToLower(e.str("CTI_ARTIFACT_BACKEND", BackendFile)),
		RedisAddr:       e.str("CTI_REDIS_ADDR", ""),
		RedisPassword:   e.str("CTI_REDIS_PASSWORD", ""),
		RedisDB:         e.integer("CTI_REDIS_DB", 0),
		ReportChannel:   e.str("CTI_REPORT_CHANNEL", "cti.reports"),
		NATSURL:         e.str("CTI_NATS_URL", ""),
		NATSSubject:     e.str("CTI_NATS_SUBJECT", "cti.reports"),
		DatabaseURL:     e.str("CTI_DATABASE_URL", ""),
		RecentSize:      e.integer("CTI_RECENT_SIZE", 4096),
		Workers:         e.integer("CTI_WORKERS", runtime.NumCPU()),
		AdminJWTSecret:  e.str("CTI_ADMIN_JWT_SECRET", ""),
		IForestTrees:    e.integer("CTI_IFOREST_TREES", 100),
		IForestSample:   e.integer("CTI_IFOREST_SAMPLE", 256),
		Contamination:   e.float("CTI_CONTAMINATION", 0.1),
		ScoreOffset:     e.float("CTI_SCORE_OFFSET", 0.5),
		ScoreScale:      e.float("CTI_SCORE_SCALE", 0.5),
		ForestTrees:     e.integer("CTI_FOREST_TREES", 50),
		Seed:            int64(e.integer("CTI_SEED", 42)),
		TrainTimeout:    e.duration("CTI_TRAIN_TIMEOUT", 10*time.Minute),
		LogLevel:        e.str("LOG_LEVEL", "INFO"),
		OTLPEndpoint:    e.str("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
	if len(e.errs) > 0 {
		return cfg, errors.Join(e.errs...)
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the oracles or stores cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Contamination <= 0 || c.Contamination > 0.5 {
		errs = append(errs, fmt.Errorf("CTI_CONTAMINATION must be in (0, 0.5], got %v", c.Contamination))
	}
	if c.IForestTrees <= 0 {
		errs = append(errs, fmt.Errorf("CTI_IFOREST_TREES must be positive, got %d", c.IForestTrees))
	}
	if c.IForestSample <= 1 {
		errs = append(errs, fmt.Errorf("CTI_IFOREST_SAMPLE must be greater than 1, got %d", c.IForestSample))
	}
	if c.ForestTrees <= 0 {
		errs = append(errs, fmt.Errorf("CTI_FOREST_TREES must be positive, got %d", c.ForestTrees))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("CTI_WORKERS must be positive, got %d", c.Workers))
	}
	if c.TrainTimeout <= 0 {
		errs = append(errs, fmt.Errorf("CTI_TRAIN_TIMEOUT must be positive, got %s", c.TrainTimeout))
	}
	switch c.ArtifactBackend {
	case BackendFile:
		if c.ModelDir == "" {
			errs = append(errs, errors.New("CTI_MODEL_DIR is required for the file backend"))
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("CTI_REDIS_ADDR is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown CTI_ARTIFACT_BACKEND %q", c.ArtifactBackend))
	}
	return errors.Join(errs...)
}

// Anomaly returns the isolation forest settings.
func (c Config) Anomaly() ml.AnomalyConfig {
	a := ml.DefaultAnomalyConfig()
	a.NumTrees = c.IForestTrees
	a.SampleSize = c.IForestSample
	a.Contamination = c.Contamination
	a.ScoreOffset = c.ScoreOffset
	a.ScoreScale = c.ScoreScale
	a.Seed = c.Seed
	return a
}

// Classifier returns the random forest settings.
func (c Config) Classifier() ml.ClassifierConfig {
	cl := ml.DefaultClassifierConfig()
	cl.NumTrees = c.ForestTrees
	cl.Seed = c.Seed
	return cl
}

type env struct {
	get  func(string) string
	errs []error
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(e.get(key)); v != "" {
		return v
	}
	return def
}

func (e *env) integer(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (e *env) float(key string, def float64) float64 {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}
