package main

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"shieldx-cti/pkg/artifact"
	"shieldx-cti/pkg/ml"
	"shieldx-cti/pkg/structlog"
)

const version = "0.3.0"

type globalOptions struct {
	modelDir  string
	redisAddr string
	logLevel  string
	seed      int64
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "ctictl",
		Short: "Operate the CTI event pipeline",
		Long: `ctictl trains the anomaly and threat oracles from labelled flow
exports and runs event files through the detection pipeline.

Models are persisted under --model-dir, or in Redis when --redis-addr
is set, so the cti-pipeline service picks them up on its next start.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetVersionTemplate(fmt.Sprintf("ctictl version %s\n", version))

	pf := root.PersistentFlags()
	pf.StringVar(&opts.modelDir, "model-dir", envOr("CTI_MODEL_DIR", "./models"), "Directory holding model artifacts")
	pf.StringVar(&opts.redisAddr, "redis-addr", os.Getenv("CTI_REDIS_ADDR"), "Store artifacts in Redis at this address instead of --model-dir")
	pf.StringVar(&opts.logLevel, "log-level", envOr("LOG_LEVEL", "WARN"), "Log level written to stderr")
	pf.Int64Var(&opts.seed, "seed", 42, "Random seed for training")

	root.AddCommand(newTrainCmd(opts), newRunCmd(opts), newProcessCmd(opts))
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// oracles bundles the models a command works with.
type oracles struct {
	logger   *structlog.Logger
	detector *ml.AnomalyOracle
	threat   *ml.ThreatClassifier
	close    func() error
}

func (o *globalOptions) open(cmd *cobra.Command) *oracles {
	logger := structlog.NewLogger("ctictl", structlog.ParseLevel(o.logLevel), cmd.ErrOrStderr())
	var store artifact.Store = artifact.NewFileStore(o.modelDir)
	closeFn := func() error { return nil }
	if o.redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: o.redisAddr})
		store = artifact.NewRedisStore(rdb, "")
		closeFn = rdb.Close
	}

	acfg := ml.DefaultAnomalyConfig()
	acfg.Seed = o.seed
	ccfg := ml.DefaultClassifierConfig()
	ccfg.Seed = o.seed
	return &oracles{
		logger:   logger,
		detector: ml.NewAnomalyOracle(acfg, store, logger),
		threat:   ml.NewThreatClassifier(ccfg, store, logger),
		close:    closeFn,
	}
}

// load restores persisted models. Missing models are reported, not fatal.
func (o *oracles) load(ctx context.Context, cmd *cobra.Command) error {
	for name, load := range map[string]func(context.Context) (bool, error){
		ml.AnomalyArtifact:    o.detector.Load,
		ml.ClassifierArtifact: o.threat.Load,
	} {
		ok, err := load(ctx)
		if err != nil {
			return fmt.Errorf("load %s: %w", name, err)
		}
		if !ok {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: no %s model found; run `ctictl train` first\n", name)
		}
	}
	return nil
}
