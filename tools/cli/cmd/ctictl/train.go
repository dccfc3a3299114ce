package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"shieldx-cti/pkg/collector"
	"shieldx-cti/pkg/pipeline"
)

func newTrainCmd(g *globalOptions) *cobra.Command {
	var (
		limit   int
		shuffle bool
	)
	cmd := &cobra.Command{
		Use:   "train <path>",
		Short: "Train both oracles from labelled CSV/JSON exports",
		Long: `Train reads every .csv, .json, .jsonl and .ndjson file under <path>,
derives a ground-truth label for each record and fits the anomaly and
threat models. The previous models stay in place if training fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			o := g.open(cmd)
			defer o.close()

			events, err := collector.NewFileSource(args[0], o.logger).Collect(ctx, collector.Options{Max: limit, Shuffle: shuffle, Seed: g.seed})
			if err != nil {
				return err
			}
			res, err := pipeline.NewTrainer(o.detector, o.threat, collector.Label, o.logger, nil).Train(ctx, events)
			if err != nil {
				return fmt.Errorf("training failed: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "job %s: trained on %d samples (%d skipped) in %s\n", res.JobID, res.Samples, res.Skipped, res.Duration.Round(time.Millisecond))
			fmt.Fprintf(out, "classes: %s\n", strings.Join(res.Classes, ", "))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Use at most this many records (0 = all)")
	cmd.Flags().BoolVar(&shuffle, "shuffle", false, "Shuffle records before applying --limit")
	return cmd
}
