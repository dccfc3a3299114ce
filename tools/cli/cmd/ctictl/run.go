package main

import (
	"context"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"shieldx-cti/pkg/collector"
	"shieldx-cti/pkg/event"
	"shieldx-cti/pkg/pipeline"
)

func newRunCmd(g *globalOptions) *cobra.Command {
	var (
		limit   int
		workers int
		output  string
	)
	cmd := &cobra.Command{
		Use:   "run <path>",
		Short: "Run the first N events of a source through the pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseFormat(output)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			o := g.open(cmd)
			defer o.close()
			if err := o.load(ctx, cmd); err != nil {
				return err
			}

			events, err := collector.NewFileSource(args[0], o.logger).Collect(ctx, collector.Options{Max: limit})
			if err != nil {
				return err
			}
			orch := pipeline.New(o.detector, o.threat, pipeline.WithLogger(o.logger))
			states := orch.ProcessBatch(ctx, events, workers)
			reports := make([]event.Report, len(states))
			for i, s := range states {
				reports[i] = s.Report()
			}
			return render(cmd.OutOrStdout(), format, reports)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Process at most this many events (0 = all)")
	cmd.Flags().IntVarP(&workers, "workers", "w", runtime.NumCPU(), "Concurrent pipeline workers")
	cmd.Flags().StringVarP(&output, "output", "o", string(formatSummary), fmt.Sprintf("Output format: %s, %s or %s", formatSummary, formatJSON, formatYAML))
	return cmd
}
