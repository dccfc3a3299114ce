package main

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"shieldx-cti/pkg/event"
	"shieldx-cti/pkg/pipeline"
)

func newProcessCmd(g *globalOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "process [file]",
		Short: "Process one JSON event from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseFormat(output)
			if err != nil {
				return err
			}
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			data, err := io.ReadAll(in)
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
			state, err := pipeline.New(o.detector, o.threat, pipeline.WithLogger(o.logger)).ProcessJSON(ctx, data)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), format, []event.Report{state.Report()})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", string(formatJSON), "Output format: summary, json or yaml")
	return cmd
}
