package cli

import (
	"fmt"
	"slices"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/joeycumines/go-microsched/internal/app"
	"github.com/joeycumines/go-microsched/internal/config"
)

func newSimulateCmd() *cobra.Command {
	var configPath string
	var until time.Duration
	var summary bool

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Print when each task would run, on a virtual clock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			sim, err := app.Simulate(cfg, until, newLogger(cmd.ErrOrStderr(), cfg))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !summary {
				for _, f := range sim.Firings {
					fmt.Fprintf(out, "%8dms  %s\n", f.At, f.Task)
				}
			}

			counts := sim.Counts()
			names := lo.Keys(counts)
			slices.Sort(names)
			for _, name := range names {
				fmt.Fprintf(out, "%s: %d\n", name, counts[name])
			}
			fmt.Fprintf(out, "steps: %d, fires: %d, overruns: %d\n", sim.Stats.Steps, sim.Stats.Fires, sim.Stats.Overruns)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to the task table")
	cmd.Flags().DurationVar(&until, "until", time.Second, "Virtual time to simulate")
	cmd.Flags().BoolVar(&summary, "summary", false, "Only print the per-task totals")

	return cmd
}
