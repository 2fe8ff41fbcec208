package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joeycumines/go-microsched/internal/app"
	"github.com/joeycumines/go-microsched/internal/config"
	"github.com/joeycumines/go-microsched/internal/watchdog"
)

const defaultConfigPath = "microsched.yaml"

func newRunCmd() *cobra.Command {
	var configPath string
	var watch bool
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured tasks until interrupted",
		Long: `Runs the task table from the config file on a real millisecond clock.

With --watch, edits to the config file are applied without restarting.
Under systemd, READY=1 is sent once the loop starts, and WATCHDOG=1 is sent
from the loop if the unit has WatchdogSec set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			logger := newLogger(cmd.ErrOrStderr(), cfg).With().
				Str("run_id", uuid.NewString()).
				Logger()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if duration > 0 {
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			options := app.Options{
				Config: cfg,
				Logger: logger,
			}
			if watch {
				options.WatchPath = configPath
			}
			if cfg.Watchdog.Enabled {
				options.Notifier, err = watchdog.New(watchdog.Options{
					Interval: cfg.Watchdog.Interval.Std(),
					Logger:   logger,
				})
				if err != nil {
					return fmt.Errorf("watchdog: %w", err)
				}
			}

			host, err := app.New(options)
			if err != nil {
				return err
			}
			return host.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to the task table")
	cmd.Flags().BoolVar(&watch, "watch", false, "Apply changes to the config file while running")
	cmd.Flags().DurationVar(&duration, "for", 0, "Stop after this long (default: until interrupted)")

	return cmd
}
