// Package cli implements the microsched command.
package cli

import (
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/joeycumines/go-microsched/internal/config"
	"github.com/joeycumines/go-microsched/internal/logx"
)

var (
	flagLogLevel  string
	flagLogFormat string
)

// NewRootCmd creates the root cobra command for the microsched CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "microsched",
		Short: "Cooperative millisecond task scheduler",
		Long: `microsched runs a table of periodic and one-shot tasks on a cooperative,
round-robin scheduler driven by a millisecond tick.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (trace, debug, info, warn, error), overrides the config")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "Log format (console, json), overrides the config")

	root.AddCommand(
		newRunCmd(),
		newSimulateCmd(),
		newValidateCmd(),
	)

	return root
}

// newLogger builds the logger for cfg, with any flag overrides applied.
func newLogger(w io.Writer, cfg *config.Config) zerolog.Logger {
	level, format := cfg.Log.Level, cfg.Log.Format
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	if flagLogFormat != "" {
		format = flagLogFormat
	}
	return logx.New(w, level, format)
}
