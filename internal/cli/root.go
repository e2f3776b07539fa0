package cli

import (
	"github.com/spf13/cobra"

	"taskflow/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	LogLevel string
	// loadConfig is swapped in tests.
	loadConfig func() (config.Config, error)
}

// NewRootCommand creates the root command for the taskflow CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{loadConfig: config.Load}

	cmd := &cobra.Command{
		Use:   "taskflow",
		Short: "Recurring task occurrence engine",
		Long: `taskflow expands recurring tasks into dated occurrences and keeps
them synchronized as rules, dates and assignees change.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override LOG_LEVEL (debug|info|warn|error)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))

	return cmd
}
