package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// SweepOptions holds flags for the sweep command.
type SweepOptions struct {
	*RootOptions
	OrgID uint
}

// NewSweepCommand runs one synchronization pass over recurring tasks.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SweepOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Synchronize every recurring task once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts.RootOptions)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.sweepSvc.Run(cmd.Context(), opts.OrgID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: tasks=%d created=%d deleted=%d preserved=%d failed=%d\n",
				report.RunID, report.Tasks, report.Created, report.Deleted, report.Preserved, report.Failed)
			if report.Failed > 0 {
				return fmt.Errorf("%d task(s) failed to synchronize", report.Failed)
			}
			return nil
		},
	}

	cmd.Flags().UintVar(&opts.OrgID, "org", 0, "limit the sweep to one organization")

	return cmd
}
