package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewSyncCommand synchronizes the occurrences of one task.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync <task-id>",
		Short: "Synchronize the occurrences of one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil || taskID == 0 {
				return fmt.Errorf("invalid task id %q", args[0])
			}

			a, err := newApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.SyncTimeout)
			defer cancel()

			task, result, err := a.taskSvc.Resync(ctx, uint(taskID))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "task %d (%s): created=%d deleted=%d preserved=%d updated=%d\n",
				task.ID, task.Frequency(), result.CreatedCount, result.DeletedCount, result.PreservedCount, result.UpdatedCount)
			return nil
		},
	}
}
