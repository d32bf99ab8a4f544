package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vigil/internal/ipc"
)

func newRetentionCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retention",
		Short: "Run the retention janitor now",
		Long: "Delete terminal sessions older than retention.session_days and prune " +
			"daemon log files past logging.retention_days without waiting for the schedule.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Retention()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d session(s), pruned %d log file(s)\n", resp.SessionsDeleted, resp.LogsPruned)
				return nil
			})
		},
	}
}
