package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vigil/internal/ipc"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification to the configured ntfy topic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TestNotification()
				if resp != nil {
					fmt.Fprintln(cmd.OutOrStdout(), notifyOutcome(*resp))
				}
				return err
			})
		},
	}
}

func notifyOutcome(resp ipc.TestNotificationResponse) string {
	switch {
	case resp.Message != "":
		return resp.Message
	case resp.Sent:
		return "Test notification sent"
	default:
		return "Notification not sent"
	}
}
