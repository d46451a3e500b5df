package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"folio/internal/ipc"
	"folio/internal/notifications"
)

func newNotifyCommand(ctx *commandContext) *cobra.Command {
	var test bool

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Notification utilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !test {
				return errors.New("specify --test to send a test notification")
			}

			// Prefer the daemon so the test exercises its notifier; fall
			// back to an in-process send when it is down.
			if client, err := ipc.Dial(ctx.socketPath()); err == nil {
				defer client.Close()
				resp, err := client.TestNotification()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				switch {
				case resp == nil:
					return errors.New("missing notification response")
				case strings.TrimSpace(resp.Message) != "":
					fmt.Fprintln(out, resp.Message)
				case resp.Sent:
					fmt.Fprintln(out, "Test notification sent")
				default:
					fmt.Fprintln(out, "Notification not sent")
				}
				return nil
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "Notifications not configured (set notifications.ntfy_topic)")
				return nil
			}
			if err := notifications.NewService(cfg).Publish(cmd.Context(), notifications.EventTest, nil); err != nil {
				return fmt.Errorf("send test notification: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
			return nil
		},
	}

	cmd.Flags().BoolVar(&test, "test", false, "Send a test notification")
	return cmd
}
