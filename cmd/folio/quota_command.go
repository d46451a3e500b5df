package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"folio/internal/api"
	"folio/internal/catalog"
	"folio/internal/ipc"
	"folio/internal/logging"
	"folio/internal/quota"
	"folio/internal/scheduler"
	"folio/internal/services/mirror"
)

func newQuotaCommand(ctx *commandContext) *cobra.Command {
	var refresh bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Show the mirror download quota",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := fetchQuotaStatus(ctx, cmd, refresh)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, status)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintln(out, renderQuotaLine(status, colorize))
			if status.CheckedAt != "" {
				fmt.Fprintln(out, renderStatusLine("Checked", statusInfo, formatDisplayTime(status.CheckedAt), colorize))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Force a fresh mirror query instead of the cached snapshot")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of formatted text")
	return cmd
}

// fetchQuotaStatus asks the daemon for its cached reading and falls back to
// querying the mirror directly when the daemon is down.
func fetchQuotaStatus(ctx *commandContext, cmd *cobra.Command, refresh bool) (api.QuotaStatus, error) {
	if client, err := ipc.Dial(ctx.socketPath()); err == nil {
		defer client.Close()
		resp, err := client.Quota(refresh)
		if err != nil {
			return api.QuotaStatus{}, err
		}
		return api.QuotaStatus{
			Remaining: resp.Remaining,
			Limit:     resp.Limit,
			NextReset: resp.NextReset,
			CheckedAt: resp.CheckedAt,
		}, nil
	}

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return api.QuotaStatus{}, err
	}
	store, err := catalog.Open(cfg)
	if err != nil {
		return api.QuotaStatus{}, fmt.Errorf("open catalog store: %w", err)
	}
	defer store.Close()

	logger := logging.NewNop()
	sched := scheduler.New(cfg, store, logger)
	gate := quota.New(cfg, mirror.New(cfg, logger), store, sched, logger)
	snapshot, err := gate.Snapshot(cmd.Context(), refresh)
	if err != nil {
		return api.QuotaStatus{}, fmt.Errorf("query mirror limits: %w", err)
	}
	return api.FromQuotaSnapshot(snapshot), nil
}
