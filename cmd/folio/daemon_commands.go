package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"folio/internal/api"
	"folio/internal/daemonctl"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the folio daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(
				ctx.socketPath(),
				exe,
				daemonLaunchOptions(ctx),
				10*time.Second,
			)
			if err != nil {
				return err
			}

			if result.Launched {
				fmt.Fprintln(stdout, "Daemon not running, launching...")
			}

			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintln(stdout, "Daemon started")
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			case daemonctl.StartStateRequested:
				if strings.TrimSpace(result.Message) != "" {
					fmt.Fprintln(stdout, result.Message)
					return nil
				}
				fmt.Fprintln(stdout, "Start request sent")
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the folio daemon (completely terminates the process)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), 5*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if !result.StopAcknowledged {
				fmt.Fprintln(stdout, "Stop request sent")
			} else {
				fmt.Fprintln(stdout, "Stopping pipeline workers...")
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the folio daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.Restart(
				ctx.socketPath(),
				ctx.configValue(),
				exe,
				daemonLaunchOptions(ctx),
				5*time.Second,
				10*time.Second,
			)
			if err != nil {
				return err
			}

			if result.WasRunning {
				if result.Stop.ForcedKill && result.Stop.PID > 0 {
					fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", result.Stop.PID)
				}
				fmt.Fprintln(stdout, "Daemon stopped")
			}

			switch result.Start.State {
			case daemonctl.StartStateStarted, daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon restarted")
			case daemonctl.StartStateRequested:
				if strings.TrimSpace(result.Start.Message) != "" {
					fmt.Fprintln(stdout, result.Start.Message)
					return nil
				}
				fmt.Fprintln(stdout, "Start request sent")
			}
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, pipeline, quota, and catalog status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			snapshot, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), cfg)
			if err != nil {
				return err
			}
			renderDaemonStatus(cmd, snapshot)
			return nil
		},
	}

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

func renderDaemonStatus(cmd *cobra.Command, snapshot api.DaemonStatus) {
	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)

	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(stdout, line)
	}
	if snapshot.Running {
		fmt.Fprintln(stdout, renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", snapshot.PID), colorize))
	} else {
		fmt.Fprintln(stdout, renderStatusLine("Daemon", statusWarn, "Not running", colorize))
	}
	fmt.Fprintln(stdout, renderStatusLine("Catalog DB", statusInfo, snapshot.CatalogDBPath, colorize))
	if len(snapshot.Pipeline.WorkerPhases) > 0 {
		fmt.Fprintln(stdout, renderStatusLine("Workers", statusInfo, strings.Join(snapshot.Pipeline.WorkerPhases, ", "), colorize))
	}
	if snapshot.Pipeline.LastError != "" {
		fmt.Fprintln(stdout, renderStatusLine("Last error", statusWarn, snapshot.Pipeline.LastError, colorize))
	}
	fmt.Fprintln(stdout)

	if len(snapshot.Preflight) > 0 {
		for _, line := range renderSectionHeader("Environment", colorize) {
			fmt.Fprintln(stdout, line)
		}
		for _, check := range snapshot.Preflight {
			fmt.Fprintln(stdout, renderStatusLine(check.Name, boolStatusKind(check.Passed), check.Detail, colorize))
		}
		fmt.Fprintln(stdout)
	}

	if len(snapshot.Pipeline.StageHealth) > 0 {
		for _, line := range renderSectionHeader("Stages", colorize) {
			fmt.Fprintln(stdout, line)
		}
		for _, health := range snapshot.Pipeline.StageHealth {
			kind := statusOK
			if !health.Ready {
				kind = statusWarn
			}
			fmt.Fprintln(stdout, renderStatusLine(formatStatusLabel(health.Name), kind, health.Detail, colorize))
		}
		fmt.Fprintln(stdout)
	}

	if snapshot.Pipeline.Quota != nil {
		for _, line := range renderSectionHeader("Quota", colorize) {
			fmt.Fprintln(stdout, line)
		}
		fmt.Fprintln(stdout, renderQuotaLine(*snapshot.Pipeline.Quota, colorize))
		fmt.Fprintln(stdout)
	}

	for _, line := range renderSectionHeader("Catalog", colorize) {
		fmt.Fprintln(stdout, line)
	}
	rows := buildStatsRows(snapshot.Pipeline.ItemStats)
	if len(rows) == 0 {
		fmt.Fprintln(stdout, "Catalog is empty")
		return
	}
	fmt.Fprintln(stdout, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
}

func renderQuotaLine(quota api.QuotaStatus, colorize bool) string {
	kind := statusOK
	if quota.Remaining <= 0 {
		kind = statusWarn
	}
	detail := fmt.Sprintf("%d of %d downloads remaining", quota.Remaining, quota.Limit)
	if quota.NextReset != "" {
		detail += fmt.Sprintf(" (resets %s)", formatDisplayTime(quota.NextReset))
	}
	return renderStatusLine("Downloads", kind, detail, colorize)
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{}
	if ctx.configFlag != nil {
		if path := strings.TrimSpace(*ctx.configFlag); path != "" {
			opts.ConfigPath = path
		}
	}
	if ctx.logLevelFlag != nil {
		if level := strings.TrimSpace(*ctx.logLevelFlag); level != "" {
			opts.LogLevel = level
		}
	}
	return opts
}
