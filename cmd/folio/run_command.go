package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"folio/internal/catalog"
	"folio/internal/logging"
	"folio/internal/pipeline"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var pollSeconds int
	var workers int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drain ready work in-process, then exit",
		Long: "Runs the acquisition pipeline in one-shot mode: claims and processes " +
			"tasks until nothing actionable remains, leaving only parked or terminal " +
			"items behind. Does not require the daemon.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if pollSeconds > 0 {
				cfg.Pipeline.QueuePollInterval = pollSeconds
			}
			if workers > 0 {
				cfg.Pipeline.Workers = workers
			}

			logger, err := logging.New(logging.Options{
				Level:  ctx.resolvedLogLevel(cfg),
				Format: cfg.Logging.Format,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			store, err := catalog.Open(cfg)
			if err != nil {
				return fmt.Errorf("open catalog store: %w", err)
			}
			defer store.Close()

			runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			manager := pipeline.New(cfg, store, logger)
			summary, err := manager.RunOnce(runCtx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run complete in %s\n", summary.Duration.Round(time.Millisecond))
			fmt.Fprintf(out, "  Completed: %d\n", summary.Processed)
			fmt.Fprintf(out, "  Failed:    %d\n", summary.Failed)
			if summary.Parked > 0 {
				fmt.Fprintf(out, "  Parked:    %d (waiting for download quota)\n", summary.Parked)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&pollSeconds, "poll", 0, "Queue poll interval override in seconds")
	cmd.Flags().IntVar(&workers, "workers", 0, "Worker count override")
	return cmd
}
