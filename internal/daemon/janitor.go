package daemon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/robfig/cron/v3"

	"folio/internal/logging"
	"folio/internal/staging"
)

// janitor runs the cron-scheduled maintenance jobs: finished-task pruning,
// staging directory cleanup, and log retention. Empty cron specs disable the
// corresponding job.
type janitor struct {
	daemon *Daemon
	cron   *cron.Cron
	logger *slog.Logger
}

func newJanitor(d *Daemon) *janitor {
	return &janitor{
		daemon: d,
		logger: logging.NewComponentLogger(d.logger, "daemon-janitor"),
	}
}

func (j *janitor) start(ctx context.Context) error {
	cfg := j.daemon.cfg
	c := cron.New()

	if spec := strings.TrimSpace(cfg.Maintenance.TaskCleanupCron); spec != "" {
		if _, err := c.AddFunc(spec, func() { j.cleanupTasks(ctx) }); err != nil {
			return fmt.Errorf("task cleanup schedule %q: %w", spec, err)
		}
	}
	if spec := strings.TrimSpace(cfg.Maintenance.StagingCleanupCron); spec != "" {
		if _, err := c.AddFunc(spec, func() { j.cleanupStaging(ctx) }); err != nil {
			return fmt.Errorf("staging cleanup schedule %q: %w", spec, err)
		}
	}
	if spec := strings.TrimSpace(cfg.Maintenance.LogCleanupCron); spec != "" {
		if _, err := c.AddFunc(spec, func() { j.cleanupLogs() }); err != nil {
			return fmt.Errorf("log cleanup schedule %q: %w", spec, err)
		}
	}

	c.Start()
	j.cron = c
	return nil
}

func (j *janitor) stop() {
	if j.cron == nil {
		return
	}
	stopCtx := j.cron.Stop()
	<-stopCtx.Done()
	j.cron = nil
}

func (j *janitor) cleanupTasks(ctx context.Context) {
	removed, err := j.daemon.manager.CleanupFinishedTasks(ctx)
	if err != nil {
		j.logger.Warn("task cleanup failed", logging.Error(err))
		return
	}
	if removed > 0 {
		j.logger.Info("pruned finished tasks", logging.Int64("removed", removed))
	}
}

func (j *janitor) cleanupStaging(ctx context.Context) {
	cfg := j.daemon.cfg
	stagingDir := cfg.Paths.StagingDir
	maxAge := time.Duration(cfg.Maintenance.StagingMaxAgeHours) * time.Hour

	stale := staging.CleanStale(ctx, stagingDir, maxAge, j.logger)

	active, err := j.daemon.store.ActiveExternalIDs(ctx)
	if err != nil {
		j.logger.Warn("could not list active items for orphan cleanup", logging.Error(err))
		return
	}
	orphaned := staging.CleanOrphaned(ctx, stagingDir, staging.ActiveSet(active), j.logger)

	if removed := len(stale.Removed) + len(orphaned.Removed); removed > 0 {
		j.logger.Info("staging cleanup finished",
			logging.Int("stale", len(stale.Removed)),
			logging.Int("orphaned", len(orphaned.Removed)))
	}
}

func (j *janitor) cleanupLogs() {
	cfg := j.daemon.cfg
	target := logging.RetentionTarget{
		Dir:     cfg.Paths.LogDir,
		Pattern: "folio-*.log",
	}
	if j.daemon.logPath != "" {
		target.Exclude = []string{j.daemon.logPath}
	}
	logging.CleanupOldLogs(j.logger, cfg.Logging.RetentionDays, target)
}
