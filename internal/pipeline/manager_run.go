package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"folio/internal/catalog"
	"folio/internal/logging"
)

// reconcileInterval paces the janitor's parked-item sweep. The quota
// snapshot behind it is TTL-cached, so most ticks cost one stats query.
var reconcileInterval = 30 * time.Second

// Run executes the pipeline until the context is cancelled. Crash recovery
// and task-table hygiene run before the first claim.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.recoverInterrupted(ctx); err != nil {
		return err
	}
	if err := m.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	m.Stop()
	return nil
}

// RunSummary reports what a drain pass accomplished.
type RunSummary struct {
	Processed int
	Failed    int
	Parked    int
	Duration  time.Duration
}

// RunOnce drains the queue: the workers run until no pending or active task
// remains and no item is waiting on a follow-on transition, leaving only
// parked or terminal work behind. The summary counts items resolved during
// this pass.
func (m *Manager) RunOnce(ctx context.Context) (RunSummary, error) {
	if err := m.recoverInterrupted(ctx); err != nil {
		return RunSummary{}, err
	}

	start := time.Now()
	before, err := m.store.Health(ctx)
	if err != nil {
		return RunSummary{}, fmt.Errorf("read catalog health: %w", err)
	}

	if err := m.Start(ctx); err != nil {
		return RunSummary{}, err
	}

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
			break loop
		case <-ticker.C:
		}

		drained, err := m.queueDrained(ctx)
		if err != nil {
			runErr = err
			break loop
		}
		if drained {
			break loop
		}
	}
	m.Stop()

	after, err := m.store.Health(ctx)
	if err != nil && runErr == nil {
		runErr = fmt.Errorf("read catalog health: %w", err)
	}
	summary := RunSummary{
		Processed: after.Completed - before.Completed,
		Failed:    after.Failed - before.Failed,
		Parked:    after.Parked,
		Duration:  time.Since(start),
	}
	return summary, runErr
}

// queueDrained reports whether the pipeline has nothing actionable left:
// no live task, and no item resting in a status a worker is about to move.
// The status check closes the gap between a task retiring and the follow-on
// stage being scheduled.
func (m *Manager) queueDrained(ctx context.Context) (bool, error) {
	counts, err := m.sched.Counts(ctx)
	if err != nil {
		return false, fmt.Errorf("read task counts: %w", err)
	}
	if counts[catalog.TaskPending]+counts[catalog.TaskActive] > 0 {
		return false, nil
	}

	stats, err := m.store.Stats(ctx)
	if err != nil {
		return false, fmt.Errorf("read catalog stats: %w", err)
	}
	for _, status := range advanceableStatuses {
		if stats[status] > 0 {
			return false, nil
		}
	}
	return true, nil
}

// advanceableStatuses expect pipeline motion while a run is draining:
// either a live task exists for them or a worker sits between a task
// completion and the follow-on schedule.
var advanceableStatuses = []catalog.Status{
	catalog.StatusDetailComplete,
	catalog.StatusSearchQueued,
	catalog.StatusSearchComplete,
	catalog.StatusDownloadQueued,
	catalog.StatusDownloadComplete,
	catalog.StatusUploadQueued,
	catalog.StatusUploadComplete,
}

// recoverInterrupted rolls back work a previous process left in flight,
// cancels tasks whose item moved underneath them, re-admits parked items if
// the quota gate reopened, and makes sure every resting item holds a task.
func (m *Manager) recoverInterrupted(ctx context.Context) error {
	rolledBack, err := m.store.RecoverFromCrash(ctx)
	if err != nil {
		return fmt.Errorf("recover from crash: %w", err)
	}
	if rolledBack > 0 {
		m.logger.Info("rolled back interrupted items", logging.Int64("count", rolledBack))
	}

	if _, err := m.sched.CancelMismatched(ctx); err != nil {
		return fmt.Errorf("cancel mismatched tasks: %w", err)
	}

	m.reconcileParked(ctx, m.logger)

	if err := m.requeueReady(ctx); err != nil {
		return err
	}
	return nil
}

// requeueableStatuses map resting item statuses to the stage whose task
// should exist for them. search_no_results and the park status are absent
// deliberately: re-admission for those goes through manual retry and quota
// reconcile.
var requeueableStatuses = []struct {
	status catalog.Status
	stage  catalog.Stage
}{
	{catalog.StatusNew, catalog.StageDetail},
	{catalog.StatusDetailComplete, catalog.StageSearch},
	{catalog.StatusSearchQueued, catalog.StageSearch},
	{catalog.StatusSearchComplete, catalog.StageDownload},
	{catalog.StatusDownloadQueued, catalog.StageDownload},
	{catalog.StatusDownloadComplete, catalog.StageUpload},
	{catalog.StatusUploadQueued, catalog.StageUpload},
}

// requeueReady schedules tasks for items resting in a dispatchable status
// with no live task, and finishes the final transition for items a crash
// caught between upload completion and the terminal status. Scheduling is
// idempotent, so items that already hold a task are untouched.
func (m *Manager) requeueReady(ctx context.Context) error {
	finished, err := m.store.ItemsByStatus(ctx, catalog.StatusUploadComplete)
	if err != nil {
		return fmt.Errorf("list upload-complete items: %w", err)
	}
	for _, item := range finished {
		if err := m.store.Transition(ctx, item.ID, catalog.StatusUploadComplete, catalog.StatusCompleted, "pipeline complete"); err != nil {
			m.logger.Warn("could not finalize recovered item",
				logging.Int64(logging.FieldItemID, item.ID),
				logging.Error(err))
		}
	}

	requeued := 0
	for _, entry := range requeueableStatuses {
		items, err := m.store.ItemsByStatus(ctx, entry.status)
		if err != nil {
			return fmt.Errorf("list %s items: %w", entry.status, err)
		}
		for _, item := range items {
			_, created, err := m.sched.Schedule(ctx, item.ID, entry.stage, withItemPriority(item))
			if err != nil {
				return fmt.Errorf("schedule %s task for item %d: %w", entry.stage, item.ID, err)
			}
			if created {
				requeued++
			}
		}
	}
	if requeued > 0 {
		m.logger.Info("re-admitted resting items", logging.Int("count", requeued))
	}
	return nil
}

// Requeue re-admits resting items while the pipeline is running. The daemon
// calls it after manual catalog writes (add, retry) so fresh work does not
// wait for the next restart.
func (m *Manager) Requeue(ctx context.Context) error {
	return m.requeueReady(ctx)
}

// CleanupFinishedTasks prunes done and cancelled tasks past their retention
// windows. Failed tasks are kept longer for inspection.
func (m *Manager) CleanupFinishedTasks(ctx context.Context) (int64, error) {
	return m.sched.CleanupFinished(ctx)
}

func (m *Manager) runWorker(ctx context.Context, worker int, reclaims bool) {
	defer m.wg.Done()
	logger := m.workerLogger(worker)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if reclaims {
			if err := m.heartbeat.ReclaimStale(ctx, logger); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("stale item reclaim failed, stuck items may remain", logging.Error(err))
			}
		}

		m.setPhase(worker, PhasePolling)
		task, err := m.sched.NextReady(ctx)
		if err != nil {
			m.handleClaimError(ctx, logger, err)
			continue
		}
		if task == nil {
			m.setPhase(worker, PhaseIdle)
			m.waitForTaskOrShutdown(ctx)
			continue
		}

		if err := m.dispatch(ctx, worker, logger, task); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
		}
		m.setPhase(worker, PhaseIdle)
	}
}

func (m *Manager) handleClaimError(ctx context.Context, logger *slog.Logger, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	m.setLastError(err)
	logger.Error("failed to claim next task",
		logging.Error(err),
		logging.String(logging.FieldEventType, "task_claim_failed"),
		logging.String(logging.FieldErrorHint, "check catalog database access"),
	)
	select {
	case <-ctx.Done():
	case <-time.After(m.errorRetryInterval):
	}
}

func (m *Manager) waitForTaskOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(m.pollInterval):
	}
}

func (m *Manager) runJanitor(ctx context.Context) {
	defer m.wg.Done()
	logger := logging.NewComponentLogger(m.logger, "pipeline-janitor")
	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reconcileParked(ctx, logger)
		}
	}
}

// reconcileParked re-admits parked items when the quota gate has reopened.
// Cheap when nothing is parked; the quota probe only runs once parked items
// exist.
func (m *Manager) reconcileParked(ctx context.Context, logger *slog.Logger) {
	stats, err := m.store.Stats(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Warn("catalog stats unavailable for quota reconcile", logging.Error(err))
		}
		return
	}
	if stats[catalog.StatusSearchQuotaExhausted] == 0 {
		return
	}

	count, err := m.quota.Reconcile(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Warn("quota reconcile failed", logging.Error(err))
		}
		return
	}
	if count > 0 {
		m.notifyQuotaRestored(ctx, count)
	}
}

func (m *Manager) workerLogger(worker int) *slog.Logger {
	return m.logger.With(
		logging.String(logging.FieldComponent, "pipeline-worker"),
		logging.String(logging.FieldWorker, workerLabel(worker)),
	)
}

func workerLabel(worker int) string {
	return fmt.Sprintf("worker-%d", worker+1)
}
