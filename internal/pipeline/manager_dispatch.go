package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"

	"folio/internal/catalog"
	"folio/internal/logging"
	"folio/internal/scheduler"
	"folio/internal/services"
	"folio/internal/stage"
)

// dispatch resolves one claimed task: load the item, gate downloads on
// quota, walk the item into the stage's active status, run the handler
// under a heartbeat, and apply the outcome.
func (m *Manager) dispatch(ctx context.Context, worker int, logger *slog.Logger, task *catalog.Task) error {
	m.setPhase(worker, PhaseDispatching)

	item, err := m.store.GetByID(ctx, task.ItemID)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		m.setLastError(err)
		logger.Error("failed to load item for task",
			logging.Int64(logging.FieldTaskID, task.ID),
			logging.Error(err))
		if _, retryErr := m.sched.RetryAfter(ctx, task.ID, m.errorRetryInterval, err); retryErr != nil && !errors.Is(retryErr, context.Canceled) {
			logger.Warn("task requeue failed", logging.Error(retryErr))
		}
		return nil
	}
	if item == nil {
		m.cancelTask(ctx, logger, task, "item removed")
		return nil
	}

	handler := m.handlerFor(task.Stage)
	if handler == nil {
		logger.Warn("no handler registered for stage", logging.String(logging.FieldStage, string(task.Stage)))
		m.cancelTask(ctx, logger, task, "no handler registered for stage")
		return nil
	}
	if !handler.CanProcess(item) {
		logger.Warn("item status no longer matches stage",
			logging.Int64(logging.FieldItemID, item.ID),
			logging.String(logging.FieldStage, string(task.Stage)),
			logging.String("status", string(item.Status)))
		m.cancelTask(ctx, logger, task, "item status no longer matches stage")
		return nil
	}

	if task.Stage == catalog.StageDownload {
		available, err := m.quota.Available(ctx)
		switch {
		case errors.Is(err, context.Canceled):
			return err
		case err != nil:
			// The stage re-checks the gate and classifies the failure, so a
			// flaky limits endpoint does not park the queue from here.
			logger.Warn("quota gate unreachable, dispatching anyway", logging.Error(err))
		case !available:
			m.setPhase(worker, PhaseGated)
			m.parkForQuota(ctx, logger, task)
			return nil
		}
	}

	m.onWorkStarted(ctx)

	requestID := uuid.NewString()
	stageCtx := withStageContext(ctx, task, workerLabel(worker), requestID)
	stageLogger := logging.WithContext(stageCtx, logger)

	if err := m.activate(stageCtx, task, item); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		m.setLastError(err)
		if errors.Is(err, catalog.ErrInvalidTransition) || errors.Is(err, catalog.ErrConflict) || errors.Is(err, catalog.ErrItemNotFound) {
			stageLogger.Warn("item moved before activation", logging.Error(err))
			m.cancelTask(stageCtx, stageLogger, task, "item moved before activation")
			return nil
		}
		stageLogger.Error("failed to activate item", logging.Error(err))
		if _, retryErr := m.sched.RetryAfter(stageCtx, task.ID, m.errorRetryInterval, err); retryErr != nil && !errors.Is(retryErr, context.Canceled) {
			stageLogger.Warn("task requeue failed", logging.Error(retryErr))
		}
		return nil
	}

	return m.executeStage(stageCtx, worker, stageLogger, handler, task, item)
}

func (m *Manager) executeStage(ctx context.Context, worker int, logger *slog.Logger, handler stage.Handler, task *catalog.Task, item *catalog.Item) error {
	started := time.Now()
	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.Int64(logging.FieldTaskID, task.ID),
		logging.Int("attempt", task.RetryCount+1),
		logging.String("title", itemLabel(item)))

	execErr := m.executeWithHeartbeat(ctx, handler, item)
	if execErr != nil {
		if errors.Is(execErr, context.Canceled) {
			logger.Debug("stage interrupted by shutdown")
			return execErr
		}
		m.setPhase(worker, PhaseApplyingFailure)
		m.setLastError(execErr)
		m.applyFailure(ctx, logger, task, item, execErr)
		return nil
	}

	m.setPhase(worker, PhaseApplyingSuccess)
	return m.applySuccess(ctx, logger, task, item, time.Since(started))
}

// executeWithHeartbeat runs the handler while a companion goroutine keeps
// the item's heartbeat fresh. The stage timeout bounds the handler only;
// the heartbeat stops after the handler returns.
func (m *Manager) executeWithHeartbeat(ctx context.Context, handler stage.Handler, item *catalog.Item) error {
	execCtx := ctx
	if m.stageTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, m.stageTimeout)
		defer cancel()
	}

	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, item.ID)

	execErr := handler.Process(execCtx, item)
	hbCancel()
	hbWG.Wait()
	return execErr
}

// activate walks the item into the stage's active status. Recovery and
// reconcile can schedule a task while the item still holds the previous
// stage's done status or the park status, so the queued hop happens here
// when needed.
func (m *Manager) activate(ctx context.Context, task *catalog.Task, item *catalog.Item) error {
	active := catalog.ActiveStatusFor(task.Stage)
	if item.Status != active {
		queued := catalog.QueuedStatusFor(task.Stage)
		if item.Status != queued {
			if err := m.store.Transition(ctx, item.ID, item.Status, queued, fmt.Sprintf("%s queued", task.Stage)); err != nil {
				return err
			}
			item.Status = queued
		}
		if err := m.store.Transition(ctx, item.ID, queued, active, fmt.Sprintf("%s started", task.Stage)); err != nil {
			return err
		}
		item.Status = active
	}

	label := deriveStageLabel(task.Stage)
	item.SetProgress(label, fmt.Sprintf("%s started", label), 0)
	if err := m.store.UpdateProgress(ctx, item); err != nil && !errors.Is(err, context.Canceled) {
		logging.WithContext(ctx, m.logger).Warn("could not initialize progress", logging.Error(err))
	}
	return nil
}

// applySuccess persists the handler's item mutations, records the done
// transition, retires the task, and advances the item to the next stage.
func (m *Manager) applySuccess(ctx context.Context, logger *slog.Logger, task *catalog.Task, item *catalog.Item, elapsed time.Duration) error {
	if err := m.store.Update(ctx, item); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, stage result not persisted")
			return err
		}
		wrapped := fmt.Errorf("persist stage result: %w", err)
		logger.Error("failed to persist stage result", logging.Error(wrapped))
		m.setLastError(wrapped)
		if _, retryErr := m.sched.RetryAfter(ctx, task.ID, m.errorRetryInterval, wrapped); retryErr != nil && !errors.Is(retryErr, context.Canceled) {
			logger.Warn("task requeue failed", logging.Error(retryErr))
		}
		return nil
	}

	done := catalog.DoneStatusFor(task.Stage)
	detail := catalog.TransitionDetail{
		Note:       fmt.Sprintf("%s completed", task.Stage),
		Elapsed:    elapsed,
		RetryCount: task.RetryCount,
	}
	if err := m.store.TransitionDetailed(ctx, item.ID, item.Status, done, detail); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		m.setLastError(err)
		if errors.Is(err, catalog.ErrInvalidTransition) || errors.Is(err, catalog.ErrConflict) || errors.Is(err, catalog.ErrItemNotFound) {
			// Someone moved the item mid-stage (quota park, manual edit).
			// The stage's side effects are idempotent, so just let go.
			logger.Warn("item moved during stage", logging.Error(err))
			m.cancelTask(ctx, logger, task, "item status changed during stage")
			return nil
		}
		logger.Error("failed to record stage transition", logging.Error(err))
		if _, retryErr := m.sched.RetryAfter(ctx, task.ID, m.errorRetryInterval, err); retryErr != nil && !errors.Is(retryErr, context.Canceled) {
			logger.Warn("task requeue failed", logging.Error(retryErr))
		}
		return nil
	}
	item.Status = done

	if err := m.sched.Complete(ctx, task.ID, fmt.Sprintf("%s completed", task.Stage)); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("task completion not recorded", logging.Error(err))
	}

	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_status", string(item.Status)),
		logging.Duration("stage_duration", elapsed))
	m.setLastItem(item)

	if err := m.advance(ctx, logger, item); err != nil {
		return err
	}
	m.checkRunCompletion(ctx)
	return nil
}

// advance moves a finished item to its next resting place and schedules the
// follow-on task. The task is created only after the queued transition
// committed, which keeps the item on a single live task.
func (m *Manager) advance(ctx context.Context, logger *slog.Logger, item *catalog.Item) error {
	next, ok := catalog.NextStageStatus(item.Status)
	if !ok {
		return nil
	}

	if next == catalog.StatusCompleted {
		if err := m.store.Transition(ctx, item.ID, item.Status, next, "pipeline complete"); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			logger.Error("failed to finalize item", logging.Error(err))
			m.setLastError(err)
			return nil
		}
		item.Status = next
		item.ProgressStage = "Completed"
		if item.ProgressPercent < 100 {
			item.ProgressPercent = 100
		}
		if err := m.store.UpdateProgress(ctx, item); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("could not update progress label", logging.Error(err))
		}
		m.bumpRunProcessed()
		m.setLastItem(item)
		logger.Info("item completed",
			logging.String(logging.FieldEventType, "item_complete"),
			logging.String("title", itemLabel(item)),
			logging.String("shelf_path", strings.TrimSpace(item.ShelfPath)))
		return nil
	}

	if next == catalog.StatusDownloadQueued {
		available, err := m.quota.Available(ctx)
		switch {
		case errors.Is(err, context.Canceled):
			return err
		case err != nil:
			logger.Warn("quota gate unreachable, queueing download anyway", logging.Error(err))
		case !available:
			m.parkForQuota(ctx, logger, nil)
			return nil
		}
	}

	nextStage, ok := catalog.StageForStatus(next)
	if !ok {
		return nil
	}
	if err := m.store.Transition(ctx, item.ID, item.Status, next, fmt.Sprintf("%s queued", nextStage)); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		logger.Error("failed to queue next stage", logging.Error(err))
		m.setLastError(err)
		return nil
	}
	item.Status = next

	if _, _, err := m.sched.Schedule(ctx, item.ID, nextStage, withItemPriority(item)); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		// The item rests in the queued status; the next recovery pass
		// re-admits it.
		logger.Error("failed to schedule next stage", logging.Error(err))
		m.setLastError(err)
		return nil
	}
	m.setLastItem(item)
	return nil
}

// parkForQuota retires the gated task (when one is held) and parks
// everything waiting on download quota.
func (m *Manager) parkForQuota(ctx context.Context, logger *slog.Logger, task *catalog.Task) {
	if task != nil {
		m.cancelTask(ctx, logger, task, "download quota exhausted")
	}
	parked, err := m.quota.Park(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Error("quota parking failed", logging.Error(err))
			m.setLastError(err)
		}
		return
	}
	if parked > 0 {
		logger.Info("parked downloads until quota restores",
			logging.String(logging.FieldEventType, "quota_parked"),
			logging.Int64("count", parked))
		m.notifyQuotaExhausted(ctx)
	}
	m.checkRunCompletion(ctx)
}

func (m *Manager) cancelTask(ctx context.Context, logger *slog.Logger, task *catalog.Task, reason string) {
	if err := m.sched.Cancel(ctx, task.ID, reason); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("task cancel failed",
			logging.Int64(logging.FieldTaskID, task.ID),
			logging.Error(err))
	}
	m.checkRunCompletion(ctx)
}

func withStageContext(ctx context.Context, task *catalog.Task, worker, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = services.WithItemID(ctx, task.ItemID)
	ctx = services.WithStage(ctx, string(task.Stage))
	ctx = services.WithWorker(ctx, worker)
	ctx = services.WithRequestID(ctx, requestID)
	return ctx
}

func withItemPriority(item *catalog.Item) scheduler.Option {
	return scheduler.WithPriority(item.Priority)
}

func itemLabel(item *catalog.Item) string {
	if item == nil {
		return ""
	}
	if title := strings.TrimSpace(item.Title); title != "" {
		return title
	}
	if externalID := strings.TrimSpace(item.ExternalID); externalID != "" {
		return externalID
	}
	return fmt.Sprintf("item #%d", item.ID)
}

func deriveStageLabel(stg catalog.Stage) string {
	parts := strings.Fields(strings.ReplaceAll(string(stg), "_", " "))
	for i, part := range parts {
		runes := []rune(strings.ToLower(part))
		if len(runes) == 0 {
			continue
		}
		runes[0] = unicode.ToUpper(runes[0])
		parts[i] = string(runes)
	}
	return strings.Join(parts, " ")
}
