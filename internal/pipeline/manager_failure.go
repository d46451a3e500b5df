package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"folio/internal/catalog"
	"folio/internal/logging"
	"folio/internal/recovery"
	"folio/internal/services"
)

// applyFailure maps a handler error onto the catalog through the recovery
// classifier: requeue with backoff, skip to a terminal status, park the
// download queue, or fail permanently.
func (m *Manager) applyFailure(ctx context.Context, logger *slog.Logger, task *catalog.Task, item *catalog.Item, stageErr error) {
	action := recovery.Decide(task.Stage, stageErr, task.RetryCount)
	message := failureMessage(task.Stage, stageErr)

	switch act := action.(type) {
	case recovery.Retry:
		m.retryStage(ctx, logger, task, item, stageErr, message, act.Delay)
	case recovery.Skip:
		m.skipItem(ctx, logger, task, item, act)
	case recovery.Gate:
		m.quota.MarkExhausted(time.Time{})
		m.parkForQuota(ctx, logger, task)
	case recovery.Fail:
		m.failItem(ctx, logger, task, item, stageErr, act.Reason)
	default:
		m.failItem(ctx, logger, task, item, stageErr, message)
	}
}

func failureMessage(stg catalog.Stage, err error) string {
	if err == nil {
		return fmt.Sprintf("%s failed without error detail", stg)
	}
	if msg := strings.TrimSpace(services.Details(err).Message); msg != "" {
		return msg
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return fmt.Sprintf("%s failed", stg)
}

// retryStage rolls the item back to the stage's retry anchor and hands the
// task to the scheduler with the classifier's delay. The scheduler owns the
// retry budget; when it refuses the requeue the item fails permanently.
func (m *Manager) retryStage(ctx context.Context, logger *slog.Logger, task *catalog.Task, item *catalog.Item, stageErr error, message string, delay time.Duration) {
	target, ok := catalog.FailureStatusFor(task.Stage)
	if !ok {
		target = catalog.RetryStatusFor(task.Stage)
	}
	detail := catalog.TransitionDetail{
		Note:         fmt.Sprintf("%s failed, retry scheduled", task.Stage),
		ErrorMessage: message,
		RetryCount:   task.RetryCount + 1,
	}
	if err := m.store.TransitionDetailed(ctx, item.ID, item.Status, target, detail); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		// The requeue still proceeds; activation walks the item back into
		// place on the next attempt.
		logger.Error("failed to record retry transition", logging.Error(err))
		m.setLastError(err)
	} else {
		item.Status = target
		item.ErrorMessage = message
	}

	outcome, err := m.sched.RetryAfter(ctx, task.ID, delay, stageErr)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Error("failed to requeue task", logging.Error(err))
			m.setLastError(err)
		}
		return
	}
	if !outcome.Requeued {
		m.finalizeItemFailure(ctx, logger, task, item, stageErr, message)
		return
	}

	logger.Warn("stage failed, retry scheduled",
		logging.String(logging.FieldEventType, "stage_retry"),
		logging.Int("attempt", outcome.Attempts),
		logging.Duration("retry_delay", outcome.Delay),
		logging.String("error_message", message))
	m.setLastItem(item)
}

// skipItem retires the task and parks the item in the classifier's terminal
// status. A skip the transition graph rejects falls through to a permanent
// failure so the item never strands in an active status.
func (m *Manager) skipItem(ctx context.Context, logger *slog.Logger, task *catalog.Task, item *catalog.Item, act recovery.Skip) {
	// Duplicate checks run after the stage's own work, so the item can sit
	// in an active status with no direct edge to the skip status. Walk
	// through the stage's done status when the graph offers that path.
	if !catalog.CanTransition(item.Status, act.Status) {
		done := catalog.DoneStatusFor(task.Stage)
		if catalog.CanTransition(item.Status, done) && catalog.CanTransition(done, act.Status) {
			if err := m.store.Transition(ctx, item.ID, item.Status, done, fmt.Sprintf("%s completed", task.Stage)); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				logger.Error("failed to record skip transition", logging.Error(err))
				m.setLastError(err)
				return
			}
			item.Status = done
		}
	}

	detail := catalog.TransitionDetail{
		Note:       act.Reason,
		RetryCount: task.RetryCount,
	}
	if err := m.store.TransitionDetailed(ctx, item.ID, item.Status, act.Status, detail); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		if errors.Is(err, catalog.ErrInvalidTransition) || errors.Is(err, catalog.ErrConflict) {
			logger.Warn("skip not reachable from current status, failing permanently",
				logging.String("skip_status", string(act.Status)),
				logging.Error(err))
			m.failItem(ctx, logger, task, item, nil, act.Reason)
			return
		}
		logger.Error("failed to record skip transition", logging.Error(err))
		m.setLastError(err)
		return
	}
	item.Status = act.Status
	if act.Status == catalog.StatusSkippedExists {
		m.bumpRunProcessed()
	}

	if err := m.sched.Complete(ctx, task.ID, act.Reason); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("task completion not recorded", logging.Error(err))
	}

	logger.Info("item skipped",
		logging.String(logging.FieldEventType, "item_skipped"),
		logging.String("status", string(act.Status)),
		logging.String("reason", act.Reason))
	m.setLastItem(item)
	m.checkRunCompletion(ctx)
}

// failItem retires the task as failed before recording the permanent item
// failure. Retry budget exhaustion skips this path because the scheduler
// already finalized the task.
func (m *Manager) failItem(ctx context.Context, logger *slog.Logger, task *catalog.Task, item *catalog.Item, stageErr error, reason string) {
	if err := m.store.FinalizeTaskFailure(ctx, task.ID, reason); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("task failure not recorded", logging.Error(err))
	}
	m.finalizeItemFailure(ctx, logger, task, item, stageErr, reason)
}

func (m *Manager) finalizeItemFailure(ctx context.Context, logger *slog.Logger, task *catalog.Task, item *catalog.Item, stageErr error, reason string) {
	detail := catalog.TransitionDetail{
		Note:         fmt.Sprintf("%s failed permanently", task.Stage),
		ErrorMessage: reason,
		RetryCount:   task.RetryCount,
	}
	if err := m.store.TransitionDetailed(ctx, item.ID, item.Status, catalog.StatusFailedPermanent, detail); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		logger.Error("failed to record permanent failure", logging.Error(err))
		m.setLastError(err)
		return
	}
	item.Status = catalog.StatusFailedPermanent
	item.ErrorMessage = reason

	if recovery.RequiresReview(stageErr) {
		item.NeedsReview = true
		item.ReviewReason = reason
		if err := m.store.Update(ctx, item); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("could not flag item for review", logging.Error(err))
		}
	}

	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String("error_message", reason),
		logging.Alert("stage_failure"),
	}
	cause := services.Details(stageErr).Cause
	if cause == nil {
		cause = stageErr
	}
	if cause != nil {
		attrs = append(attrs, logging.Error(cause))
	}
	logger.Error("stage failed permanently", logging.Args(attrs...)...)

	m.bumpRunFailed()
	m.setLastItem(item)
	m.notifyItemFailed(ctx, item, string(task.Stage), reason)
	m.checkRunCompletion(ctx)
}
