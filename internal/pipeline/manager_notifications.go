package pipeline

import (
	"context"
	"errors"
	"strconv"
	"time"

	"folio/internal/catalog"
	"folio/internal/logging"
	"folio/internal/notifications"
)

// onWorkStarted marks the start of a processing run the first time any
// worker picks up a task after an idle period. The count is best effort;
// the run notification should not block dispatch on a catalog read.
func (m *Manager) onWorkStarted(ctx context.Context) {
	m.mu.Lock()
	if m.runActive {
		m.mu.Unlock()
		return
	}
	m.runActive = true
	m.runStart = time.Now()
	m.runProcessed = 0
	m.runFailed = 0
	m.mu.Unlock()

	count := 0
	if health, err := m.store.Health(ctx); err == nil {
		count = health.Waiting + health.Processing
	}
	err := m.notifier.Publish(ctx, notifications.EventRunStarted, notifications.Payload{
		"count": strconv.Itoa(count),
	})
	m.logNotifyError(ctx, "run start", err)
}

// checkRunCompletion closes the run once no live tasks remain. Every path
// that retires a task calls it, so the last retirement wins the close.
func (m *Manager) checkRunCompletion(ctx context.Context) {
	counts, err := m.sched.Counts(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			m.logger.Warn("task counts unavailable", logging.Error(err))
		}
		return
	}
	if counts[catalog.TaskPending]+counts[catalog.TaskActive] > 0 {
		return
	}

	m.mu.Lock()
	if !m.runActive {
		m.mu.Unlock()
		return
	}
	m.runActive = false
	processed := m.runProcessed
	failed := m.runFailed
	duration := time.Since(m.runStart)
	m.mu.Unlock()

	err = m.notifier.Publish(ctx, notifications.EventRunCompleted, notifications.Payload{
		"processed": strconv.Itoa(processed),
		"failed":    strconv.Itoa(failed),
		"duration":  duration.Round(time.Second).String(),
	})
	m.logNotifyError(ctx, "run completion", err)
}

func (m *Manager) bumpRunProcessed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runActive {
		m.runProcessed++
	}
}

func (m *Manager) bumpRunFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runActive {
		m.runFailed++
	}
}

func (m *Manager) notifyItemFailed(ctx context.Context, item *catalog.Item, stage, reason string) {
	err := m.notifier.Publish(ctx, notifications.EventItemFailed, notifications.Payload{
		"title": itemLabel(item),
		"stage": stage,
		"error": reason,
	})
	m.logNotifyError(ctx, "item failure", err)
}

func (m *Manager) notifyQuotaExhausted(ctx context.Context) {
	payload := notifications.Payload{}
	if snap, err := m.quota.Snapshot(ctx, false); err == nil && !snap.NextReset.IsZero() {
		payload["reset"] = snap.NextReset.UTC().Format(time.RFC3339)
	}
	err := m.notifier.Publish(ctx, notifications.EventQuotaExhausted, payload)
	m.logNotifyError(ctx, "quota exhausted", err)
}

func (m *Manager) notifyQuotaRestored(ctx context.Context, count int) {
	err := m.notifier.Publish(ctx, notifications.EventQuotaRestored, notifications.Payload{
		"count": strconv.Itoa(count),
	})
	m.logNotifyError(ctx, "quota restored", err)
}

func (m *Manager) logNotifyError(ctx context.Context, kind string, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		m.logger.Debug("daemon shutting down, skipped notification",
			logging.String("notification", kind))
		return
	}
	m.logger.Debug("notification delivery failed",
		logging.String("notification", kind),
		logging.Error(err))
}
