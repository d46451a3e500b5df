package pipeline

import (
	"context"
	"errors"

	"folio/internal/catalog"
	"folio/internal/logging"
	"folio/internal/quota"
	"folio/internal/stage"
)

// Phase labels what a worker goroutine is doing right now.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhasePolling         Phase = "polling"
	PhaseDispatching     Phase = "dispatching"
	PhaseGated           Phase = "gated"
	PhaseApplyingSuccess Phase = "applying_success"
	PhaseApplyingFailure Phase = "applying_failure"
)

// StatusSummary is a point-in-time view of the pipeline for the status
// command and the IPC surface.
type StatusSummary struct {
	Running      bool
	WorkerPhases []Phase
	QueueStats   map[catalog.Status]int
	TaskCounts   map[catalog.TaskStatus]int
	Quota        *quota.Snapshot
	StageHealth  map[catalog.Stage]stage.Health
	LastError    string
	LastItem     *catalog.Item
}

// Status assembles the summary from manager state plus live catalog,
// scheduler, quota, and handler reads. Read failures degrade the summary
// instead of failing it.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:      m.running,
		WorkerPhases: append([]Phase(nil), m.phases...),
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastItem != nil {
		itemCopy := *m.lastItem
		summary.LastItem = &itemCopy
	}
	handlers := make(map[catalog.Stage]stage.Handler, len(m.handlers))
	for stg, handler := range m.handlers {
		handlers[stg] = handler
	}
	m.mu.RUnlock()

	if stats, err := m.store.Stats(ctx); err == nil {
		summary.QueueStats = stats
	} else if !errors.Is(err, context.Canceled) {
		m.logger.Warn("queue stats unavailable", logging.Error(err))
	}
	if counts, err := m.sched.Counts(ctx); err == nil {
		summary.TaskCounts = counts
	} else if !errors.Is(err, context.Canceled) {
		m.logger.Warn("task counts unavailable", logging.Error(err))
	}
	if len(handlers) > 0 {
		summary.StageHealth = make(map[catalog.Stage]stage.Health, len(handlers))
		for stg, handler := range handlers {
			summary.StageHealth[stg] = handler.HealthCheck(ctx)
		}
	}
	if snap, err := m.quota.Snapshot(ctx, false); err == nil {
		summary.Quota = &snap
	} else if !errors.Is(err, context.Canceled) {
		m.logger.Debug("quota snapshot unavailable", logging.Error(err))
	}
	return summary
}

// QuotaSnapshot reports the mirror quota reading, forcing a provider refresh
// when force is set.
func (m *Manager) QuotaSnapshot(ctx context.Context, force bool) (quota.Snapshot, error) {
	return m.quota.Snapshot(ctx, force)
}

func (m *Manager) setPhase(worker int, phase Phase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if worker >= 0 && worker < len(m.phases) {
		m.phases[worker] = phase
	}
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastErr = err
}

func (m *Manager) setLastItem(item *catalog.Item) {
	if item == nil {
		return
	}
	itemCopy := *item
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastItem = &itemCopy
}
