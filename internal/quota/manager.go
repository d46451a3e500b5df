package quota

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"folio/internal/catalog"
	"folio/internal/config"
	"folio/internal/logging"
	"folio/internal/scheduler"
)

// reactivatedPriority puts re-admitted downloads ahead of routine work so
// restored quota drains the parked backlog first.
const reactivatedPriority = 2

// Snapshot is one quota reading. NextReset is zero when the mirror does not
// announce one.
type Snapshot struct {
	Remaining int
	Limit     int
	NextReset time.Time
	CheckedAt time.Time
}

// Exhausted reports whether the reading leaves no downloads.
func (s Snapshot) Exhausted() bool {
	return s.Remaining <= 0
}

// Provider supplies fresh quota readings. The mirror client implements it.
type Provider interface {
	QueryLimits(ctx context.Context) (Snapshot, error)
}

// Manager caches quota readings and converts exhaustion into parked items
// instead of task failures.
type Manager struct {
	provider Provider
	store    *catalog.Store
	sched    *scheduler.Scheduler
	logger   *slog.Logger
	ttl      time.Duration

	group singleflight.Group

	mu     sync.Mutex
	cached *Snapshot
}

// New constructs a Manager over the provider, store, and scheduler.
func New(cfg *config.Config, provider Provider, store *catalog.Store, sched *scheduler.Scheduler, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		provider: provider,
		store:    store,
		sched:    sched,
		logger:   logging.NewComponentLogger(logger, "quota"),
		ttl:      time.Duration(cfg.Quota.CacheTTLMinutes) * time.Minute,
	}
}

// Snapshot returns the current quota reading, refreshing from the provider
// when the cache is older than the TTL or force is set. Concurrent
// refreshes share one provider call. When a refresh fails and an older
// reading exists, the stale reading is served in degraded mode; with no
// reading at all the error surfaces.
func (m *Manager) Snapshot(ctx context.Context, force bool) (Snapshot, error) {
	if !force {
		if snap, ok := m.freshSnapshot(); ok {
			return snap, nil
		}
	}

	result, err, _ := m.group.Do("limits", func() (any, error) {
		if !force {
			// Another caller may have refreshed while this one queued.
			if snap, ok := m.freshSnapshot(); ok {
				return snap, nil
			}
		}
		snap, err := m.provider.QueryLimits(ctx)
		if err != nil {
			return Snapshot{}, err
		}
		if snap.CheckedAt.IsZero() {
			snap.CheckedAt = time.Now()
		}
		m.setCache(snap)
		m.logger.Debug("quota refreshed",
			logging.Int("remaining", snap.Remaining),
			logging.Int("limit", snap.Limit))
		return snap, nil
	})
	if err != nil {
		if stale, ok := m.anySnapshot(); ok {
			m.logger.Warn("quota refresh failed, serving stale reading",
				logging.Error(err),
				logging.Int("remaining", stale.Remaining),
				logging.Duration("age", time.Since(stale.CheckedAt)))
			return stale, nil
		}
		return Snapshot{}, fmt.Errorf("query quota limits: %w", err)
	}
	return result.(Snapshot), nil
}

// Available reports whether at least one download remains. Unknown quota is
// unavailable.
func (m *Manager) Available(ctx context.Context) (bool, error) {
	snap, err := m.Snapshot(ctx, false)
	if err != nil {
		return false, err
	}
	return !snap.Exhausted(), nil
}

// Consume decrements the local reading after a successful download. The
// next refresh reconciles with the mirror's numbers.
func (m *Manager) Consume(n int) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cached == nil {
		return
	}
	m.cached.Remaining -= n
	if m.cached.Remaining < 0 {
		m.cached.Remaining = 0
	}
	m.logger.Debug("quota consumed",
		logging.Int("count", n),
		logging.Int("remaining", m.cached.Remaining))
}

// MarkExhausted zeroes the cached reading so the gate trips immediately
// instead of waiting out the TTL. Called when the mirror rejects a download
// for quota.
func (m *Manager) MarkExhausted(nextReset time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if m.cached == nil {
		m.cached = &Snapshot{}
	}
	m.cached.Remaining = 0
	m.cached.CheckedAt = now
	if !nextReset.IsZero() {
		m.cached.NextReset = nextReset
	}
	m.logger.Info("quota marked exhausted",
		logging.String("next_reset", resetLabel(m.cached.NextReset)))
}

// Park rolls download-phase items back and parks everything waiting on
// quota. Pending download tasks are cancelled, not failed. Returns the
// number of parked items.
func (m *Manager) Park(ctx context.Context) (int64, error) {
	reason := "download quota exhausted"
	if snap, ok := m.anySnapshot(); ok && !snap.NextReset.IsZero() {
		reason = fmt.Sprintf("download quota exhausted until %s", resetLabel(snap.NextReset))
	}
	parked, err := m.store.ParkForQuota(ctx, reason)
	if err != nil {
		return 0, err
	}
	if parked > 0 {
		m.logger.Info("parked items for quota",
			logging.Int64("count", parked),
			logging.String("reason", reason))
	}
	return parked, nil
}

// Reconcile re-admits parked items when quota is available again: each one
// moves back to download_queued and gets a download task at elevated
// priority. The task table's live-uniqueness makes double re-admission a
// no-op.
func (m *Manager) Reconcile(ctx context.Context) (int, error) {
	available, err := m.Available(ctx)
	if err != nil {
		return 0, err
	}
	if !available {
		return 0, nil
	}

	ids, err := m.store.ReactivateParked(ctx, "download quota restored")
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if _, _, err := m.sched.Schedule(ctx, id, catalog.StageDownload, scheduler.WithPriority(reactivatedPriority)); err != nil {
			return 0, fmt.Errorf("schedule re-admitted download for item %d: %w", id, err)
		}
	}
	if len(ids) > 0 {
		m.logger.Info("re-admitted parked items", logging.Int("count", len(ids)))
	}
	return len(ids), nil
}

func (m *Manager) freshSnapshot() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cached == nil || time.Since(m.cached.CheckedAt) >= m.ttl {
		return Snapshot{}, false
	}
	return *m.cached, true
}

func (m *Manager) anySnapshot() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cached == nil {
		return Snapshot{}, false
	}
	return *m.cached, true
}

func (m *Manager) setCache(snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cached = &snap
}

func resetLabel(reset time.Time) string {
	if reset.IsZero() {
		return "unknown"
	}
	return reset.UTC().Format(time.RFC3339)
}
