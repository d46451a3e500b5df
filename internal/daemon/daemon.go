package daemon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/gofrs/flock"

	"folio/internal/catalog"
	"folio/internal/config"
	"folio/internal/logging"
	"folio/internal/notifications"
	"folio/internal/pipeline"
	"folio/internal/preflight"
	"folio/internal/quota"
)

// Daemon coordinates background processing and enforces single-instance
// execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *catalog.Store
	manager *pipeline.Manager
	logPath string

	lockPath string
	lock     *flock.Flock

	janitor *janitor

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	Pipeline      pipeline.StatusSummary
	CatalogDBPath string
	LockFilePath  string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *catalog.Store, logger *slog.Logger, mgr *pipeline.Manager, logPath string) (*Daemon, error) {
	if cfg == nil || store == nil || mgr == nil {
		return nil, errors.New("daemon requires config, store, and pipeline manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		manager:  mgr,
		logPath:  logPath,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.janitor = newJanitor(d)
	return d, nil
}

// Start launches the pipeline manager, the maintenance janitor, and acquires
// the daemon lock.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another folio daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.manager.Start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start pipeline: %w", err)
	}
	if err := d.janitor.start(d.ctx); err != nil {
		d.manager.Stop()
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start janitor: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("folio daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.janitor.stop()
	d.manager.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("folio daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// AddItem records a new acquisition request. When the pipeline is running
// the fresh item is admitted immediately instead of waiting for a restart.
func (d *Daemon) AddItem(ctx context.Context, externalID, title, author string, priority int) (*catalog.Item, bool, error) {
	if d.store == nil {
		return nil, false, errors.New("catalog store unavailable")
	}
	item, created, err := d.store.Add(ctx, externalID, title, author, priority)
	if err != nil {
		return nil, false, err
	}
	if created && d.running.Load() {
		if err := d.manager.Requeue(ctx); err != nil {
			d.logger.Warn("could not admit new item immediately",
				logging.Int64(logging.FieldItemID, item.ID),
				logging.Error(err))
		}
	}
	return item, created, nil
}

// ListItems returns catalog items filtered by optional statuses.
func (d *Daemon) ListItems(ctx context.Context, statuses []catalog.Status) ([]*catalog.Item, error) {
	if d.store == nil {
		return nil, errors.New("catalog store unavailable")
	}
	if len(statuses) == 0 {
		return d.store.List(ctx)
	}
	return d.store.List(ctx, statuses...)
}

// GetItem fetches one catalog item by identifier.
func (d *Daemon) GetItem(ctx context.Context, id int64) (*catalog.Item, error) {
	if d.store == nil {
		return nil, errors.New("catalog store unavailable")
	}
	return d.store.GetByID(ctx, id)
}

// ItemHistory returns the most recent transition rows for an item.
func (d *Daemon) ItemHistory(ctx context.Context, id int64, limit int) ([]*catalog.HistoryEntry, error) {
	if d.store == nil {
		return nil, errors.New("catalog store unavailable")
	}
	return d.store.History(ctx, id, limit)
}

// RemoveItems deletes catalog items by identifier.
func (d *Daemon) RemoveItems(ctx context.Context, ids []int64) (int64, error) {
	if d.store == nil {
		return 0, errors.New("catalog store unavailable")
	}
	var removed int64
	for _, id := range ids {
		ok, err := d.store.Remove(ctx, id)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

// ClearCatalog removes all catalog items.
func (d *Daemon) ClearCatalog(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("catalog store unavailable")
	}
	return d.store.Clear(ctx)
}

// ClearCompleted removes completed and skipped items.
func (d *Daemon) ClearCompleted(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("catalog store unavailable")
	}
	return d.store.ClearCompleted(ctx)
}

// ClearFailed removes permanently failed items.
func (d *Daemon) ClearFailed(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("catalog store unavailable")
	}
	return d.store.ClearFailed(ctx)
}

// ResetStuck walks items whose heartbeat went silent back to their queued
// statuses.
func (d *Daemon) ResetStuck(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("catalog store unavailable")
	}
	minutes := d.cfg.Pipeline.StaleResetMinutes
	if minutes <= 0 {
		minutes = 30
	}
	cutoff := time.Now().Add(-time.Duration(minutes) * time.Minute)
	return d.store.ResetStuck(ctx, cutoff)
}

// RetryFailed walks failed items (optionally a subset) back to their retry
// statuses and re-admits them while the pipeline is running.
func (d *Daemon) RetryFailed(ctx context.Context, ids []int64) (int64, error) {
	if d.store == nil {
		return 0, errors.New("catalog store unavailable")
	}
	retried, err := d.store.RetryFailed(ctx, ids...)
	if err != nil {
		return int64(len(retried)), err
	}
	if len(retried) > 0 && d.running.Load() {
		if err := d.manager.Requeue(ctx); err != nil {
			d.logger.Warn("could not re-admit retried items immediately", logging.Error(err))
		}
	}
	return int64(len(retried)), nil
}

// Health returns aggregate catalog diagnostics.
func (d *Daemon) Health(ctx context.Context) (catalog.HealthSummary, error) {
	if d.store == nil {
		return catalog.HealthSummary{}, errors.New("catalog store unavailable")
	}
	return d.store.Health(ctx)
}

// DatabaseHealth returns detailed catalog database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (catalog.DatabaseHealth, error) {
	if d.store == nil {
		return catalog.DatabaseHealth{}, errors.New("catalog store unavailable")
	}
	return d.store.CheckHealth(ctx)
}

// QuotaSnapshot reports the mirror quota reading, optionally forcing a
// provider refresh.
func (d *Daemon) QuotaSnapshot(ctx context.Context, force bool) (quota.Snapshot, error) {
	return d.manager.QuotaSnapshot(ctx, force)
}

// Preflight runs the environment checks against the live store.
func (d *Daemon) Preflight(ctx context.Context) []preflight.Result {
	return preflight.RunAll(ctx, d.cfg, d.store)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg == nil {
		return false, "configuration unavailable", errors.New("configuration unavailable")
	}
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := notifications.NewService(d.cfg)
	if err := notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:       d.running.Load(),
		Pipeline:      d.manager.Status(ctx),
		CatalogDBPath: d.cfg.DatabasePath(),
		LockFilePath:  d.lockPath,
	}
}
