package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"folio/internal/catalog"
	"folio/internal/logging"
)

// HeartbeatMonitor keeps last_heartbeat fresh for items under active
// processing and reclaims items whose heartbeat aged out, which happens
// when a worker dies between activation and completion.
type HeartbeatMonitor struct {
	store    *catalog.Store
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
}

func NewHeartbeatMonitor(store *catalog.Store, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &HeartbeatMonitor{store: store, logger: logger, interval: interval, timeout: timeout}
}

// ReclaimStale rolls back items whose heartbeat is older than the timeout.
// A timeout of zero disables reclamation.
func (h *HeartbeatMonitor) ReclaimStale(ctx context.Context, logger *slog.Logger) error {
	if h.timeout <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-h.timeout)
	reclaimed, err := h.store.ResetStuck(ctx, cutoff)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		logger.Info("reclaimed stale items",
			logging.String(logging.FieldEventType, "stale_reclaim"),
			logging.Int64("count", reclaimed))
	}
	return nil
}

// StartLoop beats immediately and then on every interval until the context
// is cancelled. It runs as a companion goroutine for each dispatched stage.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, itemID int64) {
	defer wg.Done()
	logger := logging.WithContext(ctx, logging.NewComponentLogger(h.logger, "pipeline-heartbeat"))

	h.beat(ctx, logger, itemID)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.beat(ctx, logger, itemID)
		}
	}
}

func (h *HeartbeatMonitor) beat(ctx context.Context, logger *slog.Logger, itemID int64) {
	if err := h.store.UpdateHeartbeat(ctx, itemID); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, heartbeat update cancelled")
			return
		}
		logger.Warn("heartbeat update failed",
			logging.Int64(logging.FieldItemID, itemID),
			logging.Error(err))
	}
}
