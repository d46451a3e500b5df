package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"folio/internal/catalog"
	"folio/internal/config"
	"folio/internal/logging"
	"folio/internal/notifications"
	"folio/internal/quota"
	"folio/internal/scheduler"
	"folio/internal/services/mirror"
	"folio/internal/stage"
	"folio/internal/stages"
)

// Manager coordinates task claiming, stage execution, and outcome
// application across a pool of workers.
type Manager struct {
	cfg      *config.Config
	store    *catalog.Store
	sched    *scheduler.Scheduler
	quota    *quota.Manager
	logger   *slog.Logger
	notifier notifications.Service

	heartbeat *HeartbeatMonitor

	pollInterval       time.Duration
	errorRetryInterval time.Duration
	stageTimeout       time.Duration
	workers            int

	mu       sync.RWMutex
	handlers map[catalog.Stage]stage.Handler
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	phases   []Phase
	lastErr  error
	lastItem *catalog.Item

	runActive    bool
	runStart     time.Time
	runProcessed int
	runFailed    int
}

// StageSet bundles the concrete stage handlers the manager dispatches.
type StageSet struct {
	Detail   stage.Handler
	Search   stage.Handler
	Download stage.Handler
	Upload   stage.Handler
}

// New constructs a fully wired Manager: mirror-backed quota gate, the four
// production stage handlers, and ntfy notifications.
func New(cfg *config.Config, store *catalog.Store, logger *slog.Logger) *Manager {
	sched := scheduler.New(cfg, store, logger)
	gate := quota.New(cfg, mirror.New(cfg, logger), store, sched, logger)
	m := NewWithDependencies(cfg, store, sched, gate, notifications.NewService(cfg), logger)
	m.ConfigureHandlers(StageSet{
		Detail:   stages.NewDetailFetcher(cfg, store, logger),
		Search:   stages.NewSearcher(cfg, store, logger),
		Download: stages.NewDownloader(cfg, store, logger, gate),
		Upload:   stages.NewUploader(cfg, store, logger),
	})
	return m
}

// NewWithDependencies constructs a Manager over caller-supplied
// collaborators (used in tests). Handlers are registered separately through
// ConfigureHandlers.
func NewWithDependencies(cfg *config.Config, store *catalog.Store, sched *scheduler.Scheduler, gate *quota.Manager, notifier notifications.Service, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		cfg:                cfg,
		store:              store,
		sched:              sched,
		quota:              gate,
		notifier:           notifier,
		logger:             logger,
		pollInterval:       time.Duration(cfg.Pipeline.QueuePollInterval) * time.Second,
		errorRetryInterval: time.Duration(cfg.Pipeline.ErrorRetryInterval) * time.Second,
		stageTimeout:       time.Duration(cfg.Pipeline.StageTimeout) * time.Second,
		workers:            cfg.Pipeline.Workers,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Pipeline.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Pipeline.HeartbeatTimeout)*time.Second,
		),
		handlers: make(map[catalog.Stage]stage.Handler),
	}
}

// ConfigureHandlers registers the stage handlers the workers will run.
// Handlers receive the manager's logger once here rather than per dispatch;
// workers share handler instances, so item scoping travels through the
// context instead.
func (m *Manager) ConfigureHandlers(set StageSet) {
	handlers := make(map[catalog.Stage]stage.Handler, 4)
	if set.Detail != nil {
		handlers[catalog.StageDetail] = set.Detail
	}
	if set.Search != nil {
		handlers[catalog.StageSearch] = set.Search
	}
	if set.Download != nil {
		handlers[catalog.StageDownload] = set.Download
	}
	if set.Upload != nil {
		handlers[catalog.StageUpload] = set.Upload
	}
	for _, handler := range handlers {
		if aware, ok := handler.(stage.LoggerAware); ok {
			aware.SetLogger(m.logger)
		}
	}

	m.mu.Lock()
	m.handlers = handlers
	m.mu.Unlock()
}

// Start launches the worker pool and the reconcile janitor. It returns once
// the goroutines are running; use Stop to shut them down.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("pipeline already running")
	}
	if len(m.handlers) == 0 {
		m.mu.Unlock()
		return errors.New("pipeline stages not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	workers := m.workers
	if workers <= 0 {
		workers = 1
	}
	m.phases = make([]Phase, workers)
	for i := range m.phases {
		m.phases[i] = PhaseIdle
	}
	m.wg.Add(workers + 1)
	m.mu.Unlock()

	for i := 0; i < workers; i++ {
		// Worker 0 doubles as the stale-item reclaimer so exactly one
		// goroutine sweeps heartbeats per poll round.
		go m.runWorker(runCtx, i, i == 0)
	}
	go m.runJanitor(runCtx)

	return nil
}

// Stop terminates background processing and waits for in-flight stages.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) handlerFor(stg catalog.Stage) stage.Handler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.handlers[stg]
}
