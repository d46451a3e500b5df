package pipeline_test

import (
	"context"
	"sync"
	"testing"

	"folio/internal/catalog"
	"folio/internal/config"
	"folio/internal/notifications"
	"folio/internal/pipeline"
	"folio/internal/quota"
	"folio/internal/scheduler"
	"folio/internal/stage"
	"folio/internal/testsupport"
)

// stubHandler stands in for a stage: it accepts the stage's dispatchable
// statuses and delegates to an optional process hook. Workers call it
// concurrently, so every field access locks.
type stubHandler struct {
	stg    catalog.Stage
	health stage.Health

	mu      sync.Mutex
	process func(ctx context.Context, item *catalog.Item) error
	calls   int
}

func newStubHandler(stg catalog.Stage) *stubHandler {
	return &stubHandler{stg: stg, health: stage.Healthy(string(stg))}
}

func (h *stubHandler) CanProcess(item *catalog.Item) bool {
	return item != nil && catalog.StatusAcceptableForStage(item.Status, h.stg)
}

func (h *stubHandler) Process(ctx context.Context, item *catalog.Item) error {
	h.mu.Lock()
	h.calls++
	fn := h.process
	h.mu.Unlock()
	if fn != nil {
		return fn(ctx, item)
	}
	return nil
}

func (h *stubHandler) HealthCheck(context.Context) stage.Health {
	return h.health
}

func (h *stubHandler) setProcess(fn func(ctx context.Context, item *catalog.Item) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.process = fn
}

// failFirst makes the first n calls return err and later calls succeed.
func (h *stubHandler) failFirst(n int, err error) {
	h.setProcess(func(context.Context, *catalog.Item) error {
		h.mu.Lock()
		call := h.calls
		h.mu.Unlock()
		if call <= n {
			return err
		}
		return nil
	})
}

func (h *stubHandler) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

type stubProvider struct {
	mu   sync.Mutex
	snap quota.Snapshot
	err  error
}

func (p *stubProvider) QueryLimits(ctx context.Context) (quota.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap, p.err
}

func (p *stubProvider) set(snap quota.Snapshot, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap = snap
	p.err = err
}

type recordedEvent struct {
	event   notifications.Event
	payload notifications.Payload
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	copied := make(notifications.Payload, len(payload))
	for key, value := range payload {
		copied[key] = value
	}
	n.events = append(n.events, recordedEvent{event: event, payload: copied})
	return nil
}

func (n *recordingNotifier) count(event notifications.Event) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, rec := range n.events {
		if rec.event == event {
			total++
		}
	}
	return total
}

func (n *recordingNotifier) last(event notifications.Event) (notifications.Payload, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.events) - 1; i >= 0; i-- {
		if n.events[i].event == event {
			return n.events[i].payload, true
		}
	}
	return nil, false
}

// testPipeline bundles a manager wired over stub handlers, a stub quota
// provider, and a recording notifier.
type testPipeline struct {
	cfg      *config.Config
	store    *catalog.Store
	sched    *scheduler.Scheduler
	provider *stubProvider
	notifier *recordingNotifier
	manager  *pipeline.Manager

	detail   *stubHandler
	search   *stubHandler
	download *stubHandler
	upload   *stubHandler
}

func newTestPipeline(t *testing.T) *testPipeline {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(2))
	// Quota reads go straight to the stub provider.
	cfg.Quota.CacheTTLMinutes = 0

	store := testsupport.MustOpenStore(t, cfg)
	sched := scheduler.New(cfg, store, nil)
	provider := &stubProvider{snap: quota.Snapshot{Remaining: 100, Limit: 100}}
	gate := quota.New(cfg, provider, store, sched, nil)
	notifier := &recordingNotifier{}

	tp := &testPipeline{
		cfg:      cfg,
		store:    store,
		sched:    sched,
		provider: provider,
		notifier: notifier,
		detail:   newStubHandler(catalog.StageDetail),
		search:   newStubHandler(catalog.StageSearch),
		download: newStubHandler(catalog.StageDownload),
		upload:   newStubHandler(catalog.StageUpload),
	}
	tp.manager = pipeline.NewWithDependencies(cfg, store, sched, gate, notifier, nil)
	tp.manager.ConfigureHandlers(pipeline.StageSet{
		Detail:   tp.detail,
		Search:   tp.search,
		Download: tp.download,
		Upload:   tp.upload,
	})
	return tp
}
