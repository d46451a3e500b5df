package scheduler_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"folio/internal/catalog"
	"folio/internal/scheduler"
	"folio/internal/testsupport"
)

func TestScheduleDeduplicatesLiveTask(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	sched := scheduler.New(cfg, store, nil)

	ctx := context.Background()
	item := testsupport.NewItem(t, store, "bk-1", "Dune", "Frank Herbert")

	task, created, err := sched.Schedule(ctx, item.ID, catalog.StageDetail)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if !created {
		t.Fatal("expected first schedule to create a task")
	}
	if task.Priority != catalog.DefaultPriority {
		t.Fatalf("expected default priority, got %d", task.Priority)
	}
	if task.MaxRetries != cfg.Pipeline.MaxRetries {
		t.Fatalf("expected configured retry budget, got %d", task.MaxRetries)
	}

	dup, created, err := sched.Schedule(ctx, item.ID, catalog.StageDetail, scheduler.WithPriority(1))
	if err != nil {
		t.Fatalf("duplicate Schedule failed: %v", err)
	}
	if created {
		t.Fatal("expected duplicate schedule to return the live task")
	}
	if dup.ID != task.ID {
		t.Fatalf("expected task %d, got %d", task.ID, dup.ID)
	}
	if dup.Priority != catalog.DefaultPriority {
		t.Fatalf("expected live task priority unchanged, got %d", dup.Priority)
	}
}

func TestScheduleAppliesOptions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	sched := scheduler.New(cfg, store, nil)

	item := testsupport.NewItem(t, store, "bk-1", "Dune", "Frank Herbert")
	task, _, err := sched.Schedule(
		context.Background(),
		item.ID,
		catalog.StageDownload,
		scheduler.WithPriority(2),
		scheduler.WithDelay(time.Hour),
		scheduler.WithMaxRetries(7),
	)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if task.Priority != 2 {
		t.Fatalf("expected priority 2, got %d", task.Priority)
	}
	if task.MaxRetries != 7 {
		t.Fatalf("expected max retries 7, got %d", task.MaxRetries)
	}
	if !task.EligibleAt.After(time.Now().Add(55 * time.Minute)) {
		t.Fatalf("expected deferred eligibility, got %v", task.EligibleAt)
	}
}

func TestNextReadyOrdersByPriority(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	sched := scheduler.New(cfg, store, nil)

	ctx := context.Background()
	for i, priority := range []int{5, 1, 3} {
		item := testsupport.NewItem(t, store, fmt.Sprintf("bk-%d", i), "Title", "Author")
		if _, _, err := sched.Schedule(ctx, item.ID, catalog.StageSearch, scheduler.WithPriority(priority)); err != nil {
			t.Fatalf("Schedule failed: %v", err)
		}
	}

	for _, expected := range []int{1, 3, 5} {
		task, err := sched.NextReady(ctx)
		if err != nil {
			t.Fatalf("NextReady failed: %v", err)
		}
		if task == nil {
			t.Fatalf("expected a claim for priority %d", expected)
		}
		if task.Priority != expected {
			t.Fatalf("expected priority %d, got %d", expected, task.Priority)
		}
		if task.Status != catalog.TaskActive || task.StartedAt == nil {
			t.Fatalf("expected claimed task active, got %+v", task)
		}
	}

	task, err := sched.NextReady(ctx)
	if err != nil {
		t.Fatalf("NextReady failed: %v", err)
	}
	if task != nil {
		t.Fatalf("expected empty queue, got %+v", task)
	}
}

func TestNextReadyHonorsActiveCap(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.MaxActiveTasks = 1
	store := testsupport.MustOpenStore(t, cfg)
	sched := scheduler.New(cfg, store, nil)

	ctx := context.Background()
	first := testsupport.NewItem(t, store, "bk-1", "Dune", "Frank Herbert")
	second := testsupport.NewItem(t, store, "bk-2", "Solaris", "Stanislaw Lem")
	for _, item := range []int64{first.ID, second.ID} {
		if _, _, err := sched.Schedule(ctx, item, catalog.StageDetail); err != nil {
			t.Fatalf("Schedule failed: %v", err)
		}
	}

	claimed, err := sched.NextReady(ctx)
	if err != nil {
		t.Fatalf("NextReady failed: %v", err)
	}
	if claimed == nil {
		t.Fatal("expected first claim")
	}

	blocked, err := sched.NextReady(ctx)
	if err != nil {
		t.Fatalf("NextReady failed: %v", err)
	}
	if blocked != nil {
		t.Fatalf("expected cap to block second claim, got %+v", blocked)
	}

	if err := sched.Complete(ctx, claimed.ID, "stage finished"); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	next, err := sched.NextReady(ctx)
	if err != nil {
		t.Fatalf("NextReady failed: %v", err)
	}
	if next == nil {
		t.Fatal("expected claim after completion freed the cap")
	}
}

func TestCompleteRequiresClaim(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	sched := scheduler.New(cfg, store, nil)

	ctx := context.Background()
	item := testsupport.NewItem(t, store, "bk-1", "Dune", "Frank Herbert")
	task, _, err := sched.Schedule(ctx, item.ID, catalog.StageDetail)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	if err := sched.Complete(ctx, task.ID, ""); !errors.Is(err, catalog.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound for unclaimed task, got %v", err)
	}
}

func TestFailRequeuesWithJitteredBackoff(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	sched := scheduler.New(cfg, store, nil)

	ctx := context.Background()
	item := testsupport.NewItem(t, store, "bk-1", "Dune", "Frank Herbert")
	if _, _, err := sched.Schedule(ctx, item.ID, catalog.StageSearch); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	task, err := sched.NextReady(ctx)
	if err != nil || task == nil {
		t.Fatalf("NextReady failed: %v %v", task, err)
	}

	out, err := sched.Fail(ctx, task.ID, errors.New("mirror timeout"))
	if err != nil {
		t.Fatalf("Fail failed: %v", err)
	}
	if !out.Requeued || out.Attempts != 1 {
		t.Fatalf("expected first failure requeued, got %+v", out)
	}
	base := time.Duration(cfg.Pipeline.RetryBackoffBase) * time.Second
	if out.Delay < base*4/5 || out.Delay > base*6/5 {
		t.Fatalf("expected delay within 20%% of %v, got %v", base, out.Delay)
	}

	requeued, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if requeued.Status != catalog.TaskPending || requeued.RetryCount != 1 {
		t.Fatalf("expected pending retry, got %+v", requeued)
	}
	if requeued.LastError != "mirror timeout" {
		t.Fatalf("expected cause recorded, got %q", requeued.LastError)
	}
	if !requeued.EligibleAt.After(time.Now().Add(20 * time.Second)) {
		t.Fatalf("expected backoff eligibility, got %v", requeued.EligibleAt)
	}
}

func TestFailBackoffDoublesAndCaps(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	sched := scheduler.New(cfg, store, nil)

	ctx := context.Background()
	item := testsupport.NewItem(t, store, "bk-1", "Dune", "Frank Herbert")
	if _, _, err := sched.Schedule(ctx, item.ID, catalog.StageDownload, scheduler.WithMaxRetries(10)); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	bounds := []struct {
		min time.Duration
		max time.Duration
	}{
		{24 * time.Second, 36 * time.Second},
		{48 * time.Second, 72 * time.Second},
		{96 * time.Second, 144 * time.Second},
		{192 * time.Second, 288 * time.Second},
		{240 * time.Second, 360 * time.Second},
		{240 * time.Second, 360 * time.Second},
	}
	for attempt, expected := range bounds {
		// Claim with a future clock so backoff eligibility does not stall
		// the walk.
		task, err := store.ClaimNextTask(ctx, time.Now().Add(time.Hour), 0)
		if err != nil {
			t.Fatalf("claim %d failed: %v", attempt+1, err)
		}
		if task == nil {
			t.Fatalf("claim %d found nothing pending", attempt+1)
		}
		out, err := sched.Fail(ctx, task.ID, fmt.Errorf("failure %d", attempt+1))
		if err != nil {
			t.Fatalf("Fail %d failed: %v", attempt+1, err)
		}
		if !out.Requeued || out.Attempts != attempt+1 {
			t.Fatalf("attempt %d: unexpected outcome %+v", attempt+1, out)
		}
		if out.Delay < expected.min || out.Delay > expected.max {
			t.Fatalf("attempt %d: delay %v outside [%v, %v]", attempt+1, out.Delay, expected.min, expected.max)
		}
	}
}

func TestFailFinalizesWhenRetriesExhausted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	sched := scheduler.New(cfg, store, nil)

	ctx := context.Background()
	item := testsupport.NewItem(t, store, "bk-1", "Dune", "Frank Herbert")
	if _, _, err := sched.Schedule(ctx, item.ID, catalog.StageUpload, scheduler.WithMaxRetries(1)); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	task, err := store.ClaimNextTask(ctx, time.Now(), 0)
	if err != nil || task == nil {
		t.Fatalf("claim failed: %v %v", task, err)
	}
	out, err := sched.Fail(ctx, task.ID, errors.New("shelf rejected file"))
	if err != nil {
		t.Fatalf("Fail failed: %v", err)
	}
	if !out.Requeued {
		t.Fatalf("expected retry within budget, got %+v", out)
	}

	task, err = store.ClaimNextTask(ctx, time.Now().Add(time.Hour), 0)
	if err != nil || task == nil {
		t.Fatalf("second claim failed: %v %v", task, err)
	}
	out, err = sched.Fail(ctx, task.ID, errors.New("shelf rejected file again"))
	if err != nil {
		t.Fatalf("final Fail failed: %v", err)
	}
	if out.Requeued {
		t.Fatalf("expected retries exhausted, got %+v", out)
	}
	if out.Attempts != 1 {
		t.Fatalf("expected attempts 1, got %d", out.Attempts)
	}

	failed, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if failed.Status != catalog.TaskFailed {
		t.Fatalf("expected failed task, got %s", failed.Status)
	}
	if failed.FinishedAt == nil || failed.LastError == "" {
		t.Fatalf("expected failure detail recorded, got %+v", failed)
	}
}

func TestRetryAfterUsesCallerDelay(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	sched := scheduler.New(cfg, store, nil)

	ctx := context.Background()
	item := testsupport.NewItem(t, store, "bk-1", "Dune", "Frank Herbert")
	if _, _, err := sched.Schedule(ctx, item.ID, catalog.StageDownload); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	task, err := sched.NextReady(ctx)
	if err != nil || task == nil {
		t.Fatalf("NextReady failed: %v %v", task, err)
	}

	out, err := sched.RetryAfter(ctx, task.ID, 45*time.Minute, errors.New("mirror rate limited"))
	if err != nil {
		t.Fatalf("RetryAfter failed: %v", err)
	}
	if !out.Requeued || out.Delay != 45*time.Minute {
		t.Fatalf("expected caller delay honored, got %+v", out)
	}

	requeued, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if requeued.Status != catalog.TaskPending {
		t.Fatalf("expected pending task, got %s", requeued.Status)
	}
	if !requeued.EligibleAt.After(time.Now().Add(44 * time.Minute)) {
		t.Fatalf("expected eligibility pushed out, got %v", requeued.EligibleAt)
	}
}

func TestRetryAfterStillHonorsRetryBudget(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	sched := scheduler.New(cfg, store, nil)

	ctx := context.Background()
	item := testsupport.NewItem(t, store, "bk-1", "Dune", "Frank Herbert")
	if _, _, err := sched.Schedule(ctx, item.ID, catalog.StageDownload, scheduler.WithMaxRetries(0)); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	task, err := sched.NextReady(ctx)
	if err != nil || task == nil {
		t.Fatalf("NextReady failed: %v %v", task, err)
	}

	out, err := sched.RetryAfter(ctx, task.ID, time.Minute, errors.New("mirror rate limited"))
	if err != nil {
		t.Fatalf("RetryAfter failed: %v", err)
	}
	if out.Requeued {
		t.Fatalf("expected exhausted budget to finalize, got %+v", out)
	}
	final, err := store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if final.Status != catalog.TaskFailed {
		t.Fatalf("expected failed task, got %s", final.Status)
	}
}

func TestCancelIsNotAFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	sched := scheduler.New(cfg, store, nil)

	ctx := context.Background()
	item := testsupport.NewItem(t, store, "bk-1", "Dune", "Frank Herbert")
	task, _, err := sched.Schedule(ctx, item.ID, catalog.StageDownload)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	if err := sched.Cancel(ctx, task.ID, "download quota exhausted"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	counts, err := sched.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts[catalog.TaskCancelled] != 1 || counts[catalog.TaskFailed] != 0 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}

func TestCancelMismatchedCancelsStaleWork(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	sched := scheduler.New(cfg, store, nil)

	ctx := context.Background()
	item := testsupport.NewItem(t, store, "bk-1", "Dune", "Frank Herbert")
	if _, _, err := sched.Schedule(ctx, item.ID, catalog.StageDownload); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	cancelled, err := sched.CancelMismatched(ctx)
	if err != nil {
		t.Fatalf("CancelMismatched failed: %v", err)
	}
	if cancelled != 1 {
		t.Fatalf("expected one mismatched task cancelled, got %d", cancelled)
	}
}

func TestPendingByStage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	sched := scheduler.New(cfg, store, nil)

	ctx := context.Background()
	first := testsupport.NewItem(t, store, "bk-1", "Dune", "Frank Herbert")
	second := testsupport.NewItem(t, store, "bk-2", "Solaris", "Stanislaw Lem")
	if _, _, err := sched.Schedule(ctx, first.ID, catalog.StageDetail); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if _, _, err := sched.Schedule(ctx, second.ID, catalog.StageSearch); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	pending, err := sched.PendingByStage(ctx)
	if err != nil {
		t.Fatalf("PendingByStage failed: %v", err)
	}
	if pending[catalog.StageDetail] != 1 || pending[catalog.StageSearch] != 1 {
		t.Fatalf("unexpected pending map: %+v", pending)
	}
}

func TestCleanupFinishedKeepsFreshTasks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	sched := scheduler.New(cfg, store, nil)

	ctx := context.Background()
	done := testsupport.NewItem(t, store, "bk-1", "Dune", "Frank Herbert")
	if _, _, err := sched.Schedule(ctx, done.ID, catalog.StageDetail); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	claimed, err := sched.NextReady(ctx)
	if err != nil || claimed == nil {
		t.Fatalf("NextReady failed: %v %v", claimed, err)
	}
	if err := sched.Complete(ctx, claimed.ID, ""); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	parked := testsupport.NewItem(t, store, "bk-2", "Solaris", "Stanislaw Lem")
	task, _, err := sched.Schedule(ctx, parked.ID, catalog.StageDownload)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if err := sched.Cancel(ctx, task.ID, "parked"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	removed, err := sched.CleanupFinished(ctx)
	if err != nil {
		t.Fatalf("CleanupFinished failed: %v", err)
	}
	if removed != 0 {
		t.Fatalf("expected retention to keep fresh tasks, removed %d", removed)
	}

	counts, err := sched.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts[catalog.TaskDone] != 1 || counts[catalog.TaskCancelled] != 1 {
		t.Fatalf("unexpected counts after cleanup: %+v", counts)
	}
}
