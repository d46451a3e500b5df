package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"folio/internal/catalog"
	"folio/internal/config"
	"folio/internal/logging"
)

// Scheduler queues, claims, and retires stage tasks for the pipeline.
type Scheduler struct {
	store           *catalog.Store
	logger          *slog.Logger
	maxActive       int
	maxRetries      int
	backoffBase     time.Duration
	backoffCap      time.Duration
	doneRetention   time.Duration
	failedRetention time.Duration
}

// New constructs a Scheduler from the pipeline and maintenance settings.
func New(cfg *config.Config, store *catalog.Store, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scheduler{
		store:           store,
		logger:          logging.NewComponentLogger(logger, "scheduler"),
		maxActive:       cfg.Pipeline.MaxActiveTasks,
		maxRetries:      cfg.Pipeline.MaxRetries,
		backoffBase:     time.Duration(cfg.Pipeline.RetryBackoffBase) * time.Second,
		backoffCap:      time.Duration(cfg.Pipeline.RetryBackoffCap) * time.Second,
		doneRetention:   time.Duration(cfg.Maintenance.TaskDoneRetentionHours) * time.Hour,
		failedRetention: time.Duration(cfg.Maintenance.TaskFailedRetentionHours) * time.Hour,
	}
}

// Option adjusts a scheduled task.
type Option func(*taskOptions)

type taskOptions struct {
	priority   int
	eligibleAt time.Time
	maxRetries int
}

// WithPriority sets the task priority. Lower values dispatch first.
func WithPriority(priority int) Option {
	return func(o *taskOptions) { o.priority = priority }
}

// WithDelay defers the task's first dispatch.
func WithDelay(delay time.Duration) Option {
	return func(o *taskOptions) { o.eligibleAt = time.Now().Add(delay) }
}

// WithMaxRetries overrides the configured retry budget for one task.
func WithMaxRetries(n int) Option {
	return func(o *taskOptions) { o.maxRetries = n }
}

// Outcome describes how Fail or RetryAfter absorbed a task failure.
type Outcome struct {
	// Requeued is true when the task returned to pending for another try.
	Requeued bool
	// Delay is the eligibility delay applied to a requeued task.
	Delay time.Duration
	// Attempts is the task's retry count after the failure was recorded.
	Attempts int
}

// Schedule enqueues a stage task for an item. When a live task already
// exists for the (item, stage) pair it is returned with created=false; the
// queue never holds two live tasks for one pair.
func (s *Scheduler) Schedule(ctx context.Context, itemID int64, stage catalog.Stage, opts ...Option) (*catalog.Task, bool, error) {
	options := taskOptions{maxRetries: s.maxRetries}
	for _, opt := range opts {
		opt(&options)
	}
	task, created, err := s.store.CreateTask(ctx, itemID, stage, options.priority, options.eligibleAt, options.maxRetries)
	if err != nil {
		return nil, false, err
	}
	if created {
		s.logger.Debug("task scheduled",
			logging.Int64("task_id", task.ID),
			logging.Int64("item_id", itemID),
			logging.String("stage", string(stage)),
			logging.Int("priority", task.Priority))
	} else {
		s.logger.Debug("task already live",
			logging.Int64("task_id", task.ID),
			logging.Int64("item_id", itemID),
			logging.String("stage", string(stage)))
	}
	return task, created, nil
}

// NextReady claims the next dispatchable task, or returns nil when nothing
// is eligible or the active-task cap is reached. Claims are atomic; two
// concurrent callers never receive the same task.
func (s *Scheduler) NextReady(ctx context.Context) (*catalog.Task, error) {
	return s.store.ClaimNextTask(ctx, time.Now(), s.maxActive)
}

// Complete retires a claimed task as done.
func (s *Scheduler) Complete(ctx context.Context, taskID int64, note string) error {
	if err := s.store.CompleteTask(ctx, taskID); err != nil {
		return err
	}
	attrs := []logging.Attr{logging.Int64("task_id", taskID)}
	if note != "" {
		attrs = append(attrs, logging.String("note", note))
	}
	s.logger.Debug("task complete", logging.Args(attrs...)...)
	return nil
}

// Fail records a task failure. While the retry budget lasts the task
// returns to pending after an exponential backoff; afterwards it finalizes
// as failed.
func (s *Scheduler) Fail(ctx context.Context, taskID int64, cause error) (Outcome, error) {
	task, err := s.taskByID(ctx, taskID)
	if err != nil {
		return Outcome{}, err
	}
	return s.absorbFailure(ctx, task, causeMessage(cause), s.backoff(task.RetryCount+1))
}

// RetryAfter requeues a task with a caller-chosen delay, used when the
// error classifier supplies its own schedule. The retry budget still
// applies.
func (s *Scheduler) RetryAfter(ctx context.Context, taskID int64, delay time.Duration, cause error) (Outcome, error) {
	task, err := s.taskByID(ctx, taskID)
	if err != nil {
		return Outcome{}, err
	}
	if delay < 0 {
		delay = 0
	}
	return s.absorbFailure(ctx, task, causeMessage(cause), delay)
}

// Cancel withdraws a live task. Cancellation is not a failure; quota
// parking and mismatch cleanup use it.
func (s *Scheduler) Cancel(ctx context.Context, taskID int64, reason string) error {
	if err := s.store.CancelTask(ctx, taskID, reason); err != nil {
		return err
	}
	s.logger.Debug("task cancelled",
		logging.Int64("task_id", taskID),
		logging.String("reason", reason))
	return nil
}

// CancelMismatched cancels live tasks whose item status no longer matches
// the task's stage, covering manual interventions and rollback races.
func (s *Scheduler) CancelMismatched(ctx context.Context) (int64, error) {
	cancelled, err := s.store.CancelMismatchedTasks(ctx)
	if err != nil {
		return 0, err
	}
	if cancelled > 0 {
		s.logger.Info("cancelled mismatched tasks", logging.Int64("count", cancelled))
	}
	return cancelled, nil
}

// Counts returns the number of tasks per task status.
func (s *Scheduler) Counts(ctx context.Context) (map[catalog.TaskStatus]int, error) {
	return s.store.TaskCounts(ctx)
}

// PendingByStage returns the number of pending tasks per stage.
func (s *Scheduler) PendingByStage(ctx context.Context) (map[catalog.Stage]int, error) {
	return s.store.PendingTasksByStage(ctx)
}

// CleanupFinished prunes finished tasks past their retention windows.
func (s *Scheduler) CleanupFinished(ctx context.Context) (int64, error) {
	now := time.Now()
	removed, err := s.store.DeleteFinishedTasks(ctx, now.Add(-s.doneRetention), now.Add(-s.failedRetention))
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info("pruned finished tasks", logging.Int64("removed", removed))
	}
	return removed, nil
}

func (s *Scheduler) taskByID(ctx context.Context, taskID int64) (*catalog.Task, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("task %d: %w", taskID, catalog.ErrTaskNotFound)
	}
	return task, nil
}

func (s *Scheduler) absorbFailure(ctx context.Context, task *catalog.Task, cause string, delay time.Duration) (Outcome, error) {
	if task.RetryCount >= task.MaxRetries {
		if err := s.store.FinalizeTaskFailure(ctx, task.ID, cause); err != nil {
			return Outcome{}, err
		}
		s.logger.Warn("task retries exhausted",
			logging.Int64("task_id", task.ID),
			logging.Int64("item_id", task.ItemID),
			logging.String("stage", string(task.Stage)),
			logging.Int("attempts", task.RetryCount),
			logging.String("cause", cause))
		return Outcome{Attempts: task.RetryCount}, nil
	}

	requeued, err := s.store.RequeueTask(ctx, task.ID, time.Now().Add(delay), cause)
	if err != nil {
		return Outcome{}, err
	}
	s.logger.Debug("task requeued",
		logging.Int64("task_id", task.ID),
		logging.Int64("item_id", task.ItemID),
		logging.String("stage", string(task.Stage)),
		logging.Int("attempt", requeued.RetryCount),
		logging.Duration("delay", delay))
	return Outcome{Requeued: true, Delay: delay, Attempts: requeued.RetryCount}, nil
}

func causeMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
