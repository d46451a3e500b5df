package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateTask inserts a pending task for (item, stage). The live-task unique
// index makes a second insert for the same pair surface the existing task
// with created=false instead of a duplicate row.
func (s *Store) CreateTask(ctx context.Context, itemID int64, stage Stage, priority int, eligibleAt time.Time, maxRetries int) (*Task, bool, error) {
	if priority <= 0 {
		priority = DefaultPriority
	}
	if eligibleAt.IsZero() {
		eligibleAt = time.Now().UTC()
	}

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO tasks (
            item_id, stage, status, priority, eligible_at, retry_count,
            max_retries, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		itemID,
		stage,
		TaskPending,
		priority,
		formatTime(eligibleAt),
		0,
		maxRetries,
		formatTime(time.Now()),
	)
	if err != nil {
		if isUniqueConstraint(err) {
			existing, lookupErr := s.LiveTask(ctx, itemID, stage)
			if lookupErr != nil {
				return nil, false, lookupErr
			}
			if existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("insert task: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("last insert id: %w", err)
	}
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return task, true, nil
}

// GetTask fetches a task by identifier.
func (s *Store) GetTask(ctx context.Context, id int64) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// LiveTask returns the pending or active task for (item, stage), or nil.
func (s *Store) LiveTask(ctx context.Context, itemID int64, stage Stage) (*Task, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+taskColumns+` FROM tasks
         WHERE item_id = ? AND stage = ? AND status IN (?, ?)
         ORDER BY id DESC LIMIT 1`,
		itemID,
		stage,
		TaskPending,
		TaskActive,
	)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get live task: %w", err)
	}
	return task, nil
}

// ClaimNextTask atomically claims the next dispatchable task: pending,
// eligible now, lowest priority value first, ties broken by earliest
// eligible time then insertion order. Returns nil without claiming when the
// active count has reached maxActive or nothing is ready.
func (s *Store) ClaimNextTask(ctx context.Context, now time.Time, maxActive int) (*Task, error) {
	var claimed *Task
	err := s.txWithRetry(ctx, func(tx *sql.Tx) error {
		claimed = nil

		if maxActive > 0 {
			var active int
			row := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE status = ?`, TaskActive)
			if err := row.Scan(&active); err != nil {
				return fmt.Errorf("count active tasks: %w", err)
			}
			if active >= maxActive {
				return nil
			}
		}

		row := tx.QueryRowContext(
			ctx,
			`SELECT `+taskColumns+` FROM tasks
             WHERE status = ? AND eligible_at <= ?
             ORDER BY priority ASC, eligible_at ASC, id ASC
             LIMIT 1`,
			TaskPending,
			formatTime(now),
		)
		task, err := scanTask(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("select next task: %w", err)
		}

		started := now.UTC()
		res, err := tx.ExecContext(
			ctx,
			`UPDATE tasks SET status = ?, started_at = ? WHERE id = ? AND status = ?`,
			TaskActive,
			formatTime(started),
			task.ID,
			TaskPending,
		)
		if err != nil {
			return fmt.Errorf("claim task: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return nil
		}

		task.Status = TaskActive
		task.StartedAt = &started
		claimed = task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// CompleteTask marks an active task done and stamps finished_at.
func (s *Store) CompleteTask(ctx context.Context, taskID int64) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks SET status = ?, finished_at = ?, last_error = NULL
         WHERE id = ? AND status = ?`,
		TaskDone,
		formatTime(time.Now()),
		taskID,
		TaskActive,
	)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("task %d not active: %w", taskID, ErrTaskNotFound)
	}
	return nil
}

// RequeueTask returns an active task to pending with the retry count
// incremented and a new eligibility time. The row keeps its identity so the
// (item, stage) pair stays unique.
func (s *Store) RequeueTask(ctx context.Context, taskID int64, eligibleAt time.Time, cause string) (*Task, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks
         SET status = ?, retry_count = retry_count + 1, eligible_at = ?,
             last_error = ?, started_at = NULL
         WHERE id = ? AND status = ?`,
		TaskPending,
		formatTime(eligibleAt),
		nullableString(cause),
		taskID,
		TaskActive,
	)
	if err != nil {
		return nil, fmt.Errorf("requeue task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("task %d not active: %w", taskID, ErrTaskNotFound)
	}
	return s.GetTask(ctx, taskID)
}

// FinalizeTaskFailure marks a live task failed with the cause recorded.
func (s *Store) FinalizeTaskFailure(ctx context.Context, taskID int64, cause string) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks SET status = ?, finished_at = ?, last_error = ?
         WHERE id = ? AND status IN (?, ?)`,
		TaskFailed,
		formatTime(time.Now()),
		nullableString(cause),
		taskID,
		TaskPending,
		TaskActive,
	)
	if err != nil {
		return fmt.Errorf("finalize task failure: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("task %d not live: %w", taskID, ErrTaskNotFound)
	}
	return nil
}

// CancelTask cancels a live task. Cancellation is not a failure; quota
// parking and mismatch cleanup use it.
func (s *Store) CancelTask(ctx context.Context, taskID int64, reason string) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks SET status = ?, finished_at = ?, last_error = ?
         WHERE id = ? AND status IN (?, ?)`,
		TaskCancelled,
		formatTime(time.Now()),
		nullableString(reason),
		taskID,
		TaskPending,
		TaskActive,
	)
	if err != nil {
		return fmt.Errorf("cancel task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("task %d not live: %w", taskID, ErrTaskNotFound)
	}
	return nil
}

// CancelPendingTasks cancels every pending task for a stage.
func (s *Store) CancelPendingTasks(ctx context.Context, stage Stage, reason string) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks SET status = ?, finished_at = ?, last_error = ?
         WHERE stage = ? AND status = ?`,
		TaskCancelled,
		formatTime(time.Now()),
		nullableString(reason),
		stage,
		TaskPending,
	)
	if err != nil {
		return 0, fmt.Errorf("cancel pending tasks: %w", err)
	}
	return res.RowsAffected()
}

// TaskCounts returns the number of tasks per task status.
func (s *Store) TaskCounts(ctx context.Context) (map[TaskStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}
	defer rows.Close()

	counts := make(map[TaskStatus]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[TaskStatus(status)] = count
	}
	return counts, rows.Err()
}

// PendingTasksByStage returns the number of pending tasks per stage.
func (s *Store) PendingTasksByStage(ctx context.Context) (map[Stage]int, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT stage, COUNT(*) FROM tasks WHERE status = ? GROUP BY stage`,
		TaskPending,
	)
	if err != nil {
		return nil, fmt.Errorf("count pending tasks: %w", err)
	}
	defer rows.Close()

	counts := make(map[Stage]int)
	for rows.Next() {
		var (
			stage string
			count int
		)
		if err := rows.Scan(&stage, &count); err != nil {
			return nil, err
		}
		counts[Stage(stage)] = count
	}
	return counts, rows.Err()
}

// TasksByStatus returns tasks in a status ordered by creation.
func (s *Store) TasksByStatus(ctx context.Context, status TaskStatus) ([]*Task, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE status = ? ORDER BY id`,
		status,
	)
	if err != nil {
		return nil, fmt.Errorf("query tasks by status: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// ResetOrphanedTasks returns active tasks to pending. Run at startup after
// a crash; the claiming worker no longer exists.
func (s *Store) ResetOrphanedTasks(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE tasks SET status = ?, started_at = NULL WHERE status = ?`,
		TaskPending,
		TaskActive,
	)
	if err != nil {
		return 0, fmt.Errorf("reset orphaned tasks: %w", err)
	}
	return res.RowsAffected()
}

// DeleteFinishedTasks removes done tasks finished before doneBefore and
// failed or cancelled tasks finished before failedBefore.
func (s *Store) DeleteFinishedTasks(ctx context.Context, doneBefore, failedBefore time.Time) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM tasks
         WHERE (status = ? AND finished_at IS NOT NULL AND finished_at < ?)
            OR (status IN (?, ?) AND finished_at IS NOT NULL AND finished_at < ?)`,
		TaskDone,
		formatTime(doneBefore),
		TaskFailed,
		TaskCancelled,
		formatTime(failedBefore),
	)
	if err != nil {
		return 0, fmt.Errorf("delete finished tasks: %w", err)
	}
	return res.RowsAffected()
}

// CancelMismatchedTasks cancels pending tasks whose item status is no
// longer acceptable for the task's stage. Covers manual status
// interventions and rollback races. Active tasks are left alone; the
// worker holding one resolves its item itself.
func (s *Store) CancelMismatchedTasks(ctx context.Context) (int64, error) {
	var cancelled int64
	err := s.txWithRetry(ctx, func(tx *sql.Tx) error {
		cancelled = 0
		rows, err := tx.QueryContext(
			ctx,
			`SELECT t.id, t.stage, i.status
             FROM tasks t JOIN items i ON i.id = t.item_id
             WHERE t.status = ?`,
			TaskPending,
		)
		if err != nil {
			return fmt.Errorf("query live tasks: %w", err)
		}

		var mismatched []int64
		for rows.Next() {
			var (
				id     int64
				stage  string
				status string
			)
			if err := rows.Scan(&id, &stage, &status); err != nil {
				rows.Close()
				return err
			}
			if !StatusAcceptableForStage(Status(status), Stage(stage)) {
				mismatched = append(mismatched, id)
			}
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if len(mismatched) == 0 {
			return nil
		}

		placeholders := makePlaceholders(len(mismatched))
		args := make([]any, 0, len(mismatched)+3)
		args = append(args, TaskCancelled, formatTime(time.Now()), "item status no longer matches stage")
		for _, id := range mismatched {
			args = append(args, id)
		}
		res, err := tx.ExecContext(
			ctx,
			`UPDATE tasks SET status = ?, finished_at = ?, last_error = ?
             WHERE id IN (`+placeholders+`)`,
			args...,
		)
		if err != nil {
			return fmt.Errorf("cancel mismatched tasks: %w", err)
		}
		cancelled, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return cancelled, nil
}
