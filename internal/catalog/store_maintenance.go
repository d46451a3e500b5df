package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Stats returns a count of items grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("catalog stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates catalog state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusSearchQuotaExhausted:
			health.Parked += count
		case StatusSearchNoResults:
			health.NoResults += count
		case StatusFailedPermanent:
			health.Failed += count
		case StatusCompleted, StatusSkippedExists:
			health.Completed += count
		default:
			if _, ok := processingStatuses[status]; ok {
				health.Processing += count
			} else {
				health.Waiting += count
			}
		}
	}
	return health, nil
}

// CheckHealth returns diagnostic information about the catalog database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("catalog database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			health.DatabaseExists = false
			return health, nil
		}
		return health, fmt.Errorf("stat catalog database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("catalog database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("catalog database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping catalog database: %w", err)
	}
	health.DatabaseReadable = true

	var version int
	row := s.db.QueryRowContext(connCtx, `SELECT version FROM schema_version LIMIT 1`)
	if err := row.Scan(&version); err == nil {
		health.SchemaVersion = strconv.Itoa(version)
	}

	var tableName string
	row = s.db.QueryRowContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'items'")
	if err := row.Scan(&tableName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			health.TableExists = false
		} else {
			health.Error = err.Error()
			return health, fmt.Errorf("query table info: %w", err)
		}
	} else {
		health.TableExists = true
	}

	if health.TableExists {
		row = s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM items")
		if err := row.Scan(&health.TotalItems); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count items: %w", err)
		}
	}

	row = s.db.QueryRowContext(connCtx, "PRAGMA integrity_check")
	var integrityResult string
	if err := row.Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}

// itemIDsByStatusTx returns the ids of items currently in a status.
func itemIDsByStatusTx(ctx context.Context, tx *sql.Tx, status Status) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM items WHERE status = ? ORDER BY id`, status)
	if err != nil {
		return nil, fmt.Errorf("query items in %s: %w", status, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// rollbackItemTx moves one item along a rollback edge with progress and
// heartbeat cleared, appending the history row in the same transaction.
func rollbackItemTx(ctx context.Context, tx *sql.Tx, id int64, from, to Status, note, label string) (bool, error) {
	res, err := tx.ExecContext(
		ctx,
		`UPDATE items
         SET status = ?, progress_stage = ?, progress_percent = 0,
             progress_message = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		to,
		label,
		formatTime(time.Now()),
		id,
		from,
	)
	if err != nil {
		return false, fmt.Errorf("roll back item %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}
	if err := appendHistoryTx(ctx, tx, id, from, to, note, "", 0, 0); err != nil {
		return false, err
	}
	return true, nil
}

// RecoverFromCrash returns every in-flight item to the start of its stage
// and releases orphaned active tasks. Run once at daemon startup before
// workers begin claiming.
func (s *Store) RecoverFromCrash(ctx context.Context) (int64, error) {
	var recovered int64
	err := s.txWithRetry(ctx, func(tx *sql.Tx) error {
		recovered = 0
		for _, tr := range crashRecoveryTransitions {
			ids, err := itemIDsByStatusTx(ctx, tx, tr.from)
			if err != nil {
				return err
			}
			for _, id := range ids {
				ok, err := rollbackItemTx(ctx, tx, id, tr.from, tr.to, "recovered after restart", "Recovered after restart")
				if err != nil {
					return err
				}
				if ok {
					recovered++
				}
			}
		}
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE tasks SET status = ?, started_at = NULL WHERE status = ?`,
			TaskPending,
			TaskActive,
		); err != nil {
			return fmt.Errorf("release orphaned tasks: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return recovered, nil
}

// ResetStuck returns items whose heartbeat expired before the cutoff to the
// start of their stage, and their active tasks to pending.
func (s *Store) ResetStuck(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffStr := cutoff.UTC().Format(time.RFC3339Nano)
	var reset int64
	err := s.txWithRetry(ctx, func(tx *sql.Tx) error {
		reset = 0
		for _, tr := range crashRecoveryTransitions {
			rows, err := tx.QueryContext(
				ctx,
				`SELECT id FROM items
                 WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?
                 ORDER BY id`,
				tr.from,
				cutoffStr,
			)
			if err != nil {
				return fmt.Errorf("query stale items in %s: %w", tr.from, err)
			}
			var ids []int64
			for rows.Next() {
				var id int64
				if err := rows.Scan(&id); err != nil {
					rows.Close()
					return err
				}
				ids = append(ids, id)
			}
			if err := rows.Close(); err != nil {
				return err
			}

			for _, id := range ids {
				ok, err := rollbackItemTx(ctx, tx, id, tr.from, tr.to, "reclaimed after stale heartbeat", "Reclaimed from stale processing")
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
				if _, err := tx.ExecContext(
					ctx,
					`UPDATE tasks SET status = ?, started_at = NULL WHERE item_id = ? AND status = ?`,
					TaskPending,
					id,
					TaskActive,
				); err != nil {
					return fmt.Errorf("release stale task for item %d: %w", id, err)
				}
				reset++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return reset, nil
}

// ParkForQuota rolls every download-phase item back to search_complete and
// parks all search_complete items as quota-exhausted. Pending download
// tasks are cancelled, not failed. Returns the number of parked items.
func (s *Store) ParkForQuota(ctx context.Context, reason string) (int64, error) {
	if reason == "" {
		reason = "download quota exhausted"
	}
	var parked int64
	err := s.txWithRetry(ctx, func(tx *sql.Tx) error {
		parked = 0
		for _, tr := range quotaParkTransitions {
			ids, err := itemIDsByStatusTx(ctx, tx, tr.from)
			if err != nil {
				return err
			}
			for _, id := range ids {
				if _, err := rollbackItemTx(ctx, tx, id, tr.from, tr.to, reason, "Waiting for quota"); err != nil {
					return err
				}
			}
		}

		ids, err := itemIDsByStatusTx(ctx, tx, StatusSearchComplete)
		if err != nil {
			return err
		}
		for _, id := range ids {
			ok, err := rollbackItemTx(ctx, tx, id, StatusSearchComplete, StatusSearchQuotaExhausted, reason, "Waiting for quota")
			if err != nil {
				return err
			}
			if ok {
				parked++
			}
		}

		if _, err := tx.ExecContext(
			ctx,
			`UPDATE tasks SET status = ?, finished_at = ?, last_error = ?
             WHERE stage = ? AND status = ?`,
			TaskCancelled,
			formatTime(time.Now()),
			reason,
			StageDownload,
			TaskPending,
		); err != nil {
			return fmt.Errorf("cancel pending download tasks: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return parked, nil
}

// ReactivateParked re-admits every quota-parked item to download_queued and
// returns their ids so the caller can schedule download tasks. The live
// task uniqueness makes double re-admission impossible.
func (s *Store) ReactivateParked(ctx context.Context, note string) ([]int64, error) {
	if note == "" {
		note = "download quota restored"
	}
	var readmitted []int64
	err := s.txWithRetry(ctx, func(tx *sql.Tx) error {
		readmitted = nil
		ids, err := itemIDsByStatusTx(ctx, tx, StatusSearchQuotaExhausted)
		if err != nil {
			return err
		}
		for _, id := range ids {
			ok, err := rollbackItemTx(ctx, tx, id, StatusSearchQuotaExhausted, StatusDownloadQueued, note, "Queued for download")
			if err != nil {
				return err
			}
			if ok {
				readmitted = append(readmitted, id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return readmitted, nil
}

// RetryFailed re-admits permanently failed items at the stage recorded in
// their failure history. With no ids every failed item is retried. Returns
// the re-admitted items so the caller can schedule their stage tasks.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) ([]*Item, error) {
	var targets []int64
	if len(ids) == 0 {
		rows, err := s.db.QueryContext(ctx, `SELECT id FROM items WHERE status = ? ORDER BY id`, StatusFailedPermanent)
		if err != nil {
			return nil, fmt.Errorf("query failed items: %w", err)
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			targets = append(targets, id)
		}
		if err := rows.Close(); err != nil {
			return nil, err
		}
	} else {
		targets = ids
	}

	var retried []*Item
	for _, id := range targets {
		err := s.txWithRetry(ctx, func(tx *sql.Tx) error {
			target, err := retryTargetStatusTx(ctx, tx, id)
			if err != nil {
				return err
			}
			res, err := tx.ExecContext(
				ctx,
				`UPDATE items
                 SET status = ?, error_message = NULL, needs_review = 0,
                     review_reason = NULL, progress_stage = 'Retry requested',
                     progress_percent = 0, progress_message = NULL, updated_at = ?
                 WHERE id = ? AND status = ?`,
				target,
				formatTime(time.Now()),
				id,
				StatusFailedPermanent,
			)
			if err != nil {
				return fmt.Errorf("retry item %d: %w", id, err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			if affected == 0 {
				return nil
			}
			return appendHistoryTx(ctx, tx, id, StatusFailedPermanent, target, "retry requested", "", 0, 0)
		})
		if err != nil {
			return retried, err
		}
		item, err := s.GetByID(ctx, id)
		if err != nil {
			return retried, err
		}
		if item != nil && item.Status != StatusFailedPermanent {
			retried = append(retried, item)
		}
	}
	return retried, nil
}

// retryTargetStatusTx infers the queued status a failed item should return
// to from the history row that finalized it. Items with no usable history
// start over from new.
func retryTargetStatusTx(ctx context.Context, tx *sql.Tx, itemID int64) (Status, error) {
	row := tx.QueryRowContext(
		ctx,
		`SELECT from_status FROM status_history
         WHERE item_id = ? AND to_status = ?
         ORDER BY seq DESC LIMIT 1`,
		itemID,
		StatusFailedPermanent,
	)
	var fromRaw sql.NullString
	switch err := row.Scan(&fromRaw); {
	case errors.Is(err, sql.ErrNoRows):
		return StatusNew, nil
	case err != nil:
		return "", fmt.Errorf("read failure history: %w", err)
	}
	stage, ok := StageForStatus(Status(fromRaw.String))
	if !ok {
		return StatusNew, nil
	}
	return RetryStatusFor(stage), nil
}
