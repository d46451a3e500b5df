package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// TransitionDetail carries the optional history fields for a transition.
type TransitionDetail struct {
	Note         string
	ErrorMessage string
	Elapsed      time.Duration
	RetryCount   int
}

// Transition moves an item along one lifecycle edge and appends a history
// row in the same transaction. Edges absent from the graph are rejected
// before any write. A concurrent status change surfaces as a ConflictError
// and leaves the item untouched.
func (s *Store) Transition(ctx context.Context, itemID int64, from, to Status, note string) error {
	return s.TransitionDetailed(ctx, itemID, from, to, TransitionDetail{Note: note})
}

// TransitionDetailed is Transition with error detail, elapsed time, and
// retry count recorded on the history row. A non-empty ErrorMessage is also
// written onto the item.
func (s *Store) TransitionDetailed(ctx context.Context, itemID int64, from, to Status, detail TransitionDetail) error {
	if _, ok := statusSet[from]; !ok && from != "" {
		return fmt.Errorf("unknown status %q", from)
	}
	if _, ok := statusSet[to]; !ok {
		return fmt.Errorf("unknown status %q", to)
	}
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}

	return s.txWithRetry(ctx, func(tx *sql.Tx) error {
		set := `status = ?, updated_at = ?`
		args := []any{to, formatTime(time.Now())}
		if !IsProcessingStatus(to) {
			set += `, last_heartbeat = NULL`
		}
		if detail.ErrorMessage != "" {
			set += `, error_message = ?`
			args = append(args, detail.ErrorMessage)
		}
		args = append(args, itemID, from)

		res, err := tx.ExecContext(ctx, `UPDATE items SET `+set+` WHERE id = ? AND status = ?`, args...)
		if err != nil {
			return fmt.Errorf("apply transition: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			row := tx.QueryRowContext(ctx, `SELECT status FROM items WHERE id = ?`, itemID)
			var actual string
			switch err := row.Scan(&actual); {
			case errors.Is(err, sql.ErrNoRows):
				return fmt.Errorf("item %d: %w", itemID, ErrItemNotFound)
			case err != nil:
				return fmt.Errorf("read current status: %w", err)
			}
			return &ConflictError{ItemID: itemID, Expected: from, Actual: Status(actual)}
		}
		return appendHistoryTx(ctx, tx, itemID, from, to, detail.Note, detail.ErrorMessage, detail.Elapsed, detail.RetryCount)
	})
}

// appendHistoryTx writes one history row with the item's next sequence
// number. Runs inside the transaction that changed the status so the row
// and the status can never diverge.
func appendHistoryTx(ctx context.Context, tx *sql.Tx, itemID int64, from, to Status, note, errorMessage string, elapsed time.Duration, retryCount int) error {
	var seq int
	row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM status_history WHERE item_id = ?`, itemID)
	if err := row.Scan(&seq); err != nil {
		return fmt.Errorf("next history seq: %w", err)
	}
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO status_history (
            item_id, seq, from_status, to_status, note, error_message,
            elapsed_ms, retry_count, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		itemID,
		seq,
		nullableString(string(from)),
		string(to),
		nullableString(note),
		nullableString(errorMessage),
		elapsed.Milliseconds(),
		retryCount,
		formatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// History returns an item's status history in sequence order. A positive
// limit returns only the most recent rows, still oldest first.
func (s *Store) History(ctx context.Context, itemID int64, limit int) ([]*HistoryEntry, error) {
	query := `SELECT ` + historyColumns + ` FROM status_history WHERE item_id = ? ORDER BY seq`
	args := []any{itemID}
	if limit > 0 {
		query = `SELECT ` + historyColumns + ` FROM status_history WHERE item_id = ? ORDER BY seq DESC LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []*HistoryEntry
	for rows.Next() {
		entry, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if limit > 0 {
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
	}
	return entries, nil
}

// LatestHistory returns the most recent history row for an item, or nil
// when the item has none.
func (s *Store) LatestHistory(ctx context.Context, itemID int64) (*HistoryEntry, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+historyColumns+` FROM status_history WHERE item_id = ? ORDER BY seq DESC LIMIT 1`,
		itemID,
	)
	entry, err := scanHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest history: %w", err)
	}
	return entry, nil
}

// UpdateHeartbeat updates the last heartbeat timestamp for an in-flight item.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE items SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		id,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}
