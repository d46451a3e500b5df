package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Add inserts a new catalog item in status new and appends the first history
// row. Adding an external ID that already exists returns the existing item
// with created=false instead of inserting a duplicate.
func (s *Store) Add(ctx context.Context, externalID, title, author string, priority int) (*Item, bool, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, false, errors.New("external id is required")
	}
	if priority <= 0 {
		priority = DefaultPriority
	}

	var (
		id      int64
		created bool
	)
	err := s.txWithRetry(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(
			ctx,
			`SELECT id FROM items WHERE external_id = ? ORDER BY id DESC LIMIT 1`,
			externalID,
		)
		switch err := row.Scan(&id); {
		case err == nil:
			created = false
			return nil
		case errors.Is(err, sql.ErrNoRows):
		default:
			return fmt.Errorf("check existing item: %w", err)
		}

		timestamp := formatTime(time.Now())
		res, err := tx.ExecContext(
			ctx,
			`INSERT INTO items (
                external_id, title, author, status, priority,
                created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			externalID,
			nullableString(strings.TrimSpace(title)),
			nullableString(strings.TrimSpace(author)),
			StatusNew,
			priority,
			timestamp,
			timestamp,
		)
		if err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		if err := appendHistoryTx(ctx, tx, id, "", StatusNew, "item added", "", 0, 0); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	item, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return item, created, nil
}

// GetByID fetches a catalog item by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// GetByExternalID returns the item registered under an external identifier.
func (s *Store) GetByExternalID(ctx context.Context, externalID string) (*Item, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+itemColumns+` FROM items WHERE external_id = ? ORDER BY id DESC LIMIT 1`,
		externalID,
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item by external id: %w", err)
	}
	return item, nil
}

// Update persists changes to an existing catalog item. The status column is
// deliberately not written here; status changes go through Transition so
// every change lands in the history.
func (s *Store) Update(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("item is nil")
	}
	item.UpdatedAt = time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE items
         SET title = ?, author = ?, language = ?, year = ?, publisher = ?,
             format = ?, priority = ?, source_url = ?, candidates_json = ?,
             staging_file = ?, shelf_path = ?, checksum = ?, file_size = ?,
             error_message = ?, needs_review = ?, review_reason = ?,
             progress_stage = ?, progress_percent = ?, progress_message = ?,
             last_heartbeat = ?, updated_at = ?
         WHERE id = ?`,
		nullableString(item.Title),
		nullableString(item.Author),
		nullableString(item.Language),
		item.Year,
		nullableString(item.Publisher),
		nullableString(item.Format),
		item.Priority,
		nullableString(item.SourceURL),
		nullableString(item.CandidatesJSON),
		nullableString(item.StagingFile),
		nullableString(item.ShelfPath),
		nullableString(item.Checksum),
		item.FileSize,
		nullableString(item.ErrorMessage),
		boolToInt(item.NeedsReview),
		nullableString(item.ReviewReason),
		nullableString(item.ProgressStage),
		item.ProgressPercent,
		nullableString(item.ProgressMessage),
		nullableTime(item.LastHeartbeat),
		formatTime(item.UpdatedAt),
		item.ID,
	); err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// UpdateProgress persists only the progress fields. The heartbeat column is
// left alone so concurrent heartbeat writes survive progress updates.
func (s *Store) UpdateProgress(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("item is nil")
	}
	item.UpdatedAt = time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE items
         SET progress_stage = ?, progress_percent = ?, progress_message = ?,
             updated_at = ?
         WHERE id = ?`,
		nullableString(item.ProgressStage),
		item.ProgressPercent,
		nullableString(item.ProgressMessage),
		formatTime(item.UpdatedAt),
		item.ID,
	); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// ItemsByStatus returns items matching a status ordered by creation time.
func (s *Store) ItemsByStatus(ctx context.Context, status Status) ([]*Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items WHERE status = ? ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("query by status: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// List returns catalog items filtered by status set (or all items when no
// status is provided).
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + itemColumns + ` FROM items`
	orderClause := ` ORDER BY created_at`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ActiveExternalIDs returns the external identifiers of items still moving
// through the pipeline. Completed and skipped items are excluded;
// failed_permanent items are kept because a manual retry may reuse their
// staging files.
func (s *Store) ActiveExternalIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT external_id FROM items WHERE status NOT IN (?, ?)`,
		StatusCompleted,
		StatusSkippedExists,
	)
	if err != nil {
		return nil, fmt.Errorf("query active external ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Remove deletes an item by identifier. Tasks and history rows follow via
// foreign keys.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearCompleted removes completed and skipped items from the catalog.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM items WHERE status IN (?, ?)`, StatusCompleted, StatusSkippedExists)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return res.RowsAffected()
}

// ClearFailed removes permanently failed items from the catalog.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM items WHERE status = ?`, StatusFailedPermanent)
	if err != nil {
		return 0, fmt.Errorf("clear failed: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all items from the catalog.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM items`)
	if err != nil {
		return 0, fmt.Errorf("clear catalog: %w", err)
	}
	return res.RowsAffected()
}
