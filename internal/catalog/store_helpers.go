package catalog

import (
	"database/sql"
	"errors"
	"time"
)

const itemColumns = "id, external_id, title, author, status, language, year, publisher, format, priority, source_url, candidates_json, staging_file, shelf_path, checksum, file_size, error_message, needs_review, review_reason, progress_stage, progress_percent, progress_message, last_heartbeat, created_at, updated_at"

const taskColumns = "id, item_id, stage, status, priority, eligible_at, retry_count, max_retries, last_error, created_at, started_at, finished_at"

const historyColumns = "id, item_id, seq, from_status, to_status, note, error_message, elapsed_ms, retry_count, created_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id               int64
		externalID       string
		title            sql.NullString
		author           sql.NullString
		statusStr        string
		language         sql.NullString
		year             sql.NullInt64
		publisher        sql.NullString
		format           sql.NullString
		priority         sql.NullInt64
		sourceURL        sql.NullString
		candidates       sql.NullString
		stagingFile      sql.NullString
		shelfPath        sql.NullString
		checksum         sql.NullString
		fileSize         sql.NullInt64
		errorMessage     sql.NullString
		needsReview      sql.NullInt64
		reviewReason     sql.NullString
		progressStage    sql.NullString
		progressPercent  sql.NullFloat64
		progressMessage  sql.NullString
		lastHeartbeatRaw sql.NullString
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&externalID,
		&title,
		&author,
		&statusStr,
		&language,
		&year,
		&publisher,
		&format,
		&priority,
		&sourceURL,
		&candidates,
		&stagingFile,
		&shelfPath,
		&checksum,
		&fileSize,
		&errorMessage,
		&needsReview,
		&reviewReason,
		&progressStage,
		&progressPercent,
		&progressMessage,
		&lastHeartbeatRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:              id,
		ExternalID:      externalID,
		Title:           title.String,
		Author:          author.String,
		Status:          Status(statusStr),
		Language:        language.String,
		Year:            int(year.Int64),
		Publisher:       publisher.String,
		Format:          format.String,
		Priority:        int(priority.Int64),
		SourceURL:       sourceURL.String,
		CandidatesJSON:  candidates.String,
		StagingFile:     stagingFile.String,
		ShelfPath:       shelfPath.String,
		Checksum:        checksum.String,
		FileSize:        fileSize.Int64,
		ErrorMessage:    errorMessage.String,
		ReviewReason:    reviewReason.String,
		ProgressStage:   progressStage.String,
		ProgressPercent: progressPercent.Float64,
		ProgressMessage: progressMessage.String,
	}
	if needsReview.Valid {
		item.NeedsReview = needsReview.Int64 != 0
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			item.LastHeartbeat = &heartbeat
		}
	}
	return item, nil
}

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id          int64
		itemID      int64
		stageStr    string
		statusStr   string
		priority    sql.NullInt64
		eligibleRaw sql.NullString
		retryCount  sql.NullInt64
		maxRetries  sql.NullInt64
		lastError   sql.NullString
		createdRaw  sql.NullString
		startedRaw  sql.NullString
		finishedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&itemID,
		&stageStr,
		&statusStr,
		&priority,
		&eligibleRaw,
		&retryCount,
		&maxRetries,
		&lastError,
		&createdRaw,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}

	task := &Task{
		ID:         id,
		ItemID:     itemID,
		Stage:      Stage(stageStr),
		Status:     TaskStatus(statusStr),
		Priority:   int(priority.Int64),
		RetryCount: int(retryCount.Int64),
		MaxRetries: int(maxRetries.Int64),
		LastError:  lastError.String,
	}

	if eligible, err := parseTimeString(eligibleRaw.String); err == nil {
		task.EligibleAt = eligible
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		task.CreatedAt = created
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			task.StartedAt = &started
		}
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			task.FinishedAt = &finished
		}
	}
	return task, nil
}

func scanHistory(scanner interface{ Scan(dest ...any) error }) (*HistoryEntry, error) {
	var (
		id           int64
		itemID       int64
		seq          int
		fromStatus   sql.NullString
		toStatus     string
		note         sql.NullString
		errorMessage sql.NullString
		elapsedMS    sql.NullInt64
		retryCount   sql.NullInt64
		createdRaw   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&itemID,
		&seq,
		&fromStatus,
		&toStatus,
		&note,
		&errorMessage,
		&elapsedMS,
		&retryCount,
		&createdRaw,
	); err != nil {
		return nil, err
	}

	entry := &HistoryEntry{
		ID:           id,
		ItemID:       itemID,
		Seq:          seq,
		FromStatus:   Status(fromStatus.String),
		ToStatus:     Status(toStatus),
		Note:         note.String,
		ErrorMessage: errorMessage.String,
		Elapsed:      time.Duration(elapsedMS.Int64) * time.Millisecond,
		RetryCount:   int(retryCount.Int64),
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		entry.CreatedAt = created
	}
	return entry, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	v := value.UTC().Format(time.RFC3339Nano)
	return v
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
