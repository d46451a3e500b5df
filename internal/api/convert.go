package api

import (
	"encoding/json"
	"time"

	"folio/internal/catalog"
	"folio/internal/pipeline"
	"folio/internal/preflight"
	"folio/internal/quota"
	"folio/internal/stage"
)

// FromItem converts a catalog record to its API representation.
func FromItem(item *catalog.Item) ItemSummary {
	if item == nil {
		return ItemSummary{}
	}

	dto := ItemSummary{
		ID:         item.ID,
		ExternalID: item.ExternalID,
		Title:      item.Title,
		Author:     item.Author,
		Status:     string(item.Status),
		Language:   item.Language,
		Year:       item.Year,
		Publisher:  item.Publisher,
		Format:     item.Format,
		Priority:   item.Priority,
		Progress: ItemProgress{
			Stage:   item.ProgressStage,
			Percent: item.ProgressPercent,
			Message: item.ProgressMessage,
		},
		ErrorMessage: item.ErrorMessage,
		SourceURL:    item.SourceURL,
		StagingFile:  item.StagingFile,
		ShelfPath:    item.ShelfPath,
		Checksum:     item.Checksum,
		FileSize:     item.FileSize,
		NeedsReview:  item.NeedsReview,
		ReviewReason: item.ReviewReason,
	}
	if !item.CreatedAt.IsZero() {
		dto.CreatedAt = item.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !item.UpdatedAt.IsZero() {
		dto.UpdatedAt = item.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	if raw := item.CandidatesJSON; raw != "" {
		dto.Candidates = json.RawMessage(raw)
	}
	return dto
}

// FromItems converts a slice of catalog records into API DTOs.
func FromItems(items []*catalog.Item) []ItemSummary {
	if len(items) == 0 {
		return nil
	}
	out := make([]ItemSummary, 0, len(items))
	for _, item := range items {
		out = append(out, FromItem(item))
	}
	return out
}

// FromHistoryEntry converts one transition row to its API representation.
func FromHistoryEntry(entry *catalog.HistoryEntry) HistoryEntry {
	if entry == nil {
		return HistoryEntry{}
	}
	dto := HistoryEntry{
		Seq:          entry.Seq,
		FromStatus:   string(entry.FromStatus),
		ToStatus:     string(entry.ToStatus),
		Note:         entry.Note,
		ErrorMessage: entry.ErrorMessage,
		RetryCount:   entry.RetryCount,
	}
	if entry.Elapsed > 0 {
		dto.ElapsedMS = entry.Elapsed.Milliseconds()
	}
	if !entry.CreatedAt.IsZero() {
		dto.CreatedAt = entry.CreatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromHistory converts a slice of transition rows into API DTOs.
func FromHistory(entries []*catalog.HistoryEntry) []HistoryEntry {
	if len(entries) == 0 {
		return nil
	}
	out := make([]HistoryEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, FromHistoryEntry(entry))
	}
	return out
}

// FromStatusSummary converts a pipeline status summary to an API payload.
func FromStatusSummary(summary pipeline.StatusSummary) PipelineStatus {
	status := PipelineStatus{
		Running:     summary.Running,
		ItemStats:   MergeStats(summary.QueueStats),
		TaskCounts:  TaskCountsMap(summary.TaskCounts),
		StageHealth: StageHealthSlice(summary.StageHealth),
	}
	if len(summary.WorkerPhases) > 0 {
		phases := make([]string, 0, len(summary.WorkerPhases))
		for _, phase := range summary.WorkerPhases {
			phases = append(phases, string(phase))
		}
		status.WorkerPhases = phases
	}
	if summary.Quota != nil {
		q := FromQuotaSnapshot(*summary.Quota)
		status.Quota = &q
	}
	if summary.LastError != "" {
		status.LastError = summary.LastError
	}
	if summary.LastItem != nil {
		last := FromItem(summary.LastItem)
		status.LastItem = &last
	}
	return status
}

// FromQuotaSnapshot converts a quota reading to an API payload.
func FromQuotaSnapshot(snapshot quota.Snapshot) QuotaStatus {
	status := QuotaStatus{
		Remaining: snapshot.Remaining,
		Limit:     snapshot.Limit,
	}
	if !snapshot.NextReset.IsZero() {
		status.NextReset = snapshot.NextReset.UTC().Format(dateTimeFormat)
	}
	if !snapshot.CheckedAt.IsZero() {
		status.CheckedAt = snapshot.CheckedAt.UTC().Format(dateTimeFormat)
	}
	return status
}

// FromPreflight converts preflight results to API payloads.
func FromPreflight(results []preflight.Result) []CheckResult {
	if len(results) == 0 {
		return nil
	}
	out := make([]CheckResult, 0, len(results))
	for _, result := range results {
		out = append(out, CheckResult{
			Name:   result.Name,
			Passed: result.Passed,
			Detail: result.Detail,
		})
	}
	return out
}

// MergeStats produces a string-keyed representation of item stats.
func MergeStats(stats map[catalog.Status]int) map[string]int {
	out := make(map[string]int, len(stats))
	for status, count := range stats {
		out[string(status)] = count
	}
	return out
}

// TaskCountsMap produces a string-keyed representation of task counts.
func TaskCountsMap(counts map[catalog.TaskStatus]int) map[string]int {
	if len(counts) == 0 {
		return nil
	}
	out := make(map[string]int, len(counts))
	for status, count := range counts {
		out[string(status)] = count
	}
	return out
}

// StageHealthSlice converts a stage health map into a slice ordered by
// pipeline execution order.
func StageHealthSlice(health map[catalog.Stage]stage.Health) []StageHealth {
	if len(health) == 0 {
		return nil
	}
	out := make([]StageHealth, 0, len(health))
	for _, stg := range catalog.AllStages() {
		h, ok := health[stg]
		if !ok {
			continue
		}
		out = append(out, StageHealth{
			Name:   h.Name,
			Ready:  h.Ready,
			Detail: h.Detail,
		})
	}
	return out
}

// ParseItemTime parses an API timestamp back into a time.Time for display
// formatting. Zero time is returned for empty or malformed values.
func ParseItemTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}
