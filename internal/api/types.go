package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// ItemSummary describes a catalog item in a transport-friendly format.
type ItemSummary struct {
	ID           int64           `json:"id"`
	ExternalID   string          `json:"externalId"`
	Title        string          `json:"title"`
	Author       string          `json:"author,omitempty"`
	Status       string          `json:"status"`
	Language     string          `json:"language,omitempty"`
	Year         int             `json:"year,omitempty"`
	Publisher    string          `json:"publisher,omitempty"`
	Format       string          `json:"format,omitempty"`
	Priority     int             `json:"priority"`
	Progress     ItemProgress    `json:"progress"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	CreatedAt    string          `json:"createdAt,omitempty"`
	UpdatedAt    string          `json:"updatedAt,omitempty"`
	SourceURL    string          `json:"sourceUrl,omitempty"`
	StagingFile  string          `json:"stagingFile,omitempty"`
	ShelfPath    string          `json:"shelfPath,omitempty"`
	Checksum     string          `json:"checksum,omitempty"`
	FileSize     int64           `json:"fileSize,omitempty"`
	NeedsReview  bool            `json:"needsReview"`
	ReviewReason string          `json:"reviewReason,omitempty"`
	Candidates   json.RawMessage `json:"candidates,omitempty"`
}

// ItemProgress captures stage progress information for a catalog item.
type ItemProgress struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// HistoryEntry is one transition row of an item's status history.
type HistoryEntry struct {
	Seq          int    `json:"seq"`
	FromStatus   string `json:"fromStatus"`
	ToStatus     string `json:"toStatus"`
	Note         string `json:"note,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	ElapsedMS    int64  `json:"elapsedMs,omitempty"`
	RetryCount   int    `json:"retryCount,omitempty"`
	CreatedAt    string `json:"createdAt,omitempty"`
}

// PipelineStatus summarizes pipeline execution state.
type PipelineStatus struct {
	Running      bool           `json:"running"`
	WorkerPhases []string       `json:"workerPhases,omitempty"`
	ItemStats    map[string]int `json:"itemStats"`
	TaskCounts   map[string]int `json:"taskCounts,omitempty"`
	Quota        *QuotaStatus   `json:"quota,omitempty"`
	StageHealth  []StageHealth  `json:"stageHealth"`
	LastError    string         `json:"lastError,omitempty"`
	LastItem     *ItemSummary   `json:"lastItem,omitempty"`
}

// StageHealth mirrors readiness reporting for pipeline stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// QuotaStatus is a transport-friendly mirror quota reading.
type QuotaStatus struct {
	Remaining int    `json:"remaining"`
	Limit     int    `json:"limit"`
	NextReset string `json:"nextReset,omitempty"`
	CheckedAt string `json:"checkedAt,omitempty"`
}

// CheckResult reports one preflight check outcome.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running       bool           `json:"running"`
	PID           int            `json:"pid"`
	CatalogDBPath string         `json:"catalogDbPath"`
	LockFilePath  string         `json:"lockFilePath"`
	Pipeline      PipelineStatus `json:"pipeline"`
	Preflight     []CheckResult  `json:"preflight,omitempty"`
}

// StatsResponse provides a normalized item stats payload.
type StatsResponse struct {
	Counts map[string]int `json:"counts"`
}

// ListResponse wraps a collection of items for API responses.
type ListResponse struct {
	Items []ItemSummary `json:"items"`
}

// ItemResponse wraps a single item.
type ItemResponse struct {
	Item ItemSummary `json:"item"`
}

// HistoryResponse wraps an item's transition history.
type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
}
