package ipc

import "folio/internal/api"

// StartRequest triggers daemon pipeline startup.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops daemon pipeline processing.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// ItemSummary mirrors the catalog item DTO for IPC callers.
type ItemSummary = api.ItemSummary

// HistoryEntry mirrors the status history DTO for IPC callers.
type HistoryEntry = api.HistoryEntry

// StageHealth describes readiness of a pipeline stage.
type StageHealth = api.StageHealth

// QuotaStatus describes the mirror download quota reading.
type QuotaStatus = api.QuotaStatus

// CheckResult describes one environment check outcome.
type CheckResult = api.CheckResult

// StatusResponse represents combined daemon and pipeline status information.
type StatusResponse struct {
	Running       bool           `json:"running"`
	PID           int            `json:"pid"`
	ItemStats     map[string]int `json:"item_stats"`
	TaskCounts    map[string]int `json:"task_counts"`
	WorkerPhases  []string       `json:"worker_phases"`
	LastError     string         `json:"last_error"`
	LastItem      *ItemSummary   `json:"last_item"`
	LockPath      string         `json:"lock_path"`
	CatalogDBPath string         `json:"catalog_db_path"`
	StageHealth   []StageHealth  `json:"stage_health"`
	Quota         *QuotaStatus   `json:"quota"`
}

// AddRequest records a new acquisition request.
type AddRequest struct {
	ExternalID string `json:"external_id"`
	Title      string `json:"title"`
	Author     string `json:"author"`
	Priority   int    `json:"priority"`
}

// AddResponse returns the created or existing item.
type AddResponse struct {
	Item    ItemSummary `json:"item"`
	Created bool        `json:"created"`
}

// ListRequest filters catalog listing by status.
type ListRequest struct {
	Statuses []string `json:"statuses"`
}

// ListResponse contains catalog entries.
type ListResponse struct {
	Items []ItemSummary `json:"items"`
}

// DescribeRequest fetches a single catalog item by id.
type DescribeRequest struct {
	ID int64 `json:"id"`
}

// DescribeResponse contains a single catalog entry when found.
type DescribeResponse struct {
	Item  ItemSummary `json:"item"`
	Found bool        `json:"found"`
}

// HistoryRequest fetches recent status transitions for an item.
type HistoryRequest struct {
	ID    int64 `json:"id"`
	Limit int   `json:"limit"`
}

// HistoryResponse contains status transitions, newest first.
type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
}

// ClearRequest removes all items.
type ClearRequest struct{}

// ClearResponse reports number of removed entries.
type ClearResponse struct {
	Removed int64 `json:"removed"`
}

// ClearCompletedRequest removes completed and skipped items.
type ClearCompletedRequest struct{}

// ClearCompletedResponse reports number of removed entries.
type ClearCompletedResponse struct {
	Removed int64 `json:"removed"`
}

// ClearFailedRequest removes permanently failed items.
type ClearFailedRequest struct{}

// ClearFailedResponse reports number of removed entries.
type ClearFailedResponse struct {
	Removed int64 `json:"removed"`
}

// ResetRequest walks stuck in-flight items back to their queued statuses.
type ResetRequest struct{}

// ResetResponse reports number of items reset.
type ResetResponse struct {
	Updated int64 `json:"updated"`
}

// RetryRequest retries failed items. Empty list means all failed items.
type RetryRequest struct {
	IDs []int64 `json:"ids"`
}

// RetryResponse reports number of retried items.
type RetryResponse struct {
	Updated int64 `json:"updated"`
}

// RemoveRequest removes specific items by ID.
type RemoveRequest struct {
	IDs []int64 `json:"ids"`
}

// RemoveResponse reports number of removed entries.
type RemoveResponse struct {
	Removed int64 `json:"removed"`
}

// HealthRequest fetches aggregate catalog diagnostics.
type HealthRequest struct{}

// HealthResponse reports catalog health information.
type HealthResponse struct {
	Total      int `json:"total"`
	Waiting    int `json:"waiting"`
	Processing int `json:"processing"`
	Parked     int `json:"parked"`
	NoResults  int `json:"no_results"`
	Failed     int `json:"failed"`
	Completed  int `json:"completed"`
}

// DatabaseHealthRequest fetches detailed database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse reports database health information.
type DatabaseHealthResponse struct {
	DBPath           string `json:"db_path"`
	DatabaseExists   bool   `json:"database_exists"`
	DatabaseReadable bool   `json:"database_readable"`
	SchemaVersion    string `json:"schema_version"`
	TableExists      bool   `json:"table_exists"`
	IntegrityCheck   bool   `json:"integrity_check"`
	TotalItems       int    `json:"total_items"`
	Error            string `json:"error"`
}

// QuotaRequest fetches the mirror quota reading. Refresh forces a provider
// query instead of the cached snapshot.
type QuotaRequest struct {
	Refresh bool `json:"refresh"`
}

// QuotaResponse reports the mirror quota reading.
type QuotaResponse struct {
	Remaining int    `json:"remaining"`
	Limit     int    `json:"limit"`
	NextReset string `json:"next_reset"`
	CheckedAt string `json:"checked_at"`
}

// PreflightRequest runs the environment checks.
type PreflightRequest struct{}

// PreflightResponse reports environment check outcomes.
type PreflightResponse struct {
	Checks []CheckResult `json:"checks"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
