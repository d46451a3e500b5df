package catalog

import (
	"strings"
	"time"
)

// Status represents the lifecycle state of a catalog item.
type Status string

const (
	StatusNew                  Status = "new"
	StatusDetailFetching       Status = "detail_fetching"
	StatusDetailComplete       Status = "detail_complete"
	StatusSearchQueued         Status = "search_queued"
	StatusSearchActive         Status = "search_active"
	StatusSearchComplete       Status = "search_complete"
	StatusSearchNoResults      Status = "search_no_results"
	StatusSearchQuotaExhausted Status = "search_complete_quota_exhausted"
	StatusDownloadQueued       Status = "download_queued"
	StatusDownloadActive       Status = "download_active"
	StatusDownloadComplete     Status = "download_complete"
	StatusDownloadFailed       Status = "download_failed"
	StatusUploadQueued         Status = "upload_queued"
	StatusUploadActive         Status = "upload_active"
	StatusUploadComplete       Status = "upload_complete"
	StatusUploadFailed         Status = "upload_failed"
	StatusCompleted            Status = "completed"
	StatusSkippedExists        Status = "skipped_exists"
	StatusFailedPermanent      Status = "failed_permanent"
)

var allStatuses = []Status{
	StatusNew,
	StatusDetailFetching,
	StatusDetailComplete,
	StatusSearchQueued,
	StatusSearchActive,
	StatusSearchComplete,
	StatusSearchNoResults,
	StatusSearchQuotaExhausted,
	StatusDownloadQueued,
	StatusDownloadActive,
	StatusDownloadComplete,
	StatusDownloadFailed,
	StatusUploadQueued,
	StatusUploadActive,
	StatusUploadComplete,
	StatusUploadFailed,
	StatusCompleted,
	StatusSkippedExists,
	StatusFailedPermanent,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusDetailFetching: {},
	StatusSearchActive:   {},
	StatusDownloadActive: {},
	StatusUploadActive:   {},
}

var terminalStatuses = map[Status]struct{}{
	StatusCompleted:       {},
	StatusSkippedExists:   {},
	StatusFailedPermanent: {},
}

// Stage identifies one of the four pipeline stages.
type Stage string

const (
	StageDetail   Stage = "detail"
	StageSearch   Stage = "search"
	StageDownload Stage = "download"
	StageUpload   Stage = "upload"
)

var allStages = []Stage{StageDetail, StageSearch, StageDownload, StageUpload}

// TaskStatus represents the lifecycle of a scheduled stage task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskActive    TaskStatus = "active"
	TaskDone      TaskStatus = "done"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// DefaultPriority is assigned to tasks and items when no explicit priority is
// given. Lower values dispatch first.
const DefaultPriority = 5

// Item represents a catalog item persisted in SQLite.
type Item struct {
	ID              int64
	ExternalID      string
	Title           string
	Author          string
	Status          Status
	Language        string
	Year            int
	Publisher       string
	Format          string
	Priority        int
	SourceURL       string
	CandidatesJSON  string
	StagingFile     string
	ShelfPath       string
	Checksum        string
	FileSize        int64
	ErrorMessage    string
	NeedsReview     bool
	ReviewReason    string
	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string
	LastHeartbeat   *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Task represents a scheduled unit of stage work for one item.
type Task struct {
	ID         int64
	ItemID     int64
	Stage      Stage
	Status     TaskStatus
	Priority   int
	EligibleAt time.Time
	RetryCount int
	MaxRetries int
	LastError  string
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// HistoryEntry is one row of an item's append-only status history.
type HistoryEntry struct {
	ID           int64
	ItemID       int64
	Seq          int
	FromStatus   Status
	ToStatus     Status
	Note         string
	ErrorMessage string
	Elapsed      time.Duration
	RetryCount   int
	CreatedAt    time.Time
}

// HealthSummary describes aggregated item counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Waiting    int
	Processing int
	Parked     int
	NoResults  int
	Failed     int
	Completed  int
}

// DatabaseHealth captures diagnostic information about the catalog database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TableExists      bool
	IntegrityCheck   bool
	TotalItems       int
	Error            string
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// AllStages returns the pipeline stages in execution order.
func AllStages() []Stage {
	cp := make([]Stage, len(allStages))
	copy(cp, allStages)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// ParseStage converts a string into a known Stage.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	for _, stage := range allStages {
		if stage == normalized {
			return stage, true
		}
	}
	return "", false
}

// IsProcessing returns true when the status reflects an in-flight stage.
func (i Item) IsProcessing() bool {
	return IsProcessingStatus(i.Status)
}

// IsTerminal returns true when the item has left the pipeline.
func (i Item) IsTerminal() bool {
	return IsTerminalStatus(i.Status)
}

// IsProcessingStatus reports whether a status reflects an in-flight stage.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// IsTerminalStatus reports whether a status is terminal. Manual retries can
// still re-admit failed_permanent items.
func IsTerminalStatus(status Status) bool {
	_, ok := terminalStatuses[status]
	return ok
}

// SetProgress updates all three progress fields together.
func (i *Item) SetProgress(stage, message string, percent float64) {
	i.ProgressStage = stage
	i.ProgressMessage = message
	i.ProgressPercent = percent
}

// SetFailed marks the item's in-memory fields for a permanent failure.
// Clears heartbeat and resets progress. The status row itself moves through
// Store.TransitionDetailed so history stays consistent.
func (i *Item) SetFailed(message string) {
	i.ErrorMessage = message
	i.ProgressPercent = 0
	i.ProgressMessage = message
	i.ProgressStage = "Failed"
	i.LastHeartbeat = nil
}

// IsLive reports whether a task still occupies the per-item live slot.
func (t Task) IsLive() bool {
	return t.Status == TaskPending || t.Status == TaskActive
}
