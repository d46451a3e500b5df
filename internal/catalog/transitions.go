package catalog

// validTransitions is the authoritative lifecycle graph. Every status write
// goes through CanTransition; edges absent here never reach the database.
// Rollback edges (active back to queued, download statuses back to
// search_complete) exist for retries, crash recovery, and quota parking.
// failed_permanent re-admissions are manual retry paths only.
var validTransitions = map[Status][]Status{
	StatusNew: {
		StatusDetailFetching, StatusDetailComplete, StatusSkippedExists,
		StatusFailedPermanent,
	},
	StatusDetailFetching: {
		StatusDetailComplete, StatusNew, StatusFailedPermanent,
	},
	StatusDetailComplete: {
		StatusSearchQueued, StatusSkippedExists, StatusFailedPermanent,
	},
	StatusSearchQueued: {
		StatusSearchActive, StatusSkippedExists, StatusFailedPermanent,
	},
	StatusSearchActive: {
		StatusSearchComplete, StatusSearchNoResults, StatusSearchQueued,
		StatusSkippedExists, StatusFailedPermanent,
	},
	StatusSearchComplete: {
		StatusDownloadQueued, StatusDownloadActive,
		StatusSearchQuotaExhausted, StatusFailedPermanent,
	},
	StatusSearchQuotaExhausted: {
		StatusDownloadQueued, StatusDownloadActive, StatusFailedPermanent,
	},
	StatusSearchNoResults: {
		StatusSearchQueued, StatusFailedPermanent,
	},
	StatusDownloadQueued: {
		StatusDownloadActive, StatusSearchComplete, StatusFailedPermanent,
	},
	StatusDownloadActive: {
		StatusDownloadComplete, StatusDownloadFailed, StatusDownloadQueued,
		StatusSearchComplete, StatusFailedPermanent,
	},
	StatusDownloadComplete: {
		StatusUploadQueued, StatusCompleted, StatusFailedPermanent,
	},
	StatusDownloadFailed: {
		StatusDownloadQueued, StatusSearchComplete, StatusFailedPermanent,
	},
	StatusUploadQueued: {
		StatusUploadActive, StatusFailedPermanent,
	},
	StatusUploadActive: {
		StatusUploadComplete, StatusUploadFailed, StatusUploadQueued,
		StatusFailedPermanent,
	},
	StatusUploadComplete: {
		StatusCompleted,
	},
	StatusUploadFailed: {
		StatusUploadQueued, StatusFailedPermanent,
	},
	StatusCompleted:     {},
	StatusSkippedExists: {},
	StatusFailedPermanent: {
		StatusNew, StatusSearchQueued, StatusDownloadQueued,
		StatusUploadQueued,
	},
}

// CanTransition reports whether the lifecycle graph allows the edge.
func CanTransition(from, to Status) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// NextStageStatus maps a stage's done status to the next stage's queued
// status. upload_complete maps to completed.
func NextStageStatus(status Status) (Status, bool) {
	switch status {
	case StatusDetailComplete:
		return StatusSearchQueued, true
	case StatusSearchComplete:
		return StatusDownloadQueued, true
	case StatusDownloadComplete:
		return StatusUploadQueued, true
	case StatusUploadComplete:
		return StatusCompleted, true
	default:
		return "", false
	}
}

// QueuedStatusFor returns the status an item waits in before the stage runs.
func QueuedStatusFor(stage Stage) Status {
	switch stage {
	case StageDetail:
		return StatusNew
	case StageSearch:
		return StatusSearchQueued
	case StageDownload:
		return StatusDownloadQueued
	case StageUpload:
		return StatusUploadQueued
	default:
		return ""
	}
}

// ActiveStatusFor returns the status an item holds while the stage runs.
func ActiveStatusFor(stage Stage) Status {
	switch stage {
	case StageDetail:
		return StatusDetailFetching
	case StageSearch:
		return StatusSearchActive
	case StageDownload:
		return StatusDownloadActive
	case StageUpload:
		return StatusUploadActive
	default:
		return ""
	}
}

// DoneStatusFor returns the status an item reaches when the stage succeeds.
func DoneStatusFor(stage Stage) Status {
	switch stage {
	case StageDetail:
		return StatusDetailComplete
	case StageSearch:
		return StatusSearchComplete
	case StageDownload:
		return StatusDownloadComplete
	case StageUpload:
		return StatusUploadComplete
	default:
		return ""
	}
}

// FailureStatusFor returns the stage's dedicated failure status. Detail and
// search have none; their failures roll back to the queued status or
// finalize directly.
func FailureStatusFor(stage Stage) (Status, bool) {
	switch stage {
	case StageDownload:
		return StatusDownloadFailed, true
	case StageUpload:
		return StatusUploadFailed, true
	default:
		return "", false
	}
}

// RetryStatusFor returns the status a retried item rolls back to before the
// stage runs again.
func RetryStatusFor(stage Stage) Status {
	switch stage {
	case StageDetail:
		return StatusNew
	case StageSearch:
		return StatusSearchQueued
	case StageDownload:
		return StatusDownloadQueued
	case StageUpload:
		return StatusUploadQueued
	default:
		return ""
	}
}

// StageForStatus maps a stage-phase status to its owning stage. Terminal
// and park statuses have no owning stage.
func StageForStatus(status Status) (Stage, bool) {
	switch status {
	case StatusNew, StatusDetailFetching, StatusDetailComplete:
		return StageDetail, true
	case StatusSearchQueued, StatusSearchActive, StatusSearchComplete,
		StatusSearchNoResults:
		return StageSearch, true
	case StatusDownloadQueued, StatusDownloadActive, StatusDownloadComplete,
		StatusDownloadFailed:
		return StageDownload, true
	case StatusUploadQueued, StatusUploadActive, StatusUploadComplete,
		StatusUploadFailed:
		return StageUpload, true
	default:
		return "", false
	}
}

type statusTransition struct {
	from Status
	to   Status
}

// crashRecoveryTransitions map every in-flight status back to the start of
// its stage. The failure statuses are included because a crash can land
// between recording the failure and rolling the item back for retry.
// Applied at daemon startup; the active pairs also apply when heartbeats
// expire.
var crashRecoveryTransitions = []statusTransition{
	{from: StatusDetailFetching, to: StatusNew},
	{from: StatusSearchActive, to: StatusSearchQueued},
	{from: StatusDownloadActive, to: StatusDownloadQueued},
	{from: StatusDownloadFailed, to: StatusDownloadQueued},
	{from: StatusUploadActive, to: StatusUploadQueued},
	{from: StatusUploadFailed, to: StatusUploadQueued},
}

// quotaParkTransitions roll download-phase items back to search_complete
// before parking. Order matters: rollbacks run before the park edge.
var quotaParkTransitions = []statusTransition{
	{from: StatusDownloadQueued, to: StatusSearchComplete},
	{from: StatusDownloadActive, to: StatusSearchComplete},
	{from: StatusDownloadFailed, to: StatusSearchComplete},
}

// stageAcceptableStatuses lists the item statuses under which a stage task
// may still dispatch. Includes the prior stage's done status because the
// task row is created before the queued transition commits in some
// recovery paths.
var stageAcceptableStatuses = map[Stage][]Status{
	StageDetail: {StatusNew, StatusDetailFetching},
	StageSearch: {
		StatusDetailComplete, StatusSearchQueued, StatusSearchActive,
	},
	StageDownload: {
		StatusSearchComplete, StatusSearchQuotaExhausted,
		StatusDownloadQueued, StatusDownloadActive,
	},
	StageUpload: {
		StatusDownloadComplete, StatusUploadQueued, StatusUploadActive,
	},
}

// AcceptableStatusesFor returns the item statuses under which a task for
// the stage may dispatch.
func AcceptableStatusesFor(stage Stage) []Status {
	statuses := stageAcceptableStatuses[stage]
	cp := make([]Status, len(statuses))
	copy(cp, statuses)
	return cp
}

// StatusAcceptableForStage reports whether an item in the given status may
// still be processed by the stage.
func StatusAcceptableForStage(status Status, stage Stage) bool {
	for _, allowed := range stageAcceptableStatuses[stage] {
		if allowed == status {
			return true
		}
	}
	return false
}
