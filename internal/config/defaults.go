package config

const (
	defaultDataDir                  = "~/.local/share/folio"
	defaultStagingDir               = "~/.local/share/folio/staging"
	defaultLibraryDir               = "~/library"
	defaultLogDir                   = "~/.local/share/folio/logs"
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
	defaultLogRetentionDays         = 60
	defaultWorkers                  = 4
	defaultQueuePollInterval        = 1
	defaultErrorRetryInterval       = 5
	defaultMaxActiveTasks           = 4
	defaultMaxRetries               = 3
	defaultRetryBackoffBase         = 30
	defaultRetryBackoffCap          = 300
	defaultHeartbeatInterval        = 15
	defaultHeartbeatTimeout         = 120
	defaultStaleResetMinutes        = 30
	defaultStageTimeout             = 1800
	defaultQuotaCacheTTLMinutes     = 5
	defaultSourceRequestTimeout     = 30
	defaultMirrorRequestTimeout     = 60
	defaultMirrorDownloadTimeout    = 900
	defaultMirrorMaxCandidates      = 50
	defaultShelfRequestTimeout      = 120
	defaultNotifyRequestTimeout     = 10
	defaultNotifyDedupWindow        = 600
	defaultTaskCleanupCron          = "0 * * * *"
	defaultStagingCleanupCron       = "30 3 * * *"
	defaultLogCleanupCron           = "0 4 * * *"
	defaultStagingMaxAgeHours       = 48
	defaultTaskDoneRetentionHours   = 2
	defaultTaskFailedRetentionHours = 24
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			StagingDir: defaultStagingDir,
			LibraryDir: defaultLibraryDir,
			LogDir:     defaultLogDir,
		},
		Pipeline: Pipeline{
			Workers:            defaultWorkers,
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			MaxActiveTasks:     defaultMaxActiveTasks,
			MaxRetries:         defaultMaxRetries,
			RetryBackoffBase:   defaultRetryBackoffBase,
			RetryBackoffCap:    defaultRetryBackoffCap,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
			StaleResetMinutes:  defaultStaleResetMinutes,
			StageTimeout:       defaultStageTimeout,
		},
		Quota: Quota{
			CacheTTLMinutes: defaultQuotaCacheTTLMinutes,
		},
		Source: Source{
			RequestTimeout: defaultSourceRequestTimeout,
		},
		Mirror: Mirror{
			RequestTimeout:     defaultMirrorRequestTimeout,
			DownloadTimeout:    defaultMirrorDownloadTimeout,
			PreferredFormats:   []string{"epub", "pdf"},
			PreferredLanguages: []string{"en"},
			MaxCandidates:      defaultMirrorMaxCandidates,
		},
		Shelf: Shelf{
			RequestTimeout: defaultShelfRequestTimeout,
		},
		Notifications: Notifications{
			RequestTimeout:     defaultNotifyRequestTimeout,
			ItemCompleted:      true,
			ItemFailed:         true,
			NoResults:          true,
			Quota:              true,
			Runs:               true,
			DedupWindowSeconds: defaultNotifyDedupWindow,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Maintenance: Maintenance{
			TaskCleanupCron:          defaultTaskCleanupCron,
			StagingCleanupCron:       defaultStagingCleanupCron,
			LogCleanupCron:           defaultLogCleanupCron,
			StagingMaxAgeHours:       defaultStagingMaxAgeHours,
			TaskDoneRetentionHours:   defaultTaskDoneRetentionHours,
			TaskFailedRetentionHours: defaultTaskFailedRetentionHours,
		},
	}
}
