package models

const (
	JobTypeGA4Daily    = "ga4_daily"
	JobTypeN8nRealtime = "n8n_realtime"
	JobTypeManual      = "manual"
	JobTypeCleanup     = "cleanup"
)

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

const (
	TriggerCron   = "cron"
	TriggerManual = "manual"
	TriggerRetry  = "retry"
)

const (
	IntegrationGoogleAnalytics = "google_analytics"
	IntegrationN8n             = "n8n"

	IntegrationStatusActive   = "active"
	IntegrationStatusInactive = "inactive"
)

const (
	ProcessingPending   = "pending"
	ProcessingProcessed = "processed"
	ProcessingFailed    = "failed"
)

const (
	// ErrorCodeMaxRetriesExceeded marks a job that exhausted its retry budget.
	ErrorCodeMaxRetriesExceeded = "MAX_RETRIES_EXCEEDED"
	ErrorCodeSyncFailed         = "SYNC_FAILED"
	ErrorCodeNoIntegration      = "NO_ACTIVE_INTEGRATION"
)

const (
	// DefaultRetentionDays окно хранения данных для cleanup
	DefaultRetentionDays = 90

	DefaultGA4Schedule     = "0 2 * * *"
	DefaultN8nSchedule     = "*/5 * * * *"
	DefaultCleanupSchedule = "0 3 * * 0"

	DefaultMaxRetries        = 3
	DefaultInitialDelayMs    = 60000
	DefaultMaxDelayMs        = 3600000
	DefaultBackoffMultiplier = 2

	// MaxHealthyRunningJobs порог одновременно выполняемых задач
	MaxHealthyRunningJobs = 5
	// MinHealthySuccessRate минимальный процент успешных задач
	MinHealthySuccessRate = 90

	DefaultJobsPageSize = 20
	MaxJobsPageSize     = 100
)

// SyncFamilies lists job types that have their own cron schedule.
var SyncFamilies = []string{JobTypeGA4Daily, JobTypeN8nRealtime, JobTypeCleanup}

// IsSyncFamily reports whether jobType is one of the scheduled families.
func IsSyncFamily(jobType string) bool {
	for _, f := range SyncFamilies {
		if f == jobType {
			return true
		}
	}
	return false
}
