package models

import "time"

const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

// SyncJobStats aggregates job outcomes for a tenant.
type SyncJobStats struct {
	TotalJobs       int        `json:"total_jobs"`
	CompletedJobs   int        `json:"completed_jobs"`
	FailedJobs      int        `json:"failed_jobs"`
	RunningJobs     int        `json:"running_jobs"`
	PendingJobs     int        `json:"pending_jobs"`
	AverageDuration float64    `json:"average_duration"` // ms
	SuccessRate     float64    `json:"success_rate"`
	LastSyncAt      *time.Time `json:"last_sync_at,omitempty"`
}

// SyncHealth is the advisory health verdict of a tenant's sync setup.
type SyncHealth struct {
	Status           string       `json:"status"`
	Issues           []string     `json:"issues"`
	Stats            SyncJobStats `json:"stats"`
	LiveCronJobs     int          `json:"live_cron_jobs"`
	ExpectedCronJobs int          `json:"expected_cron_jobs"`
	CheckedAt        time.Time    `json:"checked_at"`
}
