package models

import "time"

// SyncJob is one execution attempt of a sync family for a tenant.
type SyncJob struct {
	ID               string         `json:"id"`
	BusinessEntityID string         `json:"business_entity_id"`
	JobType          string         `json:"job_type"`
	Status           string         `json:"status"`
	StartTime        time.Time      `json:"start_time"`
	EndTime          *time.Time     `json:"end_time,omitempty"`
	Duration         *int64         `json:"duration,omitempty"` // ms
	ErrorMessage     *string        `json:"error_message,omitempty"`
	ErrorCode        *string        `json:"error_code,omitempty"`
	RetryCount       int            `json:"retry_count"`
	MaxRetries       int            `json:"max_retries"`
	NextRetryAt      *time.Time     `json:"next_retry_at,omitempty"`
	Metadata         map[string]any `json:"metadata"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// IsTerminal reports whether no further transitions are expected.
func (j *SyncJob) IsTerminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Trigger returns the trigger source recorded in metadata.
func (j *SyncJob) Trigger() string {
	if j.Metadata == nil {
		return ""
	}
	if v, ok := j.Metadata["trigger"].(string); ok {
		return v
	}
	return ""
}

// SyncJobFilter narrows job listings.
type SyncJobFilter struct {
	BusinessEntityID string
	Status           string
	JobType          string
	Limit            int
	Offset           int
}

// Normalize clamps pagination to sane bounds.
func (f *SyncJobFilter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = DefaultJobsPageSize
	}
	if f.Limit > MaxJobsPageSize {
		f.Limit = MaxJobsPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// ManualSyncResult is returned to callers of a manual trigger.
type ManualSyncResult struct {
	Success   bool   `json:"success"`
	SyncJobID string `json:"sync_job_id,omitempty"`
	Message   string `json:"message"`
}

// SyncAlert describes a terminal failure reported to alert sinks.
type SyncAlert struct {
	BusinessEntityID string    `json:"business_entity_id"`
	JobType          string    `json:"job_type"`
	Error            string    `json:"error"`
	RetryCount       int       `json:"retry_count"`
	Timestamp        time.Time `json:"timestamp"`
	EmailRecipients  []string  `json:"email_recipients,omitempty"`
	SlackChannel     string    `json:"slack_channel,omitempty"`
}
