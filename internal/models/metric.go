package models

import "time"

const (
	MetricSourceGoogleAnalytics = "google_analytics"
	MetricSourceN8n             = "n8n"
)

// Metric is a single typed data point written by sync executors.
type Metric struct {
	ID               string         `json:"id"`
	BusinessEntityID string         `json:"business_entity_id"`
	MetricType       string         `json:"metric_type"`
	MetricName       string         `json:"metric_name"`
	MetricValue      float64        `json:"metric_value"`
	MetricUnit       string         `json:"metric_unit"`
	Source           string         `json:"source"`
	Date             time.Time      `json:"date"`
	Timezone         string         `json:"timezone"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	Tags             []string       `json:"tags,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// GA4DailyMetrics is one row of a GA4 basic metrics report.
type GA4DailyMetrics struct {
	Date      string   `json:"date"`
	Sessions  *float64 `json:"sessions,omitempty"`
	Users     *float64 `json:"users,omitempty"`
	Pageviews *float64 `json:"pageviews,omitempty"`
}

// CleanupResult reports what a retention purge removed.
type CleanupResult struct {
	MetricsDeleted       int64 `json:"metrics_deleted"`
	WebhookEventsDeleted int64 `json:"webhook_events_deleted"`
	SyncJobsDeleted      int64 `json:"sync_jobs_deleted"`
}

// MetricFilter selects metrics for listing.
type MetricFilter struct {
	BusinessEntityID string
	Source           string
	MetricName       string
	From             *time.Time
	To               *time.Time
	Limit            int
}
