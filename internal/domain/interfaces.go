package domain

import (
	"context"
	"time"

	"bizpulse/internal/models"
)

type SyncJobStore interface {
	CreateSyncJob(ctx context.Context, job *models.SyncJob) error
	UpdateSyncJob(ctx context.Context, job *models.SyncJob) error
	UpdateSyncJobFrom(ctx context.Context, job *models.SyncJob, fromStatus string) error
	GetSyncJob(ctx context.Context, id string) (*models.SyncJob, error)
	ListSyncJobs(ctx context.Context, filter models.SyncJobFilter) ([]*models.SyncJob, int, error)
	GetDueRetryJobs(ctx context.Context, now time.Time, limit int) ([]*models.SyncJob, error)
	GetSyncJobStats(ctx context.Context, tenantID string) (*models.SyncJobStats, error)
}

type SyncConfigStore interface {
	SaveSyncConfig(ctx context.Context, cfg *models.SyncConfig) error
	GetSyncConfig(ctx context.Context, tenantID string) (*models.SyncConfig, error)
	ListSyncConfigs(ctx context.Context) ([]*models.SyncConfig, error)
	DeleteSyncConfig(ctx context.Context, tenantID string) error
}

type IntegrationStore interface {
	GetIntegration(ctx context.Context, id string) (*models.Integration, error)
	GetActiveIntegration(ctx context.Context, tenantID, integrationType string) (*models.Integration, error)
	TouchIntegrationSync(ctx context.Context, id string, at time.Time) error
}

type WebhookEventStore interface {
	UpsertWebhookEvent(ctx context.Context, ev *models.WebhookEvent) (*models.WebhookEvent, error)
	ListPendingWebhookEvents(ctx context.Context, integrationID string) ([]*models.WebhookEvent, error)
	MarkWebhookEvent(ctx context.Context, id, status string, processingError *string) error
}

// MetricWriter stores typed metric data points.
type MetricWriter interface {
	CreateMetric(ctx context.Context, m *models.Metric) error
}

// RetentionPurger deletes tenant data older than the retention window.
type RetentionPurger interface {
	CleanupOldData(ctx context.Context, tenantID string, retentionDays int) (models.CleanupResult, error)
}

// Store is everything the sync service persists.
type Store interface {
	SyncJobStore
	SyncConfigStore
	IntegrationStore
	MetricWriter
	RetentionPurger
}

// GA4Client pulls daily basic metrics. Dates are YYYY-MM-DD.
type GA4Client interface {
	GetBasicMetrics(ctx context.Context, propertyID, startDate, endDate string) ([]models.GA4DailyMetrics, error)
}

// WebhookProcessor validates and applies one n8n webhook payload.
type WebhookProcessor interface {
	ProcessWebhookEvent(ctx context.Context, integrationID string, payload models.WebhookPayload) models.ProcessResult
}

// AlertSink delivers terminal failure alerts.
type AlertSink interface {
	SendAlert(ctx context.Context, alert models.SyncAlert) error
}
