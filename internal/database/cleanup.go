package database

import (
	"context"
	"fmt"
	"time"

	"bizpulse/internal/models"
)

// CleanupOldData purges tenant data older than the retention window in one transaction.
// Only processed or failed webhook events and terminal jobs are removed.
func (db *DB) CleanupOldData(ctx context.Context, tenantID string, retentionDays int) (models.CleanupResult, error) {
	var result models.CleanupResult
	if retentionDays <= 0 {
		return result, fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM metrics WHERE business_entity_id = ? AND date < ?`, tenantID, cutoff)
	if err != nil {
		return result, fmt.Errorf("failed to purge metrics: %w", err)
	}
	result.MetricsDeleted, _ = res.RowsAffected()

	res, err = tx.ExecContext(ctx, `DELETE FROM webhook_events
              WHERE integration_id IN (SELECT id FROM integrations WHERE business_entity_id = ?)
              AND processing_status IN (?, ?) AND created_at < ?`,
		tenantID, models.ProcessingProcessed, models.ProcessingFailed, cutoff)
	if err != nil {
		return result, fmt.Errorf("failed to purge webhook events: %w", err)
	}
	result.WebhookEventsDeleted, _ = res.RowsAffected()

	res, err = tx.ExecContext(ctx, `DELETE FROM sync_jobs
              WHERE business_entity_id = ? AND status IN (?, ?, ?) AND created_at < ?`,
		tenantID, models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusCancelled, cutoff)
	if err != nil {
		return result, fmt.Errorf("failed to purge sync jobs: %w", err)
	}
	result.SyncJobsDeleted, _ = res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return models.CleanupResult{}, fmt.Errorf("failed to commit cleanup: %w", err)
	}

	db.logger.Info().
		Str("tenant_id", tenantID).
		Time("cutoff", cutoff).
		Int64("metrics", result.MetricsDeleted).
		Int64("webhook_events", result.WebhookEventsDeleted).
		Int64("sync_jobs", result.SyncJobsDeleted).
		Msg("retention purge completed")
	return result, nil
}
