package syncer

import (
	"context"
	"errors"
	"time"

	"bizpulse/internal/events"
	"bizpulse/internal/metrics"
	"bizpulse/internal/models"
	"bizpulse/internal/worker"
)

// handleFailure records a failed attempt: a retry with backoff while the budget lasts,
// a terminal failure (and optional alert) afterwards. When the job or its tenant config
// cannot be loaded nothing is changed and nil is returned.
func (s *DataSyncService) handleFailure(ctx context.Context, jobID string, cause error) *models.SyncJob {
	job, err := s.store.GetSyncJob(ctx, jobID)
	if err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("failure handler: job not found, giving up")
		return nil
	}
	cfg, err := s.store.GetSyncConfig(ctx, job.BusinessEntityID)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("job_id", jobID).
			Str("tenant_id", job.BusinessEntityID).
			Msg("failure handler: sync config not found, giving up")
		return nil
	}

	now := s.now().UTC()
	msg := cause.Error()
	decision := worker.PolicyFromConfig(cfg.RetryConfig).Decide(job.RetryCount)

	log := s.logger.With().
		Str("tenant_id", job.BusinessEntityID).
		Str("job_id", job.ID).
		Str("job_type", job.JobType).
		Logger()

	job.ErrorMessage = &msg
	job.MaxRetries = cfg.RetryConfig.MaxRetries

	if decision.Retry {
		code := errorCode(cause)
		next := now.Add(decision.Delay)
		job.Status = models.JobStatusPending
		job.RetryCount = decision.Attempt
		job.NextRetryAt = &next
		job.ErrorCode = &code
		if err := s.store.UpdateSyncJob(ctx, job); err != nil {
			log.Error().Err(err).Msg("failed to schedule retry")
			return job
		}

		metrics.IncRetry(job.JobType)
		s.publish(events.EventSyncJobRetryScheduled, job)
		log.Info().
			Int("retry_count", job.RetryCount).
			Int64("delay_ms", decision.Delay.Milliseconds()).
			Time("next_retry_at", next).
			Msg("sync job retry scheduled")
		return job
	}

	code := models.ErrorCodeMaxRetriesExceeded
	job.Status = models.JobStatusFailed
	job.EndTime = &now
	job.NextRetryAt = nil
	job.ErrorCode = &code
	if err := s.store.UpdateSyncJob(ctx, job); err != nil {
		log.Error().Err(err).Msg("failed to mark job failed")
		return job
	}

	metrics.ObserveJob(job.JobType, models.JobStatusFailed, now.Sub(job.StartTime))
	s.publish(events.EventSyncJobFailed, job)
	log.Error().Int("retry_count", job.RetryCount).Str("error", msg).Msg("sync job failed permanently")

	if cfg.Alerting.Enabled {
		s.sendAlert(ctx, job, cfg, msg, now)
	}
	return job
}

func (s *DataSyncService) sendAlert(ctx context.Context, job *models.SyncJob, cfg *models.SyncConfig, msg string, at time.Time) {
	if s.alerts == nil {
		s.logger.Warn().Str("job_id", job.ID).Msg("alerting enabled but no alert sink configured")
		return
	}
	alert := models.SyncAlert{
		BusinessEntityID: job.BusinessEntityID,
		JobType:          job.JobType,
		Error:            msg,
		RetryCount:       job.RetryCount,
		Timestamp:        at,
		EmailRecipients:  cfg.Alerting.EmailRecipients,
		SlackChannel:     cfg.Alerting.SlackChannel,
	}
	if err := s.alerts.SendAlert(ctx, alert); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to send sync alert")
	}
}

func errorCode(err error) string {
	if errors.Is(err, ErrNoActiveIntegration) {
		return models.ErrorCodeNoIntegration
	}
	return models.ErrorCodeSyncFailed
}

// TriggerManualSync runs a family executor synchronously for a tenant.
// Unsupported job types and busy families are rejected without creating a job.
func (s *DataSyncService) TriggerManualSync(ctx context.Context, tenantID, jobType string) models.ManualSyncResult {
	if !models.IsSyncFamily(jobType) {
		return models.ManualSyncResult{Message: "unsupported job type: " + jobType}
	}

	job, err := s.execute(ctx, tenantID, jobType, models.TriggerManual, nil)
	switch {
	case errors.Is(err, ErrSyncInProgress):
		return models.ManualSyncResult{Message: ErrSyncInProgress.Error()}
	case job == nil:
		s.logger.Error().Err(err).Str("tenant_id", tenantID).Str("job_type", jobType).Msg("manual sync could not start")
		return models.ManualSyncResult{Message: "failed to start sync: " + err.Error()}
	case err != nil:
		return models.ManualSyncResult{
			SyncJobID: job.ID,
			Message:   manualFailureMessage(job, err),
		}
	default:
		return models.ManualSyncResult{
			Success:   true,
			SyncJobID: job.ID,
			Message:   jobType + " sync completed",
		}
	}
}

func manualFailureMessage(job *models.SyncJob, err error) string {
	switch job.Status {
	case models.JobStatusPending:
		return "sync failed, retry scheduled: " + err.Error()
	case models.JobStatusFailed:
		return "sync failed permanently: " + err.Error()
	default:
		return "sync failed: " + err.Error()
	}
}
