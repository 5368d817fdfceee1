package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bizpulse/internal/database"
	"bizpulse/internal/events"
	"bizpulse/internal/ga4"
	"bizpulse/internal/lease"
	"bizpulse/internal/metrics"
	"bizpulse/internal/models"
	"bizpulse/internal/webhook"

	"github.com/google/uuid"
)

// ExecuteGA4DailySync pulls yesterday's GA4 basic metrics for a tenant.
func (s *DataSyncService) ExecuteGA4DailySync(ctx context.Context, tenantID, trigger string) (*models.SyncJob, error) {
	return s.execute(ctx, tenantID, models.JobTypeGA4Daily, trigger, nil)
}

// ExecuteN8nSync replays pending n8n webhook events of a tenant.
func (s *DataSyncService) ExecuteN8nSync(ctx context.Context, tenantID, trigger string) (*models.SyncJob, error) {
	return s.execute(ctx, tenantID, models.JobTypeN8nRealtime, trigger, nil)
}

// ExecuteCleanupSync purges tenant data older than the retention window.
func (s *DataSyncService) ExecuteCleanupSync(ctx context.Context, tenantID, trigger string) (*models.SyncJob, error) {
	return s.execute(ctx, tenantID, models.JobTypeCleanup, trigger, nil)
}

// execute runs one attempt of a family under the (tenant, family) lease.
// A nil existing job creates a new record; otherwise the attempt reuses it.
// The returned job reflects its state after the attempt. The error is the
// cause of a failed attempt, already recorded on the job by the failure handler.
//
// Only the executor body observes ctx cancellation. Job bookkeeping runs on a
// detached context so a disconnected caller cannot leave the job running.
func (s *DataSyncService) execute(ctx context.Context, tenantID, family, trigger string, existing *models.SyncJob) (*models.SyncJob, error) {
	run, ok := s.executorFor(family)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedJobType, family)
	}

	key := lease.Key(tenantID, family)
	owner := uuid.NewString()
	acquired, err := s.leases.Acquire(ctx, key, owner, s.opts.LeaseTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire run lease: %w", err)
	}
	if !acquired {
		return nil, ErrSyncInProgress
	}

	bookCtx := context.WithoutCancel(ctx)

	s.inflight.Add(1)
	defer s.inflight.Done()
	defer func() {
		releaseCtx, cancel := context.WithTimeout(bookCtx, 5*time.Second)
		defer cancel()
		if err := s.leases.Release(releaseCtx, key, owner); err != nil {
			s.logger.Warn().Err(err).Str("lease", key).Msg("failed to release run lease")
		}
	}()

	var job *models.SyncJob
	if existing == nil {
		job, err = s.createJob(bookCtx, tenantID, family, trigger)
		if err != nil {
			return nil, err
		}
		if err := s.markRunning(bookCtx, job, ""); err != nil {
			return job, err
		}
	} else {
		job, err = s.claimRetry(bookCtx, existing.ID, trigger)
		if err != nil {
			return job, err
		}
	}
	defer s.running.Delete(job.ID)
	s.publish(events.EventSyncJobStarted, job)

	log := s.logger.With().
		Str("tenant_id", tenantID).
		Str("job_id", job.ID).
		Str("job_type", family).
		Str("trigger", trigger).
		Int("retry_count", job.RetryCount).
		Logger()
	log.Info().Msg("sync job started")

	runCtx, cancel := context.WithTimeout(ctx, s.opts.JobTimeout)
	runErr := run(runCtx, job)
	cancel()

	if runErr != nil {
		log.Warn().Err(runErr).Msg("sync job failed")
		if updated := s.handleFailure(bookCtx, job.ID, runErr); updated != nil {
			job = updated
		}
		return job, runErr
	}

	end := s.now().UTC()
	duration := end.Sub(job.StartTime).Milliseconds()
	job.Status = models.JobStatusCompleted
	job.EndTime = &end
	job.Duration = &duration
	job.ErrorMessage = nil
	job.ErrorCode = nil
	if err := s.store.UpdateSyncJob(bookCtx, job); err != nil {
		return job, fmt.Errorf("mark job completed: %w", err)
	}

	metrics.ObserveJob(family, models.JobStatusCompleted, time.Duration(duration)*time.Millisecond)
	s.publish(events.EventSyncJobCompleted, job)
	log.Info().Int64("duration_ms", duration).Msg("sync job completed")
	return job, nil
}

// markRunning switches the job to running. A non-empty fromStatus makes the
// write conditional on the stored status.
func (s *DataSyncService) markRunning(ctx context.Context, job *models.SyncJob, fromStatus string) error {
	job.Status = models.JobStatusRunning
	job.StartTime = s.now().UTC()
	job.EndTime = nil
	job.Duration = nil
	job.NextRetryAt = nil

	var err error
	if fromStatus == "" {
		err = s.store.UpdateSyncJob(ctx, job)
	} else {
		err = s.store.UpdateSyncJobFrom(ctx, job, fromStatus)
	}
	if err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}
	s.running.Store(job.ID, struct{}{})
	return nil
}

// claimRetry re-reads a due job under the lease and moves it to running only if
// it is still pending with an elapsed nextRetryAt. Otherwise errRetryNotDue is returned.
func (s *DataSyncService) claimRetry(ctx context.Context, jobID, trigger string) (*models.SyncJob, error) {
	job, err := s.store.GetSyncJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("reload retry job: %w", err)
	}
	if job.Status != models.JobStatusPending || job.NextRetryAt == nil || job.NextRetryAt.After(s.now().UTC()) {
		return job, fmt.Errorf("%w: job %s is %s", errRetryNotDue, job.ID, job.Status)
	}

	if job.Metadata == nil {
		job.Metadata = map[string]any{}
	}
	job.Metadata["lastTrigger"] = trigger
	if err := s.markRunning(ctx, job, models.JobStatusPending); err != nil {
		if errors.Is(err, database.ErrStatusChanged) {
			return job, fmt.Errorf("%w: %v", errRetryNotDue, err)
		}
		return job, err
	}
	return job, nil
}

func (s *DataSyncService) createJob(ctx context.Context, tenantID, family, trigger string) (*models.SyncJob, error) {
	maxRetries := models.DefaultMaxRetries
	if cfg, err := s.store.GetSyncConfig(ctx, tenantID); err == nil {
		maxRetries = cfg.RetryConfig.MaxRetries
	}

	job := &models.SyncJob{
		BusinessEntityID: tenantID,
		JobType:          family,
		Status:           models.JobStatusPending,
		StartTime:        s.now().UTC(),
		MaxRetries:       maxRetries,
		Metadata:         map[string]any{"trigger": trigger},
	}
	if trigger == models.TriggerManual {
		job.Metadata["manualTrigger"] = true
	}
	if err := s.store.CreateSyncJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create sync job: %w", err)
	}
	return job, nil
}

func (s *DataSyncService) activeIntegration(ctx context.Context, tenantID, integrationType string) (*models.Integration, error) {
	in, err := s.store.GetActiveIntegration(ctx, tenantID, integrationType)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNoActiveIntegration, integrationType)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s integration: %w", integrationType, err)
	}
	return in, nil
}

var ga4Dimensions = []struct {
	name  string
	value func(models.GA4DailyMetrics) *float64
}{
	{"sessions", func(m models.GA4DailyMetrics) *float64 { return m.Sessions }},
	{"users", func(m models.GA4DailyMetrics) *float64 { return m.Users }},
	{"pageviews", func(m models.GA4DailyMetrics) *float64 { return m.Pageviews }},
}

func (s *DataSyncService) syncGA4(ctx context.Context, job *models.SyncJob) error {
	in, err := s.activeIntegration(ctx, job.BusinessEntityID, models.IntegrationGoogleAnalytics)
	if err != nil {
		return err
	}
	if s.ga4 == nil {
		return errors.New("ga4 client is not configured")
	}

	day := ga4.Yesterday(s.now())
	rows, err := s.ga4.GetBasicMetrics(ctx, in.PropertyID, day, day)
	if err != nil {
		return fmt.Errorf("fetch ga4 metrics: %w", err)
	}

	written := 0
	for _, row := range rows {
		date, err := ga4.ParseDate(row.Date)
		if err != nil {
			return fmt.Errorf("ga4 row date: %w", err)
		}
		for _, dim := range ga4Dimensions {
			v := dim.value(row)
			if v == nil {
				continue
			}
			m := &models.Metric{
				BusinessEntityID: job.BusinessEntityID,
				MetricType:       "traffic",
				MetricName:       dim.name,
				MetricValue:      *v,
				MetricUnit:       "count",
				Source:           models.MetricSourceGoogleAnalytics,
				Date:             date,
				Timezone:         "UTC",
				Metadata: map[string]any{
					"propertyId": in.PropertyID,
					"syncJobId":  job.ID,
				},
				Tags: []string{"ga4", "daily"},
			}
			if err := s.store.CreateMetric(ctx, m); err != nil {
				return fmt.Errorf("write %s metric: %w", dim.name, err)
			}
			written++
		}
	}

	if err := s.store.TouchIntegrationSync(ctx, in.ID, s.now().UTC()); err != nil {
		return fmt.Errorf("update integration last sync: %w", err)
	}

	job.Metadata["integrationId"] = in.ID
	job.Metadata["date"] = day
	job.Metadata["rows"] = len(rows)
	job.Metadata["metricsWritten"] = written
	return nil
}

// syncN8n replays stored pending events through the live webhook path.
// Individual event failures are recorded on the event and counted, they do not fail the job.
func (s *DataSyncService) syncN8n(ctx context.Context, job *models.SyncJob) error {
	in, err := s.activeIntegration(ctx, job.BusinessEntityID, models.IntegrationN8n)
	if err != nil {
		return err
	}

	pending, err := s.webhooks.ListPendingWebhookEvents(ctx, in.ID)
	if err != nil {
		return fmt.Errorf("load pending webhook events: %w", err)
	}

	processed, failed := 0, 0
	for _, ev := range pending {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("n8n replay interrupted after %d events: %w", processed+failed, err)
		}

		res := s.processor.ProcessWebhookEvent(ctx, in.ID, webhook.PayloadFromEvent(ev))
		if res.Success {
			processed++
			continue
		}

		failed++
		msg := strings.Join(res.Errors, "; ")
		s.logger.Warn().
			Str("tenant_id", job.BusinessEntityID).
			Str("event_id", ev.ID).
			Str("execution_id", ev.ExecutionID).
			Str("errors", msg).
			Msg("webhook event replay failed")
		if res.EventID == "" {
			// событие не прошло валидацию и не было перезаписано процессором
			if err := s.webhooks.MarkWebhookEvent(ctx, ev.ID, models.ProcessingFailed, &msg); err != nil {
				return fmt.Errorf("mark webhook event failed: %w", err)
			}
		}
	}

	if err := s.store.TouchIntegrationSync(ctx, in.ID, s.now().UTC()); err != nil {
		return fmt.Errorf("update integration last sync: %w", err)
	}

	job.Metadata["integrationId"] = in.ID
	job.Metadata["eventsFound"] = len(pending)
	job.Metadata["eventsProcessed"] = processed
	job.Metadata["eventsFailed"] = failed
	return nil
}

func (s *DataSyncService) cleanup(ctx context.Context, job *models.SyncJob) error {
	res, err := s.store.CleanupOldData(ctx, job.BusinessEntityID, s.opts.RetentionDays)
	if err != nil {
		return fmt.Errorf("cleanup old data: %w", err)
	}
	job.Metadata["retentionDays"] = s.opts.RetentionDays
	job.Metadata["metricsDeleted"] = res.MetricsDeleted
	job.Metadata["webhookEventsDeleted"] = res.WebhookEventsDeleted
	job.Metadata["syncJobsDeleted"] = res.SyncJobsDeleted
	return nil
}
