// Package syncer schedules and runs per-tenant data sync jobs: GA4 daily pulls,
// n8n webhook reconciliation and retention cleanup.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bizpulse/internal/domain"
	"bizpulse/internal/events"
	"bizpulse/internal/lease"
	"bizpulse/internal/metrics"
	"bizpulse/internal/models"
	"bizpulse/internal/schedule"
	"bizpulse/internal/worker"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

var (
	ErrConfigNotFound      = errors.New("sync config not found")
	ErrConfigExists        = errors.New("sync config already exists")
	ErrInvalidConfig       = errors.New("invalid sync config")
	ErrJobNotFound         = errors.New("sync job not found")
	ErrJobNotCancellable   = errors.New("only pending sync jobs can be cancelled")
	ErrUnsupportedJobType  = errors.New("unsupported job type")
	ErrNoActiveIntegration = errors.New("no active integration")
	ErrSyncInProgress      = errors.New("sync already in progress")

	errRetryNotDue    = errors.New("retry no longer due")
	errJobInterrupted = errors.New("job interrupted while running")
)

// Options are process-wide knobs of the service.
type Options struct {
	JobTimeout         time.Duration
	RetrySweepInterval time.Duration
	RetrySweepBatch    int
	LeaseTTL           time.Duration
	RetentionDays      int
}

func (o *Options) applyDefaults() {
	if o.JobTimeout <= 0 {
		o.JobTimeout = 10 * time.Minute
	}
	if o.RetrySweepBatch <= 0 {
		o.RetrySweepBatch = 50
	}
	if o.LeaseTTL <= 0 {
		o.LeaseTTL = 15 * time.Minute
	}
	if o.RetentionDays <= 0 {
		o.RetentionDays = models.DefaultRetentionDays
	}
}

// Deps are the collaborators of DataSyncService. GA4 and Alerts may be nil.
type Deps struct {
	Store     domain.Store
	Webhooks  domain.WebhookEventStore
	Processor domain.WebhookProcessor
	GA4       domain.GA4Client
	Alerts    domain.AlertSink
	Leases    lease.Store
	Scheduler schedule.Scheduler
	Events    *events.EventBus
	Logger    *zerolog.Logger
}

type executor func(ctx context.Context, job *models.SyncJob) error

// DataSyncService owns the cron registry of every tenant and runs the sync executors.
type DataSyncService struct {
	store     domain.Store
	webhooks  domain.WebhookEventStore
	processor domain.WebhookProcessor
	ga4       domain.GA4Client
	alerts    domain.AlertSink
	leases    lease.Store
	scheduler schedule.Scheduler
	bus       *events.EventBus
	logger    zerolog.Logger
	opts      Options

	registry *schedule.Registry
	sweeper  *worker.RetrySweeper
	now      func() time.Time

	mu          sync.Mutex
	initialized bool
	sweepHandle schedule.Handle
	inflight    sync.WaitGroup

	// id задач, выполняющихся в этом процессе
	running sync.Map
}

func New(deps Deps, opts Options) *DataSyncService {
	opts.applyDefaults()

	l := zerolog.Nop()
	if deps.Logger != nil {
		l = deps.Logger.With().Str("component", "syncer").Logger()
	}
	leases := deps.Leases
	if leases == nil {
		leases = lease.NewMemoryStore()
	}

	s := &DataSyncService{
		store:     deps.Store,
		webhooks:  deps.Webhooks,
		processor: deps.Processor,
		ga4:       deps.GA4,
		alerts:    deps.Alerts,
		leases:    leases,
		scheduler: deps.Scheduler,
		bus:       deps.Events,
		logger:    l,
		opts:      opts,
		registry:  schedule.NewRegistry(),
		now:       time.Now,
	}
	s.sweeper = worker.NewRetrySweeper(deps.Store, s.retryJob, opts.RetrySweepBatch, &s.logger)
	s.sweeper.SetClock(func() time.Time { return s.now() })
	return s
}

// Initialize registers cron triggers of every stored tenant config and the retry sweeper.
// Calling it again while initialized is a no-op. A failure to load configs is returned.
func (s *DataSyncService) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}

	configs, err := s.store.ListSyncConfigs(ctx)
	if err != nil {
		return fmt.Errorf("load sync configs: %w", err)
	}

	if err := s.recoverInterrupted(ctx); err != nil {
		s.logger.Error().Err(err).Msg("failed to recover interrupted sync jobs")
	}

	for _, cfg := range configs {
		if err := s.StartCronJobs(cfg); err != nil {
			s.logger.Error().Err(err).Str("tenant_id", cfg.BusinessEntityID).Msg("failed to register cron jobs")
		}
	}

	if s.opts.RetrySweepInterval > 0 {
		expr := fmt.Sprintf("@every %s", s.opts.RetrySweepInterval)
		h, err := s.scheduler.Schedule(expr, func() { s.RetryDueJobs(context.Background()) })
		if err != nil {
			s.registry.StopAll()
			return fmt.Errorf("register retry sweeper: %w", err)
		}
		s.sweepHandle = h
	}

	s.initialized = true
	metrics.SetCronRegistrations(s.registry.Len())
	s.logger.Info().
		Int("tenants", len(configs)).
		Int("cron_jobs", s.registry.Len()).
		Msg("sync service initialized")
	return nil
}

// recoverInterrupted routes jobs left running by a previous process through the
// failure handler, so they get a retry or a terminal status.
func (s *DataSyncService) recoverInterrupted(ctx context.Context) error {
	var stale []*models.SyncJob
	filter := models.SyncJobFilter{Status: models.JobStatusRunning, Limit: models.MaxJobsPageSize}
	for {
		page, total, err := s.store.ListSyncJobs(ctx, filter)
		if err != nil {
			return fmt.Errorf("list running jobs: %w", err)
		}
		stale = append(stale, page...)
		filter.Offset += len(page)
		if len(page) == 0 || filter.Offset >= total {
			break
		}
	}

	bookCtx := context.WithoutCancel(ctx)
	recovered := 0
	for _, job := range stale {
		if _, ok := s.running.Load(job.ID); ok {
			continue
		}
		if s.handleFailure(bookCtx, job.ID, errJobInterrupted) != nil {
			recovered++
		}
	}
	if recovered > 0 {
		s.logger.Warn().Int("jobs", recovered).Msg("interrupted sync jobs recovered")
	}
	return nil
}

// Initialized reports whether Initialize has run since the last Shutdown.
func (s *DataSyncService) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Shutdown stops every cron trigger and waits for running jobs until ctx is done.
// It is safe to call more than once.
func (s *DataSyncService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	stopped := s.registry.StopAll()
	if s.sweepHandle != nil {
		s.sweepHandle.Stop()
		s.sweepHandle = nil
	}
	s.initialized = false
	s.mu.Unlock()

	metrics.SetCronRegistrations(0)
	s.logger.Info().Int("cron_jobs", stopped).Msg("cron jobs stopped")

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for running sync jobs: %w", ctx.Err())
	}
}

// StartCronJobs (re)registers the cron trigger of every enabled family of cfg.
// A family that is disabled loses its trigger.
func (s *DataSyncService) StartCronJobs(cfg *models.SyncConfig) error {
	var result *multierror.Error
	for _, family := range models.SyncFamilies {
		sched, _ := cfg.ScheduleFor(family)
		key := schedule.Key(cfg.BusinessEntityID, family)

		s.registry.Remove(key)
		if !sched.Enabled {
			continue
		}

		tenantID, fam := cfg.BusinessEntityID, family
		h, err := s.scheduler.Schedule(sched.Schedule, func() { s.fire(tenantID, fam) })
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", family, err))
			continue
		}
		s.registry.Replace(key, h)

		s.logger.Info().
			Str("tenant_id", tenantID).
			Str("job_type", family).
			Str("cron", sched.Schedule).
			Msg("cron job registered")
		_ = s.bus.PublishJSON(events.EventCronRegistered, events.CronEventPayload{
			BusinessEntityID: tenantID,
			Family:           family,
			Schedule:         sched.Schedule,
		})
	}
	metrics.SetCronRegistrations(s.registry.Len())
	return result.ErrorOrNil()
}

// StopCronJobs removes every cron trigger of a tenant.
func (s *DataSyncService) StopCronJobs(tenantID string) int {
	n := s.registry.StopPrefix(tenantID)
	metrics.SetCronRegistrations(s.registry.Len())
	if n > 0 {
		s.logger.Info().Str("tenant_id", tenantID).Int("cron_jobs", n).Msg("cron jobs stopped")
	}
	return n
}

// CronJobCount returns the number of live cron triggers of a tenant.
func (s *DataSyncService) CronJobCount(tenantID string) int {
	return s.registry.Count(tenantID)
}

// RetryDueJobs re-runs pending jobs whose backoff has elapsed.
func (s *DataSyncService) RetryDueJobs(ctx context.Context) int {
	return s.sweeper.Sweep(ctx)
}

func (s *DataSyncService) fire(tenantID, family string) {
	job, err := s.execute(context.Background(), tenantID, family, models.TriggerCron, nil)
	switch {
	case errors.Is(err, ErrSyncInProgress):
		s.logger.Info().Str("tenant_id", tenantID).Str("job_type", family).Msg("previous run still active, cron fire skipped")
	case err != nil && job == nil:
		s.logger.Error().Err(err).Str("tenant_id", tenantID).Str("job_type", family).Msg("cron sync could not start")
	}
}

func (s *DataSyncService) retryJob(ctx context.Context, job *models.SyncJob) {
	_, err := s.execute(ctx, job.BusinessEntityID, job.JobType, models.TriggerRetry, job)
	switch {
	case errors.Is(err, ErrSyncInProgress):
		s.logger.Info().Str("job_id", job.ID).Str("job_type", job.JobType).Msg("family busy, retry postponed")
	case errors.Is(err, errRetryNotDue):
		s.logger.Info().Err(err).Str("job_id", job.ID).Str("job_type", job.JobType).Msg("retry skipped")
	}
}

func (s *DataSyncService) executorFor(family string) (executor, bool) {
	switch family {
	case models.JobTypeGA4Daily:
		return s.syncGA4, true
	case models.JobTypeN8nRealtime:
		return s.syncN8n, true
	case models.JobTypeCleanup:
		return s.cleanup, true
	default:
		return nil, false
	}
}

func (s *DataSyncService) publish(eventType string, job *models.SyncJob) {
	payload := events.SyncJobEventPayload{
		JobID:            job.ID,
		BusinessEntityID: job.BusinessEntityID,
		JobType:          job.JobType,
		Status:           job.Status,
		Trigger:          job.Trigger(),
		RetryCount:       job.RetryCount,
		DurationMs:       job.Duration,
		NextRetryAt:      job.NextRetryAt,
	}
	if job.ErrorMessage != nil {
		payload.Error = *job.ErrorMessage
	}
	if job.ErrorCode != nil {
		payload.ErrorCode = *job.ErrorCode
	}
	if err := s.bus.PublishJSON(eventType, payload); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Str("job_id", job.ID).Msg("event handler failed")
	}
}
