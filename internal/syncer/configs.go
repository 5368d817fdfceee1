package syncer

import (
	"context"
	"errors"
	"fmt"

	"bizpulse/internal/config"
	"bizpulse/internal/database"
	"bizpulse/internal/models"
)

// CreateSyncConfig stores a new tenant config, filling zero fields with defaults.
// Cron triggers are registered right away when the service is initialized.
func (s *DataSyncService) CreateSyncConfig(ctx context.Context, cfg *models.SyncConfig) (*models.SyncConfig, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", ErrInvalidConfig)
	}
	cfg.ApplyDefaults()
	if err := config.ValidateSyncConfig(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	_, err := s.store.GetSyncConfig(ctx, cfg.BusinessEntityID)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: %s", ErrConfigExists, cfg.BusinessEntityID)
	case !errors.Is(err, database.ErrNotFound):
		return nil, err
	}

	cfg.ID = ""
	if err := s.store.SaveSyncConfig(ctx, cfg); err != nil {
		return nil, err
	}

	if err := s.registerIfInitialized(cfg, false); err != nil {
		return cfg, fmt.Errorf("register cron jobs: %w", err)
	}
	s.logger.Info().Str("tenant_id", cfg.BusinessEntityID).Msg("sync config created")
	return cfg, nil
}

func (s *DataSyncService) GetSyncConfig(ctx context.Context, tenantID string) (*models.SyncConfig, error) {
	cfg, err := s.store.GetSyncConfig(ctx, tenantID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, tenantID)
	}
	return cfg, err
}

// UpdateSyncConfig replaces a tenant config and re-registers its cron triggers.
func (s *DataSyncService) UpdateSyncConfig(ctx context.Context, tenantID string, cfg *models.SyncConfig) (*models.SyncConfig, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", ErrInvalidConfig)
	}
	current, err := s.GetSyncConfig(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	cfg.ID = current.ID
	cfg.BusinessEntityID = tenantID
	cfg.CreatedAt = current.CreatedAt
	cfg.ApplyDefaults()
	if err := config.ValidateSyncConfig(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := s.store.SaveSyncConfig(ctx, cfg); err != nil {
		return nil, err
	}

	if err := s.registerIfInitialized(cfg, true); err != nil {
		return cfg, fmt.Errorf("register cron jobs: %w", err)
	}
	s.logger.Info().Str("tenant_id", tenantID).Strs("families", cfg.EnabledFamilies()).Msg("sync config updated")
	return cfg, nil
}

// registerIfInitialized holds the service lock across the initialized check and
// the registration, so a concurrent Shutdown cannot leave triggers behind.
func (s *DataSyncService) registerIfInitialized(cfg *models.SyncConfig, restart bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return nil
	}
	if restart {
		s.StopCronJobs(cfg.BusinessEntityID)
	}
	return s.StartCronJobs(cfg)
}

// DeleteSyncConfig stops the tenant's cron triggers and removes its config.
func (s *DataSyncService) DeleteSyncConfig(ctx context.Context, tenantID string) error {
	s.StopCronJobs(tenantID)
	err := s.store.DeleteSyncConfig(ctx, tenantID)
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrConfigNotFound, tenantID)
	}
	if err != nil {
		return err
	}
	s.logger.Info().Str("tenant_id", tenantID).Msg("sync config deleted")
	return nil
}

// GetSyncJobs returns a page of jobs and the total number of matches.
func (s *DataSyncService) GetSyncJobs(ctx context.Context, filter models.SyncJobFilter) ([]*models.SyncJob, int, error) {
	filter.Normalize()
	return s.store.ListSyncJobs(ctx, filter)
}

func (s *DataSyncService) GetSyncJobByID(ctx context.Context, id string) (*models.SyncJob, error) {
	job, err := s.store.GetSyncJob(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job, err
}

// CancelSyncJob cancels a pending job, including one waiting for a retry.
func (s *DataSyncService) CancelSyncJob(ctx context.Context, id string) (*models.SyncJob, error) {
	job, err := s.GetSyncJobByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusPending {
		return nil, fmt.Errorf("%w: job %s is %s", ErrJobNotCancellable, id, job.Status)
	}

	end := s.now().UTC()
	job.Status = models.JobStatusCancelled
	job.EndTime = &end
	job.NextRetryAt = nil
	err = s.store.UpdateSyncJobFrom(ctx, job, models.JobStatusPending)
	if errors.Is(err, database.ErrStatusChanged) {
		return nil, fmt.Errorf("%w: job %s is no longer pending", ErrJobNotCancellable, id)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("job_id", id).Str("tenant_id", job.BusinessEntityID).Msg("sync job cancelled")
	return job, nil
}
