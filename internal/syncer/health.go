package syncer

import (
	"context"
	"errors"
	"fmt"

	"bizpulse/internal/database"
	"bizpulse/internal/models"
)

func (s *DataSyncService) GetSyncJobStats(ctx context.Context, tenantID string) (*models.SyncJobStats, error) {
	return s.store.GetSyncJobStats(ctx, tenantID)
}

// GetSyncHealth is advisory: load errors become issues instead of errors.
func (s *DataSyncService) GetSyncHealth(ctx context.Context, tenantID string) *models.SyncHealth {
	health := &models.SyncHealth{
		Status:    models.HealthHealthy,
		Issues:    []string{},
		CheckedAt: s.now().UTC(),
	}

	stats, err := s.store.GetSyncJobStats(ctx, tenantID)
	if err != nil {
		health.Status = models.HealthDegraded
		health.Issues = append(health.Issues, fmt.Sprintf("failed to load job stats: %v", err))
		stats = &models.SyncJobStats{}
	}

	expected := 0
	cfg, err := s.store.GetSyncConfig(ctx, tenantID)
	switch {
	case err == nil:
		expected = len(cfg.EnabledFamilies())
	case !errors.Is(err, database.ErrNotFound):
		health.Status = models.HealthDegraded
		health.Issues = append(health.Issues, fmt.Sprintf("failed to load sync config: %v", err))
	}

	live := s.registry.Count(tenantID)
	status, issues := evaluateHealth(*stats, live, expected)
	if worse(status, health.Status) {
		health.Status = status
	}
	health.Issues = append(health.Issues, issues...)
	health.Stats = *stats
	health.LiveCronJobs = live
	health.ExpectedCronJobs = expected
	return health
}

// evaluateHealth applies the health thresholds to tenant stats and cron counts.
func evaluateHealth(stats models.SyncJobStats, liveCronJobs, expectedCronJobs int) (string, []string) {
	status := models.HealthHealthy
	issues := []string{}

	if stats.FailedJobs > 0 {
		status = models.HealthDegraded
		issues = append(issues, fmt.Sprintf("%d failed sync jobs", stats.FailedJobs))
	}
	if stats.RunningJobs > models.MaxHealthyRunningJobs {
		status = models.HealthDegraded
		issues = append(issues, fmt.Sprintf("%d jobs currently running", stats.RunningJobs))
	}
	if liveCronJobs < expectedCronJobs {
		status = models.HealthDegraded
		issues = append(issues, fmt.Sprintf("only %d of %d cron jobs registered", liveCronJobs, expectedCronJobs))
	}
	if stats.SuccessRate < models.MinHealthySuccessRate {
		status = models.HealthUnhealthy
		issues = append(issues, fmt.Sprintf("success rate %.1f%% below %d%%", stats.SuccessRate, models.MinHealthySuccessRate))
	}
	return status, issues
}

func worse(a, b string) bool {
	rank := map[string]int{models.HealthHealthy: 0, models.HealthDegraded: 1, models.HealthUnhealthy: 2}
	return rank[a] > rank[b]
}
