package syncer

import (
	"context"
	"testing"
	"time"

	"bizpulse/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateHealth(t *testing.T) {
	tests := []struct {
		name       string
		stats      models.SyncJobStats
		live       int
		expected   int
		wantStatus string
		wantIssues []string
	}{
		{
			name:       "healthy",
			stats:      models.SyncJobStats{TotalJobs: 10, CompletedJobs: 10, SuccessRate: 100},
			live:       3,
			expected:   3,
			wantStatus: models.HealthHealthy,
			wantIssues: []string{},
		},
		{
			name:       "failed jobs degrade",
			stats:      models.SyncJobStats{TotalJobs: 40, CompletedJobs: 38, FailedJobs: 2, RunningJobs: 1, SuccessRate: 95},
			live:       3,
			expected:   3,
			wantStatus: models.HealthDegraded,
			wantIssues: []string{"2 failed sync jobs"},
		},
		{
			name:       "too many running",
			stats:      models.SyncJobStats{TotalJobs: 10, CompletedJobs: 10, RunningJobs: 6, SuccessRate: 100},
			live:       3,
			expected:   3,
			wantStatus: models.HealthDegraded,
			wantIssues: []string{"6 jobs currently running"},
		},
		{
			name:       "five running is fine",
			stats:      models.SyncJobStats{TotalJobs: 10, CompletedJobs: 10, RunningJobs: 5, SuccessRate: 100},
			live:       3,
			expected:   3,
			wantStatus: models.HealthHealthy,
			wantIssues: []string{},
		},
		{
			name:       "missing cron registrations",
			stats:      models.SyncJobStats{TotalJobs: 10, CompletedJobs: 10, SuccessRate: 100},
			live:       1,
			expected:   3,
			wantStatus: models.HealthDegraded,
			wantIssues: []string{"only 1 of 3 cron jobs registered"},
		},
		{
			name:       "low success rate",
			stats:      models.SyncJobStats{TotalJobs: 4, CompletedJobs: 2, FailedJobs: 2, SuccessRate: 50},
			live:       3,
			expected:   3,
			wantStatus: models.HealthUnhealthy,
			wantIssues: []string{"2 failed sync jobs", "success rate 50.0% below 90%"},
		},
		{
			name:       "no jobs yet counts as zero success rate",
			stats:      models.SyncJobStats{},
			live:       3,
			expected:   3,
			wantStatus: models.HealthUnhealthy,
			wantIssues: []string{"success rate 0.0% below 90%"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, issues := evaluateHealth(tt.stats, tt.live, tt.expected)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantIssues, issues)
		})
	}
}

func TestGetSyncHealth(t *testing.T) {
	f := newFixture(t)
	f.saveConfig(t, nil)
	ctx := context.Background()

	health := f.svc.GetSyncHealth(ctx, tenant)
	assert.Equal(t, models.HealthUnhealthy, health.Status)
	assert.Equal(t, []string{"only 0 of 3 cron jobs registered", "success rate 0.0% below 90%"}, health.Issues)
	assert.Equal(t, 3, health.ExpectedCronJobs)

	require.NoError(t, f.svc.Initialize(ctx))
	res := f.svc.TriggerManualSync(ctx, tenant, models.JobTypeCleanup)
	require.True(t, res.Success)

	health = f.svc.GetSyncHealth(ctx, tenant)
	assert.Equal(t, models.HealthHealthy, health.Status)
	assert.Empty(t, health.Issues)
	assert.Equal(t, 3, health.LiveCronJobs)
	assert.Equal(t, 1, health.Stats.CompletedJobs)
	assert.Equal(t, 100.0, health.Stats.SuccessRate)
	assert.Equal(t, time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC), health.CheckedAt)
}

func TestGetSyncHealth_StoreErrorsBecomeIssues(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Close())

	health := f.svc.GetSyncHealth(context.Background(), tenant)
	assert.Equal(t, models.HealthUnhealthy, health.Status)
	require.Len(t, health.Issues, 3)
	assert.Contains(t, health.Issues[0], "failed to load job stats")
	assert.Contains(t, health.Issues[1], "failed to load sync config")
	assert.Equal(t, "success rate 0.0% below 90%", health.Issues[2])
}

func TestGetSyncJobStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stats, err := f.svc.GetSyncJobStats(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalJobs)
	assert.Equal(t, 0.0, stats.SuccessRate)
	assert.Nil(t, stats.LastSyncAt)

	f.saveConfig(t, nil)
	require.True(t, f.svc.TriggerManualSync(ctx, tenant, models.JobTypeCleanup).Success)
	stats, err = f.svc.GetSyncJobStats(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalJobs)
	assert.Equal(t, 100.0, stats.SuccessRate)
	require.NotNil(t, stats.LastSyncAt)
}
