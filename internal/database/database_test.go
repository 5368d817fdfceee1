package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"bizpulse/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDB_DirectoryCreation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	logger := zerolog.Nop()

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, dbPath)
	assert.NoError(t, db.PingContext(context.Background()))
}

func TestNewDB_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := NewDB(dbPath, nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// повторное открытие не должно падать на CREATE TABLE
	db, err = NewDB(dbPath, nil)
	require.NoError(t, err)
	db.Close()
}

func TestSyncJobLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	job := &models.SyncJob{
		BusinessEntityID: "tenant-1",
		JobType:          models.JobTypeGA4Daily,
		MaxRetries:       3,
		Metadata:         map[string]any{"trigger": models.TriggerCron},
	}
	require.NoError(t, db.CreateSyncJob(ctx, job))
	require.NotEmpty(t, job.ID)
	assert.Equal(t, models.JobStatusPending, job.Status)

	got, err := db.GetSyncJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", got.BusinessEntityID)
	assert.Equal(t, models.TriggerCron, got.Metadata["trigger"])
	assert.Nil(t, got.EndTime)
	assert.Nil(t, got.Duration)

	end := got.StartTime.Add(1500 * time.Millisecond)
	duration := int64(1500)
	got.Status = models.JobStatusCompleted
	got.EndTime = &end
	got.Duration = &duration
	require.NoError(t, db.UpdateSyncJob(ctx, got))

	got, err = db.GetSyncJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	require.NotNil(t, got.EndTime)
	assert.True(t, got.EndTime.Equal(end))
	require.NotNil(t, got.Duration)
	assert.Equal(t, int64(1500), *got.Duration)
}

func TestGetSyncJob_NotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetSyncJob(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	err = db.UpdateSyncJob(context.Background(), &models.SyncJob{ID: "missing"})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestUpdateSyncJobFrom(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	job := &models.SyncJob{BusinessEntityID: "tenant-1", JobType: models.JobTypeGA4Daily}
	require.NoError(t, db.CreateSyncJob(ctx, job))

	stale := *job
	job.Status = models.JobStatusCancelled
	require.NoError(t, db.UpdateSyncJobFrom(ctx, job, models.JobStatusPending))

	stale.Status = models.JobStatusRunning
	err := db.UpdateSyncJobFrom(ctx, &stale, models.JobStatusPending)
	assert.True(t, errors.Is(err, ErrStatusChanged))

	got, err := db.GetSyncJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, got.Status)

	err = db.UpdateSyncJobFrom(ctx, &models.SyncJob{ID: "missing"}, models.JobStatusPending)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListSyncJobs(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, db.CreateSyncJob(ctx, &models.SyncJob{BusinessEntityID: "tenant-1", JobType: models.JobTypeGA4Daily}))
	}
	require.NoError(t, db.CreateSyncJob(ctx, &models.SyncJob{
		BusinessEntityID: "tenant-1", JobType: models.JobTypeCleanup, Status: models.JobStatusFailed,
	}))
	require.NoError(t, db.CreateSyncJob(ctx, &models.SyncJob{BusinessEntityID: "tenant-2", JobType: models.JobTypeGA4Daily}))

	jobs, total, err := db.ListSyncJobs(ctx, models.SyncJobFilter{BusinessEntityID: "tenant-1", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 6, total)
	assert.Len(t, jobs, 2)

	jobs, total, err = db.ListSyncJobs(ctx, models.SyncJobFilter{BusinessEntityID: "tenant-1", Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Equal(t, 6, total)
	assert.Len(t, jobs, 2)

	jobs, total, err = db.ListSyncJobs(ctx, models.SyncJobFilter{BusinessEntityID: "tenant-1", Status: models.JobStatusFailed})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobTypeCleanup, jobs[0].JobType)

	_, total, err = db.ListSyncJobs(ctx, models.SyncJobFilter{JobType: models.JobTypeGA4Daily})
	require.NoError(t, err)
	assert.Equal(t, 6, total)
}

func TestGetDueRetryJobs(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	due := &models.SyncJob{BusinessEntityID: "t", JobType: models.JobTypeGA4Daily, RetryCount: 1, NextRetryAt: &past}
	notYet := &models.SyncJob{BusinessEntityID: "t", JobType: models.JobTypeGA4Daily, RetryCount: 1, NextRetryAt: &future}
	fresh := &models.SyncJob{BusinessEntityID: "t", JobType: models.JobTypeGA4Daily}
	failed := &models.SyncJob{BusinessEntityID: "t", JobType: models.JobTypeGA4Daily, Status: models.JobStatusFailed, RetryCount: 3, NextRetryAt: &past}
	for _, j := range []*models.SyncJob{due, notYet, fresh, failed} {
		require.NoError(t, db.CreateSyncJob(ctx, j))
	}

	jobs, err := db.GetDueRetryJobs(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, due.ID, jobs[0].ID)
}

func TestGetSyncJobStats(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	stats, err := db.GetSyncJobStats(ctx, "empty")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalJobs)
	assert.Equal(t, 0.0, stats.SuccessRate)
	assert.Nil(t, stats.LastSyncAt)

	start := time.Now().UTC().Add(-time.Hour)
	for _, d := range []int64{1000, 3000} {
		end := start.Add(time.Duration(d) * time.Millisecond)
		dur := d
		require.NoError(t, db.CreateSyncJob(ctx, &models.SyncJob{
			BusinessEntityID: "tenant-1", JobType: models.JobTypeGA4Daily, Status: models.JobStatusCompleted,
			StartTime: start, EndTime: &end, Duration: &dur,
		}))
	}
	for _, status := range []string{models.JobStatusFailed, models.JobStatusRunning} {
		require.NoError(t, db.CreateSyncJob(ctx, &models.SyncJob{
			BusinessEntityID: "tenant-1", JobType: models.JobTypeN8nRealtime, Status: status,
		}))
	}

	stats, err = db.GetSyncJobStats(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalJobs)
	assert.Equal(t, 2, stats.CompletedJobs)
	assert.Equal(t, 1, stats.FailedJobs)
	assert.Equal(t, 1, stats.RunningJobs)
	assert.Equal(t, 0, stats.PendingJobs)
	assert.InDelta(t, 2000, stats.AverageDuration, 0.001)
	assert.InDelta(t, 50, stats.SuccessRate, 0.001)
	require.NotNil(t, stats.LastSyncAt)
	assert.True(t, stats.LastSyncAt.Equal(start.Add(3*time.Second)))
}

func TestSyncConfigStore(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	cfg := models.DefaultSyncConfig("tenant-1")
	cfg.Alerting = models.AlertingConfig{Enabled: true, EmailRecipients: []string{"ops@example.com"}}
	require.NoError(t, db.SaveSyncConfig(ctx, cfg))
	require.NotEmpty(t, cfg.ID)

	got, err := db.GetSyncConfig(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, cfg.ID, got.ID)
	assert.Equal(t, models.DefaultGA4Schedule, got.GA4.Schedule)
	assert.True(t, got.N8n.Enabled)
	assert.Equal(t, 3, got.RetryConfig.MaxRetries)
	assert.Equal(t, []string{"ops@example.com"}, got.Alerting.EmailRecipients)

	got.GA4.Schedule = "0 4 * * *"
	got.Cleanup.Enabled = false
	require.NoError(t, db.SaveSyncConfig(ctx, got))

	updated, err := db.GetSyncConfig(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, cfg.ID, updated.ID)
	assert.Equal(t, "0 4 * * *", updated.GA4.Schedule)
	assert.False(t, updated.Cleanup.Enabled)

	require.NoError(t, db.SaveSyncConfig(ctx, models.DefaultSyncConfig("tenant-2")))
	all, err := db.ListSyncConfigs(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, db.DeleteSyncConfig(ctx, "tenant-1"))
	_, err = db.GetSyncConfig(ctx, "tenant-1")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(db.DeleteSyncConfig(ctx, "tenant-1"), ErrNotFound))
}

func TestIntegrationStore(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	inactive := &models.Integration{BusinessEntityID: "tenant-1", Type: models.IntegrationGoogleAnalytics, Status: models.IntegrationStatusInactive, PropertyID: "old"}
	active := &models.Integration{BusinessEntityID: "tenant-1", Type: models.IntegrationGoogleAnalytics, PropertyID: "123456"}
	require.NoError(t, db.UpsertIntegration(ctx, inactive))
	require.NoError(t, db.UpsertIntegration(ctx, active))

	got, err := db.GetActiveIntegration(ctx, "tenant-1", models.IntegrationGoogleAnalytics)
	require.NoError(t, err)
	assert.Equal(t, active.ID, got.ID)
	assert.Equal(t, "123456", got.PropertyID)
	assert.Nil(t, got.LastSyncAt)

	_, err = db.GetActiveIntegration(ctx, "tenant-1", models.IntegrationN8n)
	assert.True(t, errors.Is(err, ErrNotFound))

	at := time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)
	require.NoError(t, db.TouchIntegrationSync(ctx, active.ID, at))
	got, err = db.GetIntegration(ctx, active.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastSyncAt)
	assert.True(t, got.LastSyncAt.Equal(at))

	list, err := db.ListIntegrations(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestWebhookEventStore(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	ev := &models.WebhookEvent{
		IntegrationID: "int-1",
		WorkflowID:    "wf-1",
		WorkflowName:  "Orders",
		ExecutionID:   "exec-1",
		EventType:     "workflow_started",
		Status:        "running",
		StartTime:     time.Now().UTC(),
	}
	previous, err := db.UpsertWebhookEvent(ctx, ev)
	require.NoError(t, err)
	assert.Nil(t, previous)
	firstID := ev.ID

	pending, err := db.ListPendingWebhookEvents(ctx, "int-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Nil(t, pending[0].InputData)

	duration := int64(2500)
	completed := &models.WebhookEvent{
		IntegrationID: "int-1",
		WorkflowID:    "wf-1",
		WorkflowName:  "Orders",
		ExecutionID:   "exec-1",
		EventType:     "workflow_completed",
		Status:        "success",
		StartTime:     ev.StartTime,
		Duration:      &duration,
		OutputData:    map[string]any{"rows": float64(3)},
	}
	previous, err = db.UpsertWebhookEvent(ctx, completed)
	require.NoError(t, err)
	require.NotNil(t, previous)
	assert.Equal(t, "workflow_started", previous.EventType)
	assert.Equal(t, firstID, completed.ID)

	require.NoError(t, db.MarkWebhookEvent(ctx, completed.ID, models.ProcessingProcessed, nil))

	stored, err := db.GetWebhookEvent(ctx, completed.ID)
	require.NoError(t, err)
	assert.Equal(t, "workflow_completed", stored.EventType)
	assert.Equal(t, models.ProcessingProcessed, stored.ProcessingStatus)
	assert.NotNil(t, stored.ProcessedAt)
	assert.Equal(t, float64(3), stored.OutputData["rows"])

	pending, err = db.ListPendingWebhookEvents(ctx, "int-1")
	require.NoError(t, err)
	assert.Empty(t, pending)

	assert.True(t, errors.Is(db.MarkWebhookEvent(ctx, "missing", models.ProcessingFailed, nil), ErrNotFound))
}

func TestMetricStore(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, name := range []string{"sessions", "users"} {
		require.NoError(t, db.CreateMetric(ctx, &models.Metric{
			BusinessEntityID: "tenant-1",
			MetricType:       "traffic",
			MetricName:       name,
			MetricValue:      42,
			Source:           models.MetricSourceGoogleAnalytics,
			Date:             day,
			Tags:             []string{"ga4"},
		}))
	}
	require.NoError(t, db.CreateMetric(ctx, &models.Metric{
		BusinessEntityID: "tenant-1", MetricType: "automation", MetricName: "workflow_executions",
		MetricValue: 1, Source: models.MetricSourceN8n, Date: day,
	}))

	list, err := db.ListMetrics(ctx, models.MetricFilter{BusinessEntityID: "tenant-1", Source: models.MetricSourceGoogleAnalytics})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, []string{"ga4"}, list[0].Tags)
	assert.Equal(t, "UTC", list[0].Timezone)
	assert.True(t, list[0].Date.Equal(day))

	list, err = db.ListMetrics(ctx, models.MetricFilter{BusinessEntityID: "tenant-1", MetricName: "workflow_executions"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCleanupOldData(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	old := time.Now().UTC().AddDate(0, 0, -120)
	recent := time.Now().UTC().AddDate(0, 0, -1)

	require.NoError(t, db.UpsertIntegration(ctx, &models.Integration{ID: "int-1", BusinessEntityID: "tenant-1", Type: models.IntegrationN8n}))

	require.NoError(t, db.CreateMetric(ctx, &models.Metric{BusinessEntityID: "tenant-1", MetricType: "t", MetricName: "old", Source: "n8n", Date: old}))
	require.NoError(t, db.CreateMetric(ctx, &models.Metric{BusinessEntityID: "tenant-1", MetricType: "t", MetricName: "new", Source: "n8n", Date: recent}))
	require.NoError(t, db.CreateMetric(ctx, &models.Metric{BusinessEntityID: "tenant-2", MetricType: "t", MetricName: "other", Source: "n8n", Date: old}))

	oldProcessed := &models.WebhookEvent{IntegrationID: "int-1", WorkflowID: "w", WorkflowName: "w", ExecutionID: "e1",
		EventType: "workflow_completed", Status: "success", StartTime: old, ProcessingStatus: models.ProcessingProcessed}
	oldPending := &models.WebhookEvent{IntegrationID: "int-1", WorkflowID: "w", WorkflowName: "w", ExecutionID: "e2",
		EventType: "workflow_completed", Status: "success", StartTime: old}
	for _, ev := range []*models.WebhookEvent{oldProcessed, oldPending} {
		_, err := db.UpsertWebhookEvent(ctx, ev)
		require.NoError(t, err)
	}
	_, err := db.ExecContext(ctx, `UPDATE webhook_events SET created_at = ?`, old)
	require.NoError(t, err)

	oldDone := &models.SyncJob{BusinessEntityID: "tenant-1", JobType: models.JobTypeCleanup, Status: models.JobStatusCompleted}
	oldPendingJob := &models.SyncJob{BusinessEntityID: "tenant-1", JobType: models.JobTypeCleanup}
	newDone := &models.SyncJob{BusinessEntityID: "tenant-1", JobType: models.JobTypeCleanup, Status: models.JobStatusFailed}
	for _, j := range []*models.SyncJob{oldDone, oldPendingJob, newDone} {
		require.NoError(t, db.CreateSyncJob(ctx, j))
	}
	_, err = db.ExecContext(ctx, `UPDATE sync_jobs SET created_at = ? WHERE id IN (?, ?)`, old, oldDone.ID, oldPendingJob.ID)
	require.NoError(t, err)

	result, err := db.CleanupOldData(ctx, "tenant-1", models.DefaultRetentionDays)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.MetricsDeleted)
	assert.Equal(t, int64(1), result.WebhookEventsDeleted)
	assert.Equal(t, int64(1), result.SyncJobsDeleted)

	_, err = db.GetSyncJob(ctx, oldPendingJob.ID)
	assert.NoError(t, err)
	_, err = db.GetSyncJob(ctx, oldDone.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	other, err := db.ListMetrics(ctx, models.MetricFilter{BusinessEntityID: "tenant-2"})
	require.NoError(t, err)
	assert.Len(t, other, 1)

	_, err = db.CleanupOldData(ctx, "tenant-1", 0)
	assert.Error(t, err)
}

func TestSnapshotter(t *testing.T) {
	db := setupTestDB(t)
	dir := filepath.Join(t.TempDir(), "snapshots")
	s := NewSnapshotter(db, dir, 1, nil)

	path, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, path)

	oldFile := filepath.Join(dir, snapshotPrefix+"old.db")
	require.NoError(t, os.WriteFile(oldFile, []byte("old"), 0o644))
	oldTime := time.Now().AddDate(0, 0, -2)
	require.NoError(t, os.Chtimes(oldFile, oldTime, oldTime))

	foreign := filepath.Join(dir, "keep.txt")
	require.NoError(t, os.WriteFile(foreign, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(foreign, oldTime, oldTime))

	removed, err := s.Prune()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoFileExists(t, oldFile)
	assert.FileExists(t, foreign)
	assert.FileExists(t, path)
}
