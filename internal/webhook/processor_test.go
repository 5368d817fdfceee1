package webhook

import (
	"context"
	"path/filepath"
	"testing"

	"bizpulse/internal/database"
	"bizpulse/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupProcessor(t *testing.T) (*Processor, *database.DB) {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "webhook.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, db.UpsertIntegration(ctx, &models.Integration{
		ID: "n8n-1", BusinessEntityID: "tenant-1", Type: models.IntegrationN8n,
	}))
	require.NoError(t, db.UpsertIntegration(ctx, &models.Integration{
		ID: "n8n-off", BusinessEntityID: "tenant-1", Type: models.IntegrationN8n, Status: models.IntegrationStatusInactive,
	}))
	require.NoError(t, db.UpsertIntegration(ctx, &models.Integration{
		ID: "ga4-1", BusinessEntityID: "tenant-1", Type: models.IntegrationGoogleAnalytics,
	}))

	return NewProcessor(db, db, db, nil), db
}

func metricNames(ms []*models.Metric) []string {
	var out []string
	for _, m := range ms {
		out = append(out, m.MetricName)
	}
	return out
}

func TestProcessWebhookEvent_Completed(t *testing.T) {
	p, db := setupProcessor(t)
	ctx := context.Background()

	res := p.ProcessWebhookEvent(ctx, "n8n-1", validPayload())
	require.True(t, res.Success, "errors: %v", res.Errors)
	require.NotEmpty(t, res.EventID)
	assert.ElementsMatch(t, []string{"workflow_executions", "workflow_duration"}, metricNames(res.Metrics))

	stored, err := db.GetWebhookEvent(ctx, res.EventID)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessingProcessed, stored.ProcessingStatus)

	metrics, err := db.ListMetrics(ctx, models.MetricFilter{BusinessEntityID: "tenant-1", Source: models.MetricSourceN8n})
	require.NoError(t, err)
	assert.Len(t, metrics, 2)
}

func TestProcessWebhookEvent_Failed(t *testing.T) {
	p, _ := setupProcessor(t)
	pl := validPayload()
	pl.EventType = EventWorkflowFailed
	pl.Status = StatusError
	pl.ErrorMessage = "node HTTP Request failed"

	res := p.ProcessWebhookEvent(context.Background(), "n8n-1", pl)
	require.True(t, res.Success)
	assert.Contains(t, metricNames(res.Metrics), "workflow_errors")
}

func TestProcessWebhookEvent_Duplicate(t *testing.T) {
	p, db := setupProcessor(t)
	ctx := context.Background()

	first := p.ProcessWebhookEvent(ctx, "n8n-1", validPayload())
	require.True(t, first.Success)

	second := p.ProcessWebhookEvent(ctx, "n8n-1", validPayload())
	require.True(t, second.Success)
	assert.Equal(t, first.EventID, second.EventID)
	assert.Contains(t, second.Warnings, "event already processed")
	assert.Empty(t, second.Metrics)

	metrics, err := db.ListMetrics(ctx, models.MetricFilter{BusinessEntityID: "tenant-1"})
	require.NoError(t, err)
	assert.Len(t, metrics, 2)
}

func TestProcessWebhookEvent_StartedThenCompleted(t *testing.T) {
	p, _ := setupProcessor(t)
	ctx := context.Background()

	started := validPayload()
	started.EventType = EventWorkflowStarted
	started.Status = StatusRunning
	started.EndTime = ""

	res := p.ProcessWebhookEvent(ctx, "n8n-1", started)
	require.True(t, res.Success)
	assert.Empty(t, res.Metrics)

	res2 := p.ProcessWebhookEvent(ctx, "n8n-1", validPayload())
	require.True(t, res2.Success)
	assert.Equal(t, res.EventID, res2.EventID)
	assert.Len(t, res2.Metrics, 2)
}

func TestProcessWebhookEvent_Rejections(t *testing.T) {
	p, _ := setupProcessor(t)
	ctx := context.Background()

	bad := validPayload()
	bad.Status = "nope"
	res := p.ProcessWebhookEvent(ctx, "n8n-1", bad)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Errors)
	assert.Empty(t, res.EventID)

	res = p.ProcessWebhookEvent(ctx, "missing", validPayload())
	assert.False(t, res.Success)
	assert.Equal(t, []string{ErrIntegrationNotFound.Error()}, res.Errors)

	res = p.ProcessWebhookEvent(ctx, "n8n-off", validPayload())
	assert.Equal(t, []string{ErrIntegrationInactive.Error()}, res.Errors)

	res = p.ProcessWebhookEvent(ctx, "ga4-1", validPayload())
	assert.Equal(t, []string{ErrNotN8nIntegration.Error()}, res.Errors)
}

func TestProcessWebhookEvent_CustomMetric(t *testing.T) {
	p, _ := setupProcessor(t)
	pl := validPayload()
	pl.EventType = EventCustomMetric
	pl.Metadata = map[string]any{"metricName": "leads_created", "metricValue": float64(7), "metricUnit": "count"}

	res := p.ProcessWebhookEvent(context.Background(), "n8n-1", pl)
	require.True(t, res.Success)
	require.Len(t, res.Metrics, 1)
	assert.Equal(t, "leads_created", res.Metrics[0].MetricName)
	assert.Equal(t, "custom", res.Metrics[0].MetricType)
	assert.Equal(t, 7.0, res.Metrics[0].MetricValue)

	pl.ExecutionID = "exec-2"
	pl.Metadata = nil
	res = p.ProcessWebhookEvent(context.Background(), "n8n-1", pl)
	require.True(t, res.Success)
	assert.Empty(t, res.Metrics)
	assert.NotEmpty(t, res.Warnings)
}

func TestEnqueueThenReplay(t *testing.T) {
	p, db := setupProcessor(t)
	ctx := context.Background()

	res := p.Enqueue(ctx, "n8n-1", validPayload())
	require.True(t, res.Success)

	pending, err := db.ListPendingWebhookEvents(ctx, "n8n-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	replayed := p.ProcessWebhookEvent(ctx, "n8n-1", PayloadFromEvent(pending[0]))
	require.True(t, replayed.Success, "errors: %v", replayed.Errors)
	assert.Equal(t, res.EventID, replayed.EventID)
	assert.Len(t, replayed.Metrics, 2)

	pending, err = db.ListPendingWebhookEvents(ctx, "n8n-1")
	require.NoError(t, err)
	assert.Empty(t, pending)
}
