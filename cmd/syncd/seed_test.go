package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"bizpulse/internal/database"
	"bizpulse/internal/models"
	"bizpulse/internal/schedule"
	"bizpulse/internal/syncer"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tenantsYAML = `
tenants:
  - id: acme
    integrations:
      - id: acme-ga4
        type: google_analytics
        property_id: properties/42
      - id: acme-n8n
        type: n8n
    sync:
      ga4:
        enabled: true
        schedule: "15 2 * * *"
      n8n:
        enabled: false
      cleanup:
        enabled: true
      retry_config:
        max_retries: 5
      alerting:
        enabled: true
        email_recipients: ["ops@acme.test"]
  - id: globex
    integrations:
      - id: globex-n8n
        type: n8n
`

func newSeedEnv(t *testing.T) (*database.DB, *syncer.DataSyncService, string) {
	t.Helper()
	dir := t.TempDir()
	db, err := database.NewDB(filepath.Join(dir, "seed.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := syncer.New(syncer.Deps{Store: db, Webhooks: db, Scheduler: schedule.NewManual()}, syncer.Options{})

	path := filepath.Join(dir, "tenants.yaml")
	require.NoError(t, os.WriteFile(path, []byte(tenantsYAML), 0o644))
	return db, svc, path
}

func TestSeedTenants(t *testing.T) {
	db, svc, path := newSeedEnv(t)
	ctx := context.Background()
	logger := zerolog.Nop()

	require.NoError(t, seedTenants(ctx, path, db, svc, &logger))

	ga4, err := db.GetActiveIntegration(ctx, "acme", models.IntegrationGoogleAnalytics)
	require.NoError(t, err)
	assert.Equal(t, "acme-ga4", ga4.ID)
	assert.Equal(t, "properties/42", ga4.PropertyID)

	cfg, err := db.GetSyncConfig(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "15 2 * * *", cfg.GA4.Schedule)
	assert.False(t, cfg.N8n.Enabled)
	assert.Equal(t, models.DefaultCleanupSchedule, cfg.Cleanup.Schedule)
	assert.Equal(t, 5, cfg.RetryConfig.MaxRetries)
	assert.Equal(t, []string{"ops@acme.test"}, cfg.Alerting.EmailRecipients)

	_, err = db.GetSyncConfig(ctx, "globex")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestSeedTenants_KeepsExistingConfig(t *testing.T) {
	db, svc, path := newSeedEnv(t)
	ctx := context.Background()
	logger := zerolog.Nop()

	require.NoError(t, seedTenants(ctx, path, db, svc, &logger))

	cfg, err := db.GetSyncConfig(ctx, "acme")
	require.NoError(t, err)
	cfg.GA4.Schedule = "0 6 * * *"
	_, err = svc.UpdateSyncConfig(ctx, "acme", cfg)
	require.NoError(t, err)

	require.NoError(t, seedTenants(ctx, path, db, svc, &logger))

	cfg, err = db.GetSyncConfig(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "0 6 * * *", cfg.GA4.Schedule)
}

func TestSeedTenants_MissingFile(t *testing.T) {
	db, svc, _ := newSeedEnv(t)
	logger := zerolog.Nop()

	err := seedTenants(context.Background(), filepath.Join(t.TempDir(), "none.yaml"), db, svc, &logger)
	assert.NoError(t, err)
}

func TestSeedTenants_InvalidConfig(t *testing.T) {
	db, svc, _ := newSeedEnv(t)
	logger := zerolog.Nop()

	path := filepath.Join(t.TempDir(), "bad.yaml")
	bad := "tenants:\n  - id: acme\n    sync:\n      ga4:\n        enabled: true\n        schedule: \"not a cron\"\n"
	require.NoError(t, os.WriteFile(path, []byte(bad), 0o644))

	err := seedTenants(context.Background(), path, db, svc, &logger)
	assert.ErrorIs(t, err, syncer.ErrInvalidConfig)
}
