package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"bizpulse/internal/database"
	"bizpulse/internal/models"
	"bizpulse/internal/syncer"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

type tenantSeed struct {
	ID           string                `yaml:"id"`
	Integrations []*models.Integration `yaml:"integrations"`
	Sync         *syncSeed             `yaml:"sync"`
}

type syncSeed struct {
	GA4         models.Schedule       `yaml:"ga4"`
	N8n         models.Schedule       `yaml:"n8n"`
	Cleanup     models.Schedule       `yaml:"cleanup"`
	RetryConfig models.RetryConfig    `yaml:"retry_config"`
	Alerting    models.AlertingConfig `yaml:"alerting"`
}

func loadTenants(path string) ([]tenantSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var seedFile struct {
		Tenants []tenantSeed `yaml:"tenants"`
	}
	if err := yaml.Unmarshal(data, &seedFile); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return seedFile.Tenants, nil
}

// seedTenants upserts integrations and creates sync configs that do not exist yet.
// Configs already stored are left alone so API edits survive restarts.
func seedTenants(ctx context.Context, path string, db *database.DB, svc *syncer.DataSyncService, logger *zerolog.Logger) error {
	if path == "" {
		return nil
	}

	tenants, err := loadTenants(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn().Str("tenants_path", path).Msg("tenants file not found, skipping seed")
		return nil
	}
	if err != nil {
		logger.Error().Err(err).Str("tenants_path", path).Msg("read tenants")
		return err
	}

	for _, t := range tenants {
		for _, in := range t.Integrations {
			in.BusinessEntityID = t.ID
			if err := db.UpsertIntegration(ctx, in); err != nil {
				return fmt.Errorf("seed integration %s: %w", in.ID, err)
			}
		}

		if t.Sync == nil {
			continue
		}
		cfg := &models.SyncConfig{
			BusinessEntityID: t.ID,
			GA4:              t.Sync.GA4,
			N8n:              t.Sync.N8n,
			Cleanup:          t.Sync.Cleanup,
			RetryConfig:      t.Sync.RetryConfig,
			Alerting:         t.Sync.Alerting,
		}
		_, err := svc.CreateSyncConfig(ctx, cfg)
		switch {
		case errors.Is(err, syncer.ErrConfigExists):
		case err != nil:
			return fmt.Errorf("seed sync config for %s: %w", t.ID, err)
		default:
			logger.Info().Str("tenant_id", t.ID).Msg("sync config seeded")
		}
	}

	logger.Info().Int("tenants", len(tenants)).Msg("tenant seed applied")
	return nil
}
