package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bizpulse/internal/models"

	"github.com/google/uuid"
)

const syncConfigColumns = `id, business_entity_id, ga4_enabled, ga4_schedule, n8n_enabled, n8n_schedule,
        cleanup_enabled, cleanup_schedule, retry_config, alerting, created_at, updated_at`

func scanSyncConfig(row rowScanner) (*models.SyncConfig, error) {
	var (
		cfg             models.SyncConfig
		retry, alerting string
	)
	err := row.Scan(
		&cfg.ID,
		&cfg.BusinessEntityID,
		&cfg.GA4.Enabled,
		&cfg.GA4.Schedule,
		&cfg.N8n.Enabled,
		&cfg.N8n.Schedule,
		&cfg.Cleanup.Enabled,
		&cfg.Cleanup.Schedule,
		&retry,
		&alerting,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(retry), &cfg.RetryConfig); err != nil {
		return nil, fmt.Errorf("decode retry config: %w", err)
	}
	if err := json.Unmarshal([]byte(alerting), &cfg.Alerting); err != nil {
		return nil, fmt.Errorf("decode alerting config: %w", err)
	}
	cfg.CreatedAt = cfg.CreatedAt.UTC()
	cfg.UpdatedAt = cfg.UpdatedAt.UTC()
	return &cfg, nil
}

// SaveSyncConfig inserts or replaces the config of a tenant.
func (db *DB) SaveSyncConfig(ctx context.Context, cfg *models.SyncConfig) error {
	now := time.Now().UTC()
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now

	retry, err := encodeJSON(cfg.RetryConfig)
	if err != nil {
		return fmt.Errorf("encode retry config: %w", err)
	}
	alerting, err := encodeJSON(cfg.Alerting)
	if err != nil {
		return fmt.Errorf("encode alerting config: %w", err)
	}

	query := `INSERT INTO sync_configs (` + syncConfigColumns + `)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(business_entity_id) DO UPDATE SET
                ga4_enabled = excluded.ga4_enabled,
                ga4_schedule = excluded.ga4_schedule,
                n8n_enabled = excluded.n8n_enabled,
                n8n_schedule = excluded.n8n_schedule,
                cleanup_enabled = excluded.cleanup_enabled,
                cleanup_schedule = excluded.cleanup_schedule,
                retry_config = excluded.retry_config,
                alerting = excluded.alerting,
                updated_at = excluded.updated_at`
	_, err = db.ExecContext(ctx, query,
		cfg.ID,
		cfg.BusinessEntityID,
		cfg.GA4.Enabled,
		cfg.GA4.Schedule,
		cfg.N8n.Enabled,
		cfg.N8n.Schedule,
		cfg.Cleanup.Enabled,
		cfg.Cleanup.Schedule,
		retry,
		alerting,
		cfg.CreatedAt,
		cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save sync config: %w", err)
	}
	return nil
}

// GetSyncConfig returns the config of a tenant.
func (db *DB) GetSyncConfig(ctx context.Context, tenantID string) (*models.SyncConfig, error) {
	query := `SELECT ` + syncConfigColumns + ` FROM sync_configs WHERE business_entity_id = ?`
	cfg, err := scanSyncConfig(db.QueryRowContext(ctx, query, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sync config for %s: %w", tenantID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync config: %w", err)
	}
	return cfg, nil
}

// ListSyncConfigs returns every stored tenant config.
func (db *DB) ListSyncConfigs(ctx context.Context) ([]*models.SyncConfig, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+syncConfigColumns+` FROM sync_configs ORDER BY business_entity_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync configs: %w", err)
	}
	defer rows.Close()

	var configs []*models.SyncConfig
	for rows.Next() {
		cfg, err := scanSyncConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync config: %w", err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// DeleteSyncConfig removes the config of a tenant.
func (db *DB) DeleteSyncConfig(ctx context.Context, tenantID string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM sync_configs WHERE business_entity_id = ?`, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete sync config: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sync config for %s: %w", tenantID, ErrNotFound)
	}
	return nil
}
