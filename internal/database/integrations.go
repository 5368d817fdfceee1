package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bizpulse/internal/models"

	"github.com/google/uuid"
)

const integrationColumns = `id, business_entity_id, type, status, property_id, last_sync_at, created_at, updated_at`

func scanIntegration(row rowScanner) (*models.Integration, error) {
	var (
		in       models.Integration
		lastSync sql.NullTime
	)
	err := row.Scan(&in.ID, &in.BusinessEntityID, &in.Type, &in.Status, &in.PropertyID, &lastSync, &in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		return nil, err
	}
	in.LastSyncAt = nullTimePtr(lastSync)
	in.CreatedAt = in.CreatedAt.UTC()
	in.UpdatedAt = in.UpdatedAt.UTC()
	return &in, nil
}

// UpsertIntegration creates or updates an integration by id.
func (db *DB) UpsertIntegration(ctx context.Context, in *models.Integration) error {
	now := time.Now().UTC()
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.Status == "" {
		in.Status = models.IntegrationStatusActive
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = now
	}
	in.UpdatedAt = now

	query := `INSERT INTO integrations (` + integrationColumns + `)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                business_entity_id = excluded.business_entity_id,
                type = excluded.type,
                status = excluded.status,
                property_id = excluded.property_id,
                updated_at = excluded.updated_at`
	_, err := db.ExecContext(ctx, query,
		in.ID, in.BusinessEntityID, in.Type, in.Status, in.PropertyID, timeArg(in.LastSyncAt), in.CreatedAt, in.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert integration: %w", err)
	}
	return nil
}

// GetIntegration returns an integration by id.
func (db *DB) GetIntegration(ctx context.Context, id string) (*models.Integration, error) {
	in, err := scanIntegration(db.QueryRowContext(ctx, `SELECT `+integrationColumns+` FROM integrations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("integration %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get integration: %w", err)
	}
	return in, nil
}

// GetActiveIntegration returns the first active integration of a type for a tenant.
func (db *DB) GetActiveIntegration(ctx context.Context, tenantID, integrationType string) (*models.Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM integrations
              WHERE business_entity_id = ? AND type = ? AND status = ?
              ORDER BY created_at ASC LIMIT 1`
	in, err := scanIntegration(db.QueryRowContext(ctx, query, tenantID, integrationType, models.IntegrationStatusActive))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("active %s integration for %s: %w", integrationType, tenantID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active integration: %w", err)
	}
	return in, nil
}

// ListIntegrations returns all integrations of a tenant.
func (db *DB) ListIntegrations(ctx context.Context, tenantID string) ([]*models.Integration, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+integrationColumns+` FROM integrations
              WHERE business_entity_id = ? ORDER BY created_at ASC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list integrations: %w", err)
	}
	defer rows.Close()

	var out []*models.Integration
	for rows.Next() {
		in, err := scanIntegration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan integration: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// TouchIntegrationSync records a successful sync time.
func (db *DB) TouchIntegrationSync(ctx context.Context, id string, at time.Time) error {
	res, err := db.ExecContext(ctx, `UPDATE integrations SET last_sync_at = ?, updated_at = ? WHERE id = ?`,
		at.UTC(), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update integration sync time: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("integration %s: %w", id, ErrNotFound)
	}
	return nil
}
