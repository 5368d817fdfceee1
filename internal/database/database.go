package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrStatusChanged is returned by conditional updates when the stored status differs.
var ErrStatusChanged = errors.New("status changed")

type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	// Создаем директорию для БД, если её нет
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return &DB{DB: db, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS sync_configs (
            id TEXT PRIMARY KEY,
            business_entity_id TEXT UNIQUE NOT NULL,
            ga4_enabled BOOLEAN NOT NULL DEFAULT 0,
            ga4_schedule TEXT NOT NULL DEFAULT '',
            n8n_enabled BOOLEAN NOT NULL DEFAULT 0,
            n8n_schedule TEXT NOT NULL DEFAULT '',
            cleanup_enabled BOOLEAN NOT NULL DEFAULT 0,
            cleanup_schedule TEXT NOT NULL DEFAULT '',
            retry_config TEXT NOT NULL DEFAULT '{}',
            alerting TEXT NOT NULL DEFAULT '{}',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS sync_jobs (
            id TEXT PRIMARY KEY,
            business_entity_id TEXT NOT NULL,
            job_type TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            start_time DATETIME NOT NULL,
            end_time DATETIME,
            duration INTEGER,
            error_message TEXT,
            error_code TEXT,
            retry_count INTEGER NOT NULL DEFAULT 0,
            max_retries INTEGER NOT NULL DEFAULT 0,
            next_retry_at DATETIME,
            metadata TEXT NOT NULL DEFAULT '{}',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS integrations (
            id TEXT PRIMARY KEY,
            business_entity_id TEXT NOT NULL,
            type TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'active',
            property_id TEXT NOT NULL DEFAULT '',
            last_sync_at DATETIME,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS webhook_events (
            id TEXT PRIMARY KEY,
            integration_id TEXT NOT NULL,
            workflow_id TEXT NOT NULL,
            workflow_name TEXT NOT NULL,
            execution_id TEXT NOT NULL,
            event_type TEXT NOT NULL,
            status TEXT NOT NULL,
            start_time DATETIME NOT NULL,
            end_time DATETIME,
            duration INTEGER,
            error_message TEXT,
            input_data TEXT,
            output_data TEXT,
            metadata TEXT,
            processing_status TEXT NOT NULL DEFAULT 'pending',
            processing_error TEXT,
            created_at DATETIME NOT NULL,
            processed_at DATETIME,
            UNIQUE (integration_id, execution_id)
        )`,
		`CREATE TABLE IF NOT EXISTS metrics (
            id TEXT PRIMARY KEY,
            business_entity_id TEXT NOT NULL,
            metric_type TEXT NOT NULL,
            metric_name TEXT NOT NULL,
            metric_value REAL NOT NULL,
            metric_unit TEXT NOT NULL DEFAULT '',
            source TEXT NOT NULL,
            date DATETIME NOT NULL,
            timezone TEXT NOT NULL DEFAULT 'UTC',
            metadata TEXT,
            tags TEXT,
            created_at DATETIME NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS idx_sync_jobs_tenant_status ON sync_jobs(business_entity_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_jobs_next_retry ON sync_jobs(status, next_retry_at)`,
		`CREATE INDEX IF NOT EXISTS idx_integrations_tenant_type ON integrations(business_entity_id, type, status)`,
		`CREATE INDEX IF NOT EXISTS idx_webhook_events_pending ON webhook_events(integration_id, processing_status)`,
		`CREATE INDEX IF NOT EXISTS idx_metrics_tenant_date ON metrics(business_entity_id, date)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func encodeJSON(v any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeJSONMap(raw sql.NullString) (map[string]any, error) {
	out := map[string]any{}
	if !raw.Valid || raw.String == "" || raw.String == "null" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw.String), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullStringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullInt64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
