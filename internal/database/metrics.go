package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"bizpulse/internal/models"

	"github.com/google/uuid"
)

// CreateMetric stores one metric data point.
func (db *DB) CreateMetric(ctx context.Context, m *models.Metric) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timezone == "" {
		m.Timezone = "UTC"
	}
	m.CreatedAt = time.Now().UTC()

	metadata, err := optionalJSON(m.Metadata)
	if err != nil {
		return fmt.Errorf("encode metric metadata: %w", err)
	}
	var tags any
	if len(m.Tags) > 0 {
		raw, err := json.Marshal(m.Tags)
		if err != nil {
			return fmt.Errorf("encode metric tags: %w", err)
		}
		tags = string(raw)
	}

	_, err = db.ExecContext(ctx, `INSERT INTO metrics (id, business_entity_id, metric_type, metric_name, metric_value,
              metric_unit, source, date, timezone, metadata, tags, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.BusinessEntityID, m.MetricType, m.MetricName, m.MetricValue,
		m.MetricUnit, m.Source, m.Date.UTC(), m.Timezone, metadata, tags, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create metric: %w", err)
	}
	return nil
}

// ListMetrics returns metrics matching the filter, newest first.
func (db *DB) ListMetrics(ctx context.Context, filter models.MetricFilter) ([]*models.Metric, error) {
	var (
		where = []string{"business_entity_id = ?"}
		args  = []any{filter.BusinessEntityID}
	)
	if filter.Source != "" {
		where = append(where, "source = ?")
		args = append(args, filter.Source)
	}
	if filter.MetricName != "" {
		where = append(where, "metric_name = ?")
		args = append(args, filter.MetricName)
	}
	if filter.From != nil {
		where = append(where, "date >= ?")
		args = append(args, filter.From.UTC())
	}
	if filter.To != nil {
		where = append(where, "date <= ?")
		args = append(args, filter.To.UTC())
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	args = append(args, limit)

	query := `SELECT id, business_entity_id, metric_type, metric_name, metric_value, metric_unit, source,
              date, timezone, metadata, tags, created_at FROM metrics
              WHERE ` + strings.Join(where, " AND ") + ` ORDER BY date DESC, created_at DESC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list metrics: %w", err)
	}
	defer rows.Close()

	var out []*models.Metric
	for rows.Next() {
		var (
			m              models.Metric
			metadata, tags sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.BusinessEntityID, &m.MetricType, &m.MetricName, &m.MetricValue, &m.MetricUnit,
			&m.Source, &m.Date, &m.Timezone, &metadata, &tags, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}
		m.Date = m.Date.UTC()
		m.CreatedAt = m.CreatedAt.UTC()
		if metadata.Valid {
			if m.Metadata, err = decodeJSONMap(metadata); err != nil {
				return nil, fmt.Errorf("decode metric metadata: %w", err)
			}
		}
		if tags.Valid && tags.String != "" {
			if err := json.Unmarshal([]byte(tags.String), &m.Tags); err != nil {
				return nil, fmt.Errorf("decode metric tags: %w", err)
			}
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
