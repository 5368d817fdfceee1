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

const webhookEventColumns = `id, integration_id, workflow_id, workflow_name, execution_id, event_type, status,
        start_time, end_time, duration, error_message, input_data, output_data, metadata,
        processing_status, processing_error, created_at, processed_at`

func scanWebhookEvent(row rowScanner) (*models.WebhookEvent, error) {
	var (
		ev                      models.WebhookEvent
		endTime, processedAt    sql.NullTime
		duration                sql.NullInt64
		errorMessage, procError sql.NullString
		input, output, metadata sql.NullString
	)
	err := row.Scan(
		&ev.ID, &ev.IntegrationID, &ev.WorkflowID, &ev.WorkflowName, &ev.ExecutionID, &ev.EventType, &ev.Status,
		&ev.StartTime, &endTime, &duration, &errorMessage, &input, &output, &metadata,
		&ev.ProcessingStatus, &procError, &ev.CreatedAt, &processedAt,
	)
	if err != nil {
		return nil, err
	}
	ev.StartTime = ev.StartTime.UTC()
	ev.CreatedAt = ev.CreatedAt.UTC()
	ev.EndTime = nullTimePtr(endTime)
	ev.ProcessedAt = nullTimePtr(processedAt)
	ev.Duration = nullInt64Ptr(duration)
	ev.ErrorMessage = nullStringPtr(errorMessage)
	ev.ProcessingError = nullStringPtr(procError)

	// пустые поля остаются nil, чтобы при повторной обработке сработали предупреждения
	if input.Valid && input.String != "" {
		if ev.InputData, err = decodeJSONMap(input); err != nil {
			return nil, fmt.Errorf("decode input data: %w", err)
		}
	}
	if output.Valid && output.String != "" {
		if ev.OutputData, err = decodeJSONMap(output); err != nil {
			return nil, fmt.Errorf("decode output data: %w", err)
		}
	}
	if metadata.Valid && metadata.String != "" {
		if ev.Metadata, err = decodeJSONMap(metadata); err != nil {
			return nil, fmt.Errorf("decode event metadata: %w", err)
		}
	}
	return &ev, nil
}

func optionalJSON(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	return encodeJSON(m)
}

// UpsertWebhookEvent stores an event keyed by (integration_id, execution_id).
// An existing row keeps its id and creation time. The returned event is the stored
// state before this write; it is nil when the row was inserted.
func (db *DB) UpsertWebhookEvent(ctx context.Context, ev *models.WebhookEvent) (*models.WebhookEvent, error) {
	input, err := optionalJSON(ev.InputData)
	if err != nil {
		return nil, fmt.Errorf("encode input data: %w", err)
	}
	output, err := optionalJSON(ev.OutputData)
	if err != nil {
		return nil, fmt.Errorf("encode output data: %w", err)
	}
	metadata, err := optionalJSON(ev.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode event metadata: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	previous, err := scanWebhookEvent(tx.QueryRowContext(ctx,
		`SELECT `+webhookEventColumns+` FROM webhook_events WHERE integration_id = ? AND execution_id = ?`,
		ev.IntegrationID, ev.ExecutionID))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		previous = nil
	case err != nil:
		return nil, fmt.Errorf("failed to look up webhook event: %w", err)
	}

	if ev.ProcessingStatus == "" {
		ev.ProcessingStatus = models.ProcessingPending
	}

	if previous == nil {
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		ev.CreatedAt = time.Now().UTC()
		_, err = tx.ExecContext(ctx, `INSERT INTO webhook_events (`+webhookEventColumns+`)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.ID, ev.IntegrationID, ev.WorkflowID, ev.WorkflowName, ev.ExecutionID, ev.EventType, ev.Status,
			ev.StartTime.UTC(), timeArg(ev.EndTime), ev.Duration, ev.ErrorMessage, input, output, metadata,
			ev.ProcessingStatus, ev.ProcessingError, ev.CreatedAt, timeArg(ev.ProcessedAt),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert webhook event: %w", err)
		}
	} else {
		ev.ID = previous.ID
		ev.CreatedAt = previous.CreatedAt
		_, err = tx.ExecContext(ctx, `UPDATE webhook_events SET workflow_id = ?, workflow_name = ?, event_type = ?,
              status = ?, start_time = ?, end_time = ?, duration = ?, error_message = ?, input_data = ?,
              output_data = ?, metadata = ? WHERE id = ?`,
			ev.WorkflowID, ev.WorkflowName, ev.EventType, ev.Status, ev.StartTime.UTC(), timeArg(ev.EndTime),
			ev.Duration, ev.ErrorMessage, input, output, metadata, ev.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to update webhook event: %w", err)
		}
		ev.ProcessingStatus = previous.ProcessingStatus
		ev.ProcessingError = previous.ProcessingError
		ev.ProcessedAt = previous.ProcessedAt
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit webhook event: %w", err)
	}
	return previous, nil
}

// GetWebhookEvent returns an event by id.
func (db *DB) GetWebhookEvent(ctx context.Context, id string) (*models.WebhookEvent, error) {
	ev, err := scanWebhookEvent(db.QueryRowContext(ctx, `SELECT `+webhookEventColumns+` FROM webhook_events WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("webhook event %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook event: %w", err)
	}
	return ev, nil
}

// ListPendingWebhookEvents returns unprocessed events of an integration, oldest first.
func (db *DB) ListPendingWebhookEvents(ctx context.Context, integrationID string) ([]*models.WebhookEvent, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+webhookEventColumns+` FROM webhook_events
              WHERE integration_id = ? AND processing_status = ? ORDER BY created_at ASC, id`,
		integrationID, models.ProcessingPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending webhook events: %w", err)
	}
	defer rows.Close()

	var events []*models.WebhookEvent
	for rows.Next() {
		ev, err := scanWebhookEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// MarkWebhookEvent sets the processing outcome of an event.
func (db *DB) MarkWebhookEvent(ctx context.Context, id, status string, processingError *string) error {
	now := time.Now().UTC()
	res, err := db.ExecContext(ctx, `UPDATE webhook_events SET processing_status = ?, processing_error = ?, processed_at = ?
              WHERE id = ?`, status, processingError, now, id)
	if err != nil {
		return fmt.Errorf("failed to mark webhook event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("webhook event %s: %w", id, ErrNotFound)
	}
	return nil
}
