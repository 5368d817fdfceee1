package webhook

import (
	"context"
	"errors"
	"fmt"

	"bizpulse/internal/database"
	"bizpulse/internal/domain"
	"bizpulse/internal/models"

	"github.com/rs/zerolog"
)

var (
	ErrIntegrationNotFound = errors.New("integration not found")
	ErrIntegrationInactive = errors.New("integration is inactive")
	ErrNotN8nIntegration   = errors.New("integration is not an n8n integration")
	ErrStoreEvent          = errors.New("failed to store webhook event")
)

const metricTypeAutomation = "automation"

// Processor stores n8n webhook events and turns them into metrics.
type Processor struct {
	events       domain.WebhookEventStore
	integrations domain.IntegrationStore
	metrics      domain.MetricWriter
	logger       zerolog.Logger
}

func NewProcessor(events domain.WebhookEventStore, integrations domain.IntegrationStore, metrics domain.MetricWriter, logger *zerolog.Logger) *Processor {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "webhook").Logger()
	}
	return &Processor{events: events, integrations: integrations, metrics: metrics, logger: l}
}

// ProcessWebhookEvent validates, stores and applies one payload.
// Redelivery of an already processed event is acknowledged without writing metrics again.
func (p *Processor) ProcessWebhookEvent(ctx context.Context, integrationID string, payload models.WebhookPayload) models.ProcessResult {
	v := ValidateAndNormalizePayload(payload)
	result := models.ProcessResult{Warnings: v.Warnings}
	if !v.Valid() {
		result.Errors = v.Errors
		return result
	}

	integration, err := p.resolveIntegration(ctx, integrationID)
	if err != nil {
		result.Errors = []string{err.Error()}
		return result
	}

	ev := v.Event
	ev.IntegrationID = integration.ID
	previous, err := p.events.UpsertWebhookEvent(ctx, ev)
	if err != nil {
		p.logger.Error().Err(err).Str("execution_id", ev.ExecutionID).Msg("failed to store webhook event")
		result.Errors = []string{ErrStoreEvent.Error()}
		return result
	}
	result.EventID = ev.ID

	if previous != nil && previous.ProcessingStatus == models.ProcessingProcessed &&
		previous.EventType == ev.EventType && previous.Status == ev.Status {
		result.Success = true
		result.Warnings = append(result.Warnings, "event already processed")
		return result
	}

	metrics, warnings := buildMetrics(integration.BusinessEntityID, ev)
	result.Warnings = append(result.Warnings, warnings...)

	for _, m := range metrics {
		if err := p.metrics.CreateMetric(ctx, m); err != nil {
			msg := fmt.Sprintf("failed to write metric %s: %v", m.MetricName, err)
			p.markEvent(ctx, ev.ID, models.ProcessingFailed, &msg)
			result.Errors = append(result.Errors, msg)
			return result
		}
	}

	p.markEvent(ctx, ev.ID, models.ProcessingProcessed, nil)

	p.logger.Debug().
		Str("integration_id", integration.ID).
		Str("execution_id", ev.ExecutionID).
		Str("event_type", ev.EventType).
		Int("metrics", len(metrics)).
		Msg("webhook event processed")

	result.Success = true
	result.Metrics = metrics
	return result
}

// Enqueue validates and stores a payload as pending without processing it.
// The n8n realtime job replays pending events later.
func (p *Processor) Enqueue(ctx context.Context, integrationID string, payload models.WebhookPayload) models.ProcessResult {
	v := ValidateAndNormalizePayload(payload)
	result := models.ProcessResult{Warnings: v.Warnings}
	if !v.Valid() {
		result.Errors = v.Errors
		return result
	}

	integration, err := p.resolveIntegration(ctx, integrationID)
	if err != nil {
		result.Errors = []string{err.Error()}
		return result
	}

	ev := v.Event
	ev.IntegrationID = integration.ID
	if _, err := p.events.UpsertWebhookEvent(ctx, ev); err != nil {
		p.logger.Error().Err(err).Str("execution_id", ev.ExecutionID).Msg("failed to store webhook event")
		result.Errors = []string{ErrStoreEvent.Error()}
		return result
	}
	if ev.ProcessingStatus != models.ProcessingPending {
		// строка уже обработана ранее, возвращаем её в очередь с новыми данными
		p.markEvent(ctx, ev.ID, models.ProcessingPending, nil)
	}

	result.Success = true
	result.EventID = ev.ID
	return result
}

func (p *Processor) resolveIntegration(ctx context.Context, integrationID string) (*models.Integration, error) {
	integration, err := p.integrations.GetIntegration(ctx, integrationID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrIntegrationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load integration: %w", err)
	}
	if integration.Type != models.IntegrationN8n {
		return nil, ErrNotN8nIntegration
	}
	if integration.Status != models.IntegrationStatusActive {
		return nil, ErrIntegrationInactive
	}
	return integration, nil
}

func (p *Processor) markEvent(ctx context.Context, id, status string, procErr *string) {
	if err := p.events.MarkWebhookEvent(ctx, id, status, procErr); err != nil {
		p.logger.Error().Err(err).Str("event_id", id).Str("status", status).Msg("failed to mark webhook event")
	}
}

func buildMetrics(tenantID string, ev *models.WebhookEvent) ([]*models.Metric, []string) {
	date := ev.StartTime
	if ev.EndTime != nil {
		date = *ev.EndTime
	}
	base := func(name string, value float64, unit string) *models.Metric {
		return &models.Metric{
			BusinessEntityID: tenantID,
			MetricType:       metricTypeAutomation,
			MetricName:       name,
			MetricValue:      value,
			MetricUnit:       unit,
			Source:           models.MetricSourceN8n,
			Date:             date,
			Timezone:         "UTC",
			Metadata: map[string]any{
				"workflowId":   ev.WorkflowID,
				"workflowName": ev.WorkflowName,
				"executionId":  ev.ExecutionID,
				"eventType":    ev.EventType,
				"status":       ev.Status,
			},
			Tags: []string{"n8n", "workflow:" + ev.WorkflowID},
		}
	}

	var (
		out      []*models.Metric
		warnings []string
	)
	if isTerminal(ev) {
		out = append(out, base("workflow_executions", 1, "count"))
		if ev.Duration != nil {
			out = append(out, base("workflow_duration", float64(*ev.Duration), "ms"))
		}
	}
	if isFailure(ev) {
		out = append(out, base("workflow_errors", 1, "count"))
	}

	if ev.EventType == EventCustomMetric {
		name, _ := ev.Metadata["metricName"].(string)
		value, ok := ev.Metadata["metricValue"].(float64)
		if name == "" || !ok {
			warnings = append(warnings, "custom_metric requires metadata.metricName and numeric metadata.metricValue")
		} else {
			unit, _ := ev.Metadata["metricUnit"].(string)
			m := base(name, value, unit)
			m.MetricType = "custom"
			out = append(out, m)
		}
	}
	return out, warnings
}
