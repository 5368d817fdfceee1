package models

import "time"

// WebhookEvent is a stored n8n execution event.
type WebhookEvent struct {
	ID               string         `json:"id"`
	IntegrationID    string         `json:"integration_id"`
	WorkflowID       string         `json:"workflow_id"`
	WorkflowName     string         `json:"workflow_name"`
	ExecutionID      string         `json:"execution_id"`
	EventType        string         `json:"event_type"`
	Status           string         `json:"status"`
	StartTime        time.Time      `json:"start_time"`
	EndTime          *time.Time     `json:"end_time,omitempty"`
	Duration         *int64         `json:"duration,omitempty"`
	ErrorMessage     *string        `json:"error_message,omitempty"`
	InputData        map[string]any `json:"input_data,omitempty"`
	OutputData       map[string]any `json:"output_data,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	ProcessingStatus string         `json:"processing_status"`
	ProcessingError  *string        `json:"processing_error,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	ProcessedAt      *time.Time     `json:"processed_at,omitempty"`
}

// WebhookPayload is the wire shape of an n8n webhook body.
type WebhookPayload struct {
	WorkflowID   string         `json:"workflowId" validate:"required"`
	WorkflowName string         `json:"workflowName" validate:"required"`
	ExecutionID  string         `json:"executionId" validate:"required"`
	EventType    string         `json:"eventType" validate:"required,oneof=workflow_started workflow_completed workflow_failed node_executed custom_metric"`
	Status       string         `json:"status" validate:"required,oneof=running success error waiting cancelled"`
	StartTime    string         `json:"startTime" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	EndTime      string         `json:"endTime,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Duration     *int64         `json:"duration,omitempty" validate:"omitempty,gte=0"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	InputData    map[string]any `json:"inputData,omitempty"`
	OutputData   map[string]any `json:"outputData,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// ProcessResult is the outcome of processing one webhook payload.
type ProcessResult struct {
	Success  bool      `json:"success"`
	EventID  string    `json:"event_id,omitempty"`
	Metrics  []*Metric `json:"metrics,omitempty"`
	Errors   []string  `json:"errors,omitempty"`
	Warnings []string  `json:"warnings,omitempty"`
}
