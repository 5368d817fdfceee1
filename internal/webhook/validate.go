package webhook

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"bizpulse/internal/models"

	"github.com/go-playground/validator/v10"
)

const (
	EventWorkflowStarted   = "workflow_started"
	EventWorkflowCompleted = "workflow_completed"
	EventWorkflowFailed    = "workflow_failed"
	EventNodeExecuted      = "node_executed"
	EventCustomMetric      = "custom_metric"

	StatusRunning   = "running"
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusWaiting   = "waiting"
	StatusCancelled = "cancelled"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validation is the outcome of ValidateAndNormalizePayload.
// Event is set only when Errors is empty; its IntegrationID is left blank.
type Validation struct {
	Event    *models.WebhookEvent
	Errors   []string
	Warnings []string
}

func (v Validation) Valid() bool {
	return len(v.Errors) == 0
}

// ValidateAndNormalizePayload checks an n8n payload and converts it into an event record.
// It has no side effects and is shared by the live endpoint and the replay job.
func ValidateAndNormalizePayload(p models.WebhookPayload) Validation {
	var out Validation

	p.WorkflowID = strings.TrimSpace(p.WorkflowID)
	p.WorkflowName = strings.TrimSpace(p.WorkflowName)
	p.ExecutionID = strings.TrimSpace(p.ExecutionID)
	p.EventType = strings.TrimSpace(p.EventType)
	p.Status = strings.TrimSpace(p.Status)
	p.StartTime = strings.TrimSpace(p.StartTime)
	p.EndTime = strings.TrimSpace(p.EndTime)

	if err := validate.Struct(p); err != nil {
		out.Errors = formatValidationErrors(err)
	}

	if p.InputData == nil {
		out.Warnings = append(out.Warnings, "inputData is missing")
	}
	if p.OutputData == nil {
		out.Warnings = append(out.Warnings, "outputData is missing")
	}
	if !out.Valid() {
		return out
	}

	start, err := time.Parse(time.RFC3339, p.StartTime)
	if err != nil {
		out.Errors = append(out.Errors, "startTime must be an ISO8601 timestamp")
		return out
	}

	ev := &models.WebhookEvent{
		WorkflowID:       p.WorkflowID,
		WorkflowName:     p.WorkflowName,
		ExecutionID:      p.ExecutionID,
		EventType:        p.EventType,
		Status:           p.Status,
		StartTime:        start.UTC(),
		InputData:        p.InputData,
		OutputData:       p.OutputData,
		Metadata:         p.Metadata,
		ProcessingStatus: models.ProcessingPending,
	}

	if p.EndTime != "" {
		end, err := time.Parse(time.RFC3339, p.EndTime)
		if err != nil {
			out.Errors = append(out.Errors, "endTime must be an ISO8601 timestamp")
			return out
		}
		if end.Before(start) {
			out.Errors = append(out.Errors, "endTime must not be before startTime")
			return out
		}
		end = end.UTC()
		ev.EndTime = &end
	}

	switch {
	case p.Duration != nil:
		d := *p.Duration
		ev.Duration = &d
	case ev.EndTime != nil:
		d := ev.EndTime.Sub(ev.StartTime).Milliseconds()
		ev.Duration = &d
	}

	if msg := strings.TrimSpace(p.ErrorMessage); msg != "" {
		ev.ErrorMessage = &msg
	} else if isFailure(ev) {
		out.Warnings = append(out.Warnings, "errorMessage is missing for a failed execution")
	}

	out.Event = ev
	return out
}

// PayloadFromEvent converts a stored event back into the wire payload.
// endTime, duration and errorMessage are included only when present.
func PayloadFromEvent(ev *models.WebhookEvent) models.WebhookPayload {
	p := models.WebhookPayload{
		WorkflowID:   ev.WorkflowID,
		WorkflowName: ev.WorkflowName,
		ExecutionID:  ev.ExecutionID,
		EventType:    ev.EventType,
		Status:       ev.Status,
		StartTime:    ev.StartTime.UTC().Format(time.RFC3339Nano),
		InputData:    ev.InputData,
		OutputData:   ev.OutputData,
		Metadata:     ev.Metadata,
	}
	if ev.EndTime != nil {
		p.EndTime = ev.EndTime.UTC().Format(time.RFC3339Nano)
	}
	if ev.Duration != nil {
		d := *ev.Duration
		p.Duration = &d
	}
	if ev.ErrorMessage != nil {
		p.ErrorMessage = *ev.ErrorMessage
	}
	return p
}

func isFailure(ev *models.WebhookEvent) bool {
	return ev.Status == StatusError || ev.EventType == EventWorkflowFailed
}

func isTerminal(ev *models.WebhookEvent) bool {
	switch ev.EventType {
	case EventWorkflowCompleted, EventWorkflowFailed:
		return true
	}
	return false
}

func formatValidationErrors(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, e := range verrs {
		switch e.Tag() {
		case "required":
			out = append(out, fmt.Sprintf("%s is required", e.Field()))
		case "oneof":
			out = append(out, fmt.Sprintf("%s must be one of: %s", e.Field(), e.Param()))
		case "datetime":
			out = append(out, fmt.Sprintf("%s must be an ISO8601 timestamp", e.Field()))
		case "gte":
			out = append(out, fmt.Sprintf("%s must be greater than or equal to %s", e.Field(), e.Param()))
		default:
			out = append(out, fmt.Sprintf("%s is invalid", e.Field()))
		}
	}
	return out
}
