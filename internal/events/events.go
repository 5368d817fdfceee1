package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
)

const (
	EventSyncJobStarted        = "sync_job_started"
	EventSyncJobCompleted      = "sync_job_completed"
	EventSyncJobRetryScheduled = "sync_job_retry_scheduled"
	EventSyncJobFailed         = "sync_job_failed"
	EventSyncAlert             = "sync_alert"
	EventCronRegistered        = "cron_registered"
)

// SyncJobEventPayload is the job snapshot handed to event consumers.
type SyncJobEventPayload struct {
	JobID            string     `json:"job_id"`
	BusinessEntityID string     `json:"business_entity_id"`
	JobType          string     `json:"job_type"`
	Status           string     `json:"status"`
	Trigger          string     `json:"trigger,omitempty"`
	RetryCount       int        `json:"retry_count"`
	DurationMs       *int64     `json:"duration_ms,omitempty"`
	Error            string     `json:"error,omitempty"`
	ErrorCode        string     `json:"error_code,omitempty"`
	NextRetryAt      *time.Time `json:"next_retry_at,omitempty"`
}

// CronEventPayload describes a cron (re)registration.
type CronEventPayload struct {
	BusinessEntityID string `json:"business_entity_id"`
	Family           string `json:"family"`
	Schedule         string `json:"schedule"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v interface{}) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish runs every subscriber synchronously. All handlers run even when some fail;
// their errors are combined.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var result *multierror.Error
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// PublishJSON serializes the payload and publishes an event. A nil bus is a no-op.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
}
