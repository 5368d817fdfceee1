package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received *Event
	var callCount int

	bus.Subscribe(EventSyncJobCompleted, func(event *Event) error {
		received = event
		callCount++
		return nil
	})

	duration := int64(1200)
	err := bus.PublishJSON(EventSyncJobCompleted, SyncJobEventPayload{
		JobID:            "job-1",
		BusinessEntityID: "tenant-1",
		JobType:          "ga4_daily",
		Status:           "completed",
		DurationMs:       &duration,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, callCount)
	require.NotNil(t, received)
	assert.Equal(t, EventSyncJobCompleted, received.Type)
	assert.False(t, received.CreatedAt.IsZero())

	var decoded SyncJobEventPayload
	require.NoError(t, received.Decode(&decoded))
	assert.Equal(t, "job-1", decoded.JobID)
	require.NotNil(t, decoded.DurationMs)
	assert.Equal(t, int64(1200), *decoded.DurationMs)
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	var count1, count2 int

	bus.Subscribe("event", func(_ *Event) error { count1++; return nil })
	bus.Subscribe("event", func(_ *Event) error { count2++; return nil })
	bus.Subscribe("other", func(_ *Event) error { t.Error("unexpected handler call"); return nil })

	require.NoError(t, bus.PublishJSON("event", nil))

	assert.Equal(t, 1, count1)
	assert.Equal(t, 1, count2)
}

func TestEventBusCollectsHandlerErrors(t *testing.T) {
	bus := NewEventBus()
	var ran int

	bus.Subscribe(EventSyncAlert, func(_ *Event) error { ran++; return errors.New("slack down") })
	bus.Subscribe(EventSyncAlert, func(_ *Event) error { ran++; return nil })
	bus.Subscribe(EventSyncAlert, func(_ *Event) error { ran++; return errors.New("smtp down") })

	err := bus.PublishJSON(EventSyncAlert, map[string]string{"tenant": "t1"})
	require.Error(t, err)
	assert.Equal(t, 3, ran)
	assert.Contains(t, err.Error(), "slack down")
	assert.Contains(t, err.Error(), "smtp down")
}

func TestNilBusPublish(t *testing.T) {
	var bus *EventBus
	assert.NoError(t, bus.PublishJSON(EventSyncJobFailed, SyncJobEventPayload{}))
}

func TestDecodeInvalidPayload(t *testing.T) {
	ev := &Event{Type: "x", Payload: []byte("{")}
	var v map[string]any
	assert.Error(t, ev.Decode(&v))
}
