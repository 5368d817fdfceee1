// Package alert delivers terminal sync failure alerts to log, Slack and email.
package alert

import (
	"context"
	"fmt"
	"strings"

	"bizpulse/internal/domain"
	"bizpulse/internal/events"
	"bizpulse/internal/metrics"
	"bizpulse/internal/models"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

// Sink is a named alert destination.
type Sink interface {
	domain.AlertSink
	Name() string
}

// Dispatcher fans an alert out to every sink and publishes it on the event bus.
type Dispatcher struct {
	sinks  []Sink
	bus    *events.EventBus
	logger zerolog.Logger
}

func NewDispatcher(bus *events.EventBus, logger *zerolog.Logger, sinks ...Sink) *Dispatcher {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "alert").Logger()
	}
	return &Dispatcher{sinks: sinks, bus: bus, logger: l}
}

// SendAlert tries every sink; a failing sink does not stop the others.
func (d *Dispatcher) SendAlert(ctx context.Context, alert models.SyncAlert) error {
	var result *multierror.Error
	for _, sink := range d.sinks {
		if err := sink.SendAlert(ctx, alert); err != nil {
			metrics.IncAlert(sink.Name(), "error")
			d.logger.Error().Err(err).
				Str("sink", sink.Name()).
				Str("tenant_id", alert.BusinessEntityID).
				Str("job_type", alert.JobType).
				Msg("alert delivery failed")
			result = multierror.Append(result, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		metrics.IncAlert(sink.Name(), "sent")
	}

	if err := d.bus.PublishJSON(events.EventSyncAlert, alert); err != nil {
		result = multierror.Append(result, fmt.Errorf("publish %s: %w", events.EventSyncAlert, err))
	}
	return result.ErrorOrNil()
}

// LogSink writes alerts to the structured log.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger *zerolog.Logger) *LogSink {
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	return &LogSink{logger: l}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) SendAlert(_ context.Context, alert models.SyncAlert) error {
	s.logger.Warn().
		Str("tenant_id", alert.BusinessEntityID).
		Str("job_type", alert.JobType).
		Int("retry_count", alert.RetryCount).
		Time("failed_at", alert.Timestamp).
		Str("error", alert.Error).
		Msg("sync job failed permanently")
	return nil
}

func subject(alert models.SyncAlert) string {
	return fmt.Sprintf("Sync failed: %s for %s", alert.JobType, alert.BusinessEntityID)
}

func plainText(alert models.SyncAlert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tenant: %s\n", alert.BusinessEntityID)
	fmt.Fprintf(&b, "Job type: %s\n", alert.JobType)
	fmt.Fprintf(&b, "Retries: %d\n", alert.RetryCount)
	fmt.Fprintf(&b, "Failed at: %s\n", alert.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "Error: %s\n", alert.Error)
	return b.String()
}
