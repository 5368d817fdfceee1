package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bizpulse_sync"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	jobsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Sync jobs by type and final status of the attempt.",
		},
		[]string{"job_type", "status"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of completed sync jobs.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"job_type"},
	)

	retriesScheduled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_scheduled_total",
			Help:      "Retries scheduled by the failure handler.",
		},
		[]string{"job_type"},
	)

	cronRegistrations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cron_registrations",
			Help:      "Live cron registrations across tenants.",
		},
	)

	alertsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts dispatched by sink and outcome.",
		},
		[]string{"sink", "outcome"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, jobsFinished, jobDuration, retriesScheduled, cronRegistrations, alertsSent)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// ObserveJob records the outcome of one job attempt.
func ObserveJob(jobType, status string, d time.Duration) {
	jobsFinished.WithLabelValues(jobType, status).Inc()
	if d > 0 {
		jobDuration.WithLabelValues(jobType).Observe(d.Seconds())
	}
}

// IncRetry counts a scheduled retry.
func IncRetry(jobType string) {
	retriesScheduled.WithLabelValues(jobType).Inc()
}

// SetCronRegistrations publishes the live registration count.
func SetCronRegistrations(n int) {
	cronRegistrations.Set(float64(n))
}

// IncAlert counts an alert delivery attempt.
func IncAlert(sink, outcome string) {
	alertsSent.WithLabelValues(sink, outcome).Inc()
}
