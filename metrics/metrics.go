// Package metrics exposes prometheus collectors for sync runs and
// webhook deliveries. A nil *Metrics is valid and records nothing, so
// library code does not need to guard every call site.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	syncRuns         *prometheus.CounterVec
	syncDuration     *prometheus.HistogramVec
	recordsProcessed *prometheus.CounterVec
	webhookEvents    *prometheus.CounterVec
	webhookRetries   *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "integration_sync_runs_total",
			Help: "Sync runs by provider, type and terminal status.",
		}, []string{"provider", "sync_type", "status"}),
		syncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "integration_sync_duration_seconds",
			Help:    "Wall-clock duration of sync runs.",
			Buckets: []float64{0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"provider", "sync_type"}),
		recordsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "integration_sync_records_total",
			Help: "Records touched by sync runs, by outcome.",
		}, []string{"provider", "outcome"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "integration_webhook_events_total",
			Help: "Inbound webhook events by provider and terminal status.",
		}, []string{"provider", "status"}),
		webhookRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "integration_webhook_retries_total",
			Help: "Webhook processing retry attempts by provider.",
		}, []string{"provider"}),
	}

	reg.MustRegister(m.syncRuns, m.syncDuration, m.recordsProcessed, m.webhookEvents, m.webhookRetries)

	return m
}

func (m *Metrics) ObserveSync(provider, syncType, status string, d time.Duration, processed, created, updated, failed int) {
	if m == nil {
		return
	}

	m.syncRuns.WithLabelValues(provider, syncType, status).Inc()
	m.syncDuration.WithLabelValues(provider, syncType).Observe(d.Seconds())
	m.recordsProcessed.WithLabelValues(provider, "processed").Add(float64(processed))
	m.recordsProcessed.WithLabelValues(provider, "created").Add(float64(created))
	m.recordsProcessed.WithLabelValues(provider, "updated").Add(float64(updated))
	m.recordsProcessed.WithLabelValues(provider, "failed").Add(float64(failed))
}

func (m *Metrics) ObserveWebhook(provider, status string) {
	if m == nil {
		return
	}

	m.webhookEvents.WithLabelValues(provider, status).Inc()
}

func (m *Metrics) ObserveWebhookRetry(provider string) {
	if m == nil {
		return
	}

	m.webhookRetries.WithLabelValues(provider).Inc()
}
