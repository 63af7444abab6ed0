// Package metrics exports Hydra's operational metrics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ahrav/go-hydra/internal/ports"
)

const namespace = "hydra"

// PrometheusMetrics implements ports.MetricsCollector using Prometheus.
// Known metric names map onto dedicated vectors; anything else lands in the
// generic operation counter, gauge and histogram.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	decisions            *prometheus.CounterVec
	verdicts             *prometheus.CounterVec
	discrepancies        *prometheus.CounterVec
	notificationFailures *prometheus.CounterVec
	pendingReminders     prometheus.Counter

	llmRequests *prometheus.CounterVec
	llmTokens   *prometheus.CounterVec
	llmLatency  *prometheus.HistogramVec

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	operationLatency *prometheus.HistogramVec
	operationCounter *prometheus.CounterVec
	observations     *prometheus.HistogramVec
	systemGauges     *prometheus.GaugeVec
}

// NewPrometheusMetrics registers every Hydra metric in a fresh registry
// that also carries the Go runtime and process collectors.
func NewPrometheusMetrics() *PrometheusMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &PrometheusMetrics{
		registry: reg,

		// Interview and contest metrics.
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Final hiring decisions applied, by decision.",
		}, []string{"decision"}),
		verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Verdicts produced by the arbiter pipeline, by automatic decision.",
		}, []string{"auto_decision"}),
		discrepancies: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discrepancies_total",
			Help:      "User/arbiter disagreements escalated to an evolution record, by model.",
		}, []string{"model"}),
		notificationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Notifications that failed to deliver, by channel.",
		}, []string{"channel"}),
		pendingReminders: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pending_reminders_total",
			Help:      "Reminders sent for verdicts awaiting a decision.",
		}),

		// LLM metrics.
		llmRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "LLM completion requests, by provider, model and status.",
		}, []string{"provider", "model", "status"}),
		llmTokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Tokens consumed by LLM requests.",
		}, []string{"provider", "model", "token_type"}),
		llmLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_latency_seconds",
			Help:      "LLM completion latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"provider", "model", "status"}),

		// HTTP metrics.
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		// General metrics.
		operationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Execution time of internal operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "scheme"}),
		operationCounter: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Counters without a dedicated metric.",
		}, []string{"metric"}),
		observations: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "observations",
			Help:      "Histogram values without a dedicated metric.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"metric"}),
		systemGauges: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "system_state",
			Help:      "Current values of system gauges.",
		}, []string{"metric"}),
	}
}

// Registry exposes the underlying registry for gathering.
func (pm *PrometheusMetrics) Registry() *prometheus.Registry { return pm.registry }

// Handler serves the registry in the Prometheus exposition format.
func (pm *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{Registry: pm.registry})
}

// RecordLatency implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	if operation == "http_request" {
		pm.httpLatency.WithLabelValues(label(labels, "method"), label(labels, "route")).Observe(duration.Seconds())
		pm.httpRequests.WithLabelValues(label(labels, "method"), label(labels, "route"), label(labels, "status")).Inc()
		return
	}
	pm.operationLatency.WithLabelValues(operation, label(labels, "scheme")).Observe(duration.Seconds())
}

// RecordCounter implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	if value < 0 {
		return
	}
	switch metric {
	case "decisions_total":
		pm.decisions.WithLabelValues(label(labels, "decision")).Add(value)
	case "verdicts_total":
		pm.verdicts.WithLabelValues(label(labels, "auto_decision")).Add(value)
	case "discrepancies_total":
		pm.discrepancies.WithLabelValues(label(labels, "model")).Add(value)
	case "notification_failures_total":
		pm.notificationFailures.WithLabelValues(label(labels, "channel")).Add(value)
	case "pending_reminders_total":
		pm.pendingReminders.Add(value)
	case "llm_requests_total":
		pm.llmRequests.WithLabelValues(label(labels, "provider"), label(labels, "model"), label(labels, "status")).Add(value)
	case "llm_tokens_total":
		pm.llmTokens.WithLabelValues(label(labels, "provider"), label(labels, "model"), label(labels, "token_type")).Add(value)
	default:
		pm.operationCounter.WithLabelValues(metric).Add(value)
	}
}

// RecordGauge implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, _ map[string]string) {
	pm.systemGauges.WithLabelValues(metric).Set(value)
}

// RecordHistogram implements ports.MetricsCollector.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	if metric == "llm_latency_seconds" {
		pm.llmLatency.WithLabelValues(label(labels, "provider"), label(labels, "model"), label(labels, "status")).Observe(value)
		return
	}
	pm.observations.WithLabelValues(metric).Observe(value)
}

// label returns labels[key] or "unknown" when it is missing or empty.
func label(labels map[string]string, key string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return "unknown"
}

var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
