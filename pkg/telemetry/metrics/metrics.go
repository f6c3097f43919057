// Package metrics provides the gateway's Prometheus instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "kiro"
	subsystem = "gateway"
)

// Metrics holds every collector the gateway records into. All methods
// are safe on a nil receiver so metrics can be disabled by simply not
// constructing it.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	tokensTotal     *prometheus.CounterVec

	firstTokenRetriesTotal prometheus.Counter
	upstreamErrorsTotal    *prometheus.CounterVec
	authRefreshTotal       *prometheus.CounterVec

	accountsHealthy prometheus.Gauge
	managersCached  prometheus.Gauge
	limiterInflight prometheus.Gauge
	backoffActive   prometheus.Gauge

	truncationRecoveriesTotal prometheus.Counter
	usageRowsFlushedTotal     prometheus.Counter
}

// New creates and registers all gateway collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "requests_total",
				Help:      "Completed API requests by dialect, model and status",
			},
			[]string{"dialect", "model", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "request_duration_seconds",
				Help:      "Whole-request duration in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"dialect", "model"},
		),
		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "tokens_total",
				Help:      "Tokens processed by model and type",
			},
			[]string{"model", "type"},
		),

		firstTokenRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "first_token_retries_total",
				Help:      "Streaming attempts abandoned for a slow first token",
			},
		),
		upstreamErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "upstream_errors_total",
				Help:      "Upstream call failures by reason",
			},
			[]string{"reason"},
		),
		authRefreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "auth_refresh_total",
				Help:      "Token refresh attempts by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),

		accountsHealthy: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "accounts_healthy",
				Help:      "Active accounts below the error threshold",
			},
		),
		managersCached: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "auth_managers_cached",
				Help:      "Auth managers currently cached by the pool",
			},
		),
		limiterInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "limiter_inflight",
				Help:      "Requests currently holding an admission slot",
			},
		),
		backoffActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "limiter_backoff_active",
				Help:      "1 while a global 429 backoff window is open",
			},
		),

		truncationRecoveriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "truncation_recoveries_total",
				Help:      "Tool calls repaired by truncation recovery",
			},
		),
		usageRowsFlushedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "usage_rows_flushed_total",
				Help:      "Usage rows written to the database",
			},
		),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.tokensTotal,
		m.firstTokenRetriesTotal,
		m.upstreamErrorsTotal,
		m.authRefreshTotal,
		m.accountsHealthy,
		m.managersCached,
		m.limiterInflight,
		m.backoffActive,
		m.truncationRecoveriesTotal,
		m.usageRowsFlushedTotal,
	)

	return m
}

// Handler returns the scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest records one completed API request.
func (m *Metrics) RecordRequest(dialect, model, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(dialect, model, status).Inc()
	m.requestDuration.WithLabelValues(dialect, model).Observe(duration.Seconds())
}

// RecordTokens records prompt and completion token counts.
func (m *Metrics) RecordTokens(model string, promptTokens, completionTokens int) {
	if m == nil {
		return
	}
	if promptTokens > 0 {
		m.tokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.tokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
}

// RecordFirstTokenRetry counts one abandoned slow-start attempt.
func (m *Metrics) RecordFirstTokenRetry() {
	if m == nil {
		return
	}
	m.firstTokenRetriesTotal.Inc()
}

// RecordUpstreamError counts one upstream failure.
func (m *Metrics) RecordUpstreamError(reason string) {
	if m == nil {
		return
	}
	m.upstreamErrorsTotal.WithLabelValues(reason).Inc()
}

// RecordAuthRefresh counts one token refresh attempt.
func (m *Metrics) RecordAuthRefresh(kind, outcome string) {
	if m == nil {
		return
	}
	m.authRefreshTotal.WithLabelValues(kind, outcome).Inc()
}

// SetPoolGauges updates the account pool gauges.
func (m *Metrics) SetPoolGauges(healthyAccounts, cachedManagers int) {
	if m == nil {
		return
	}
	m.accountsHealthy.Set(float64(healthyAccounts))
	m.managersCached.Set(float64(cachedManagers))
}

// SetLimiterInflight updates the admission gate gauge.
func (m *Metrics) SetLimiterInflight(n int) {
	if m == nil {
		return
	}
	m.limiterInflight.Set(float64(n))
}

// SetBackoffActive flags an open 429 backoff window.
func (m *Metrics) SetBackoffActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.backoffActive.Set(1)
	} else {
		m.backoffActive.Set(0)
	}
}

// RecordTruncationRecovery counts one repaired tool call.
func (m *Metrics) RecordTruncationRecovery() {
	if m == nil {
		return
	}
	m.truncationRecoveriesTotal.Inc()
}

// RecordUsageFlush counts usage rows written to the database.
func (m *Metrics) RecordUsageFlush(rows int) {
	if m == nil {
		return
	}
	m.usageRowsFlushedTotal.Add(float64(rows))
}
