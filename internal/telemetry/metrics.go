package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Validation outcomes
const (
	OutcomeAuthenticated = "authenticated"
	OutcomeLoginRedirect = "login_redirect"
	OutcomeError         = "error"
)

// Redirect decisions
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
	DecisionEmpty = "empty"
)

// Metrics holds the Prometheus collectors of the gateway
type Metrics struct {
	validationsTotal   *prometheus.CounterVec
	validationDuration prometheus.Histogram
	redirectDecisions  *prometheus.CounterVec
	tokenRefreshes     *prometheus.CounterVec
	logins             *prometheus.CounterVec
	logouts            prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates the collectors on a private registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		validationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forwardauth_validations_total",
				Help: "Total number of validation requests by outcome",
			},
			[]string{"outcome"},
		),
		validationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "forwardauth_validation_duration_seconds",
				Help:    "Validation latency in seconds",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		redirectDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forwardauth_redirect_decisions_total",
				Help: "Total number of post-login redirect decisions",
			},
			[]string{"decision"},
		),
		tokenRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forwardauth_token_refreshes_total",
				Help: "Total number of session token refresh attempts by status",
			},
			[]string{"status"},
		),
		logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forwardauth_logins_total",
				Help: "Total number of login completions by identity source",
			},
			[]string{"source"},
		),
		logouts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "forwardauth_logouts_total",
				Help: "Total number of logouts",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.validationsTotal,
		m.validationDuration,
		m.redirectDecisions,
		m.tokenRefreshes,
		m.logins,
		m.logouts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// RecordValidation records the outcome and latency of one validation
func (m *Metrics) RecordValidation(outcome string, duration time.Duration) {
	m.validationsTotal.WithLabelValues(outcome).Inc()
	m.validationDuration.Observe(duration.Seconds())
}

// RecordRedirectDecision records a post-login redirect decision
func (m *Metrics) RecordRedirectDecision(decision string) {
	m.redirectDecisions.WithLabelValues(decision).Inc()
}

// RecordTokenRefresh records a refresh attempt with status "success" or "error"
func (m *Metrics) RecordTokenRefresh(status string) {
	m.tokenRefreshes.WithLabelValues(status).Inc()
}

// RecordLogin records a completed login
func (m *Metrics) RecordLogin(source string) {
	m.logins.WithLabelValues(source).Inc()
}

// RecordLogout records a logout
func (m *Metrics) RecordLogout() {
	m.logouts.Inc()
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
