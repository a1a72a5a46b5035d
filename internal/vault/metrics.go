package vault

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// vaultRequestsTotal counts gateway operations by outcome.
	vaultRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_pki_requests_total",
			Help: "Total number of Vault PKI operations",
		},
		[]string{"operation", "status"},
	)

	// vaultRequestDuration measures gateway operation duration, retries included.
	vaultRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vault_pki_request_duration_seconds",
			Help:    "Duration of Vault PKI operations in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"operation"},
	)

	// vaultAttemptsTotal counts individual request attempts by outcome.
	vaultAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_pki_attempts_total",
			Help: "Total number of Vault request attempts",
		},
		[]string{"outcome"},
	)

	// vaultHealthChecksTotal counts health probes by diagnosed state.
	vaultHealthChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_pki_health_checks_total",
			Help: "Total number of Vault health probes by diagnosed state",
		},
		[]string{"state"},
	)

	// vaultConnectionErrors counts transport-level failures.
	vaultConnectionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vault_pki_connection_errors_total",
			Help: "Total number of Vault connection errors",
		},
	)
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// RecordRequest records a completed gateway operation.
func RecordRequest(operation string, duration time.Duration, success bool) {
	status := statusSuccess
	if !success {
		status = statusError
	}
	vaultRequestsTotal.WithLabelValues(operation, status).Inc()
	vaultRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordAttempt records the outcome of one request attempt.
func RecordAttempt(o outcome) {
	vaultAttemptsTotal.WithLabelValues(o.String()).Inc()
}

// RecordHealthCheck records a diagnosed health state.
func RecordHealthCheck(c HealthCondition) {
	vaultHealthChecksTotal.WithLabelValues(c.String()).Inc()
}

// RecordConnectionError records a transport-level failure.
func RecordConnectionError() {
	vaultConnectionErrors.Inc()
}
