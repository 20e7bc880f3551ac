// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registration outcomes used as the "outcome" label.
const (
	OutcomeSuccess           = "success"
	OutcomeNotFound          = "not_found"
	OutcomeNotYetOpen        = "not_yet_open"
	OutcomeClosed            = "closed"
	OutcomeSoldOut           = "sold_out"
	OutcomeAlreadyRegistered = "already_registered"
	OutcomeInvalidInput      = "invalid_input"
	OutcomeStorageError      = "storage_error"
)

var (
	registrationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registration_attempts_total",
			Help: "Registration attempts by outcome",
		},
		[]string{"outcome"},
	)

	registrationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "registration_duration_seconds",
			Help:    "Time spent handling a registration attempt",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"outcome"},
	)

	publishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "registration_publish_failures_total",
			Help: "registration.confirmed messages that could not be published",
		},
	)
)

// ObserveRegistration records one registration attempt.
func ObserveRegistration(outcome string, took time.Duration) {
	registrationAttempts.WithLabelValues(outcome).Inc()
	registrationDuration.WithLabelValues(outcome).Observe(took.Seconds())
}

// PublishFailed counts a failed confirmation publish.
func PublishFailed() {
	publishFailures.Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}
