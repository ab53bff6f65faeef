package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TokensIssued counts issued tokens by purpose (invite|signup_confirmation) and
	// delivery result (sent|delivery_failed).
	TokensIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formtrack_tokens_issued_total",
			Help: "Total number of invite and confirmation tokens issued",
		},
		[]string{"purpose", "delivery"},
	)

	// TokenVerifications counts verification attempts by purpose and outcome
	// (success|invalid|already_used|expired|error).
	TokenVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formtrack_token_verifications_total",
			Help: "Total number of token verification attempts",
		},
		[]string{"purpose", "result"},
	)

	// AuthAttempts records sign-in attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formtrack_auth_attempts_total",
			Help: "Total number of sign-in attempts",
		},
		[]string{"result"},
	)

	// NotificationsDispatched counts notifications handled by the dispatcher by result
	// (sent|send_failed|skipped|duplicate).
	NotificationsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formtrack_notifications_dispatched_total",
			Help: "Notifications processed by the email dispatcher",
		},
		[]string{"result"},
	)

	// DispatchRuns counts dispatcher invocations by outcome (completed|busy|failed).
	DispatchRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formtrack_dispatch_runs_total",
			Help: "Notification dispatch runs",
		},
		[]string{"outcome"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "formtrack_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
