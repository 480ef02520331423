package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	// Webhook
	WebhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Payment webhook deliveries by event type and outcome",
		},
		[]string{"type", "outcome"}, // applied|duplicate|ignored|rejected|failed
	)

	// Ledger
	CreditsGrantedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "credits_granted_total",
			Help: "Credits granted by completed payments, welcome bonus included",
		},
	)
	AccountsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "accounts_created_total",
			Help: "Accounts created by a first purchase",
		},
	)
	AccountCreateConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "account_create_conflicts_total",
			Help: "Account creations that lost a race and fell back to increment",
		},
	)
	AuditLogFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_log_failures_total",
			Help: "Payment record appends that failed after credits were granted",
		},
	)

	// Worker queue
	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Current worker queue depth",
		},
	)

	initOnce sync.Once
)

// /metrics endpoint handler
var Handler = promhttp.Handler

// Init registers the collectors with the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			RequestsTotal,
			WebhookEventsTotal,
			CreditsGrantedTotal,
			AccountsCreatedTotal,
			AccountCreateConflicts,
			AuditLogFailures,
			WorkerQueueDepth,
		)
	})
}
