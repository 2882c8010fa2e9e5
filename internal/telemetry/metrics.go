package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	VerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_verifications_total",
		Help: "Verification attempts by outcome.",
	}, []string{"outcome"})

	LedgerQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_query_duration_seconds",
		Help:    "Latency of transaction lookups against the ledger node.",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	LedgerCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_cache_lookups_total",
		Help: "Ledger transaction cache lookups by result.",
	}, []string{"result"})

	WebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_deliveries_total",
		Help: "Merchant webhook deliveries by outcome.",
	}, []string{"outcome"})

	StateEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_state_events_total",
		Help: "Payment state change events published.",
	}, []string{"state", "result"})
)
