package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "broadcast_agent", Name: "fetches_total", Help: "List fetch attempts by outcome (issued, gated, error)"},
		[]string{"endpoint", "outcome"},
	)
	PushEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "broadcast_agent", Name: "push_events_total", Help: "Push channel events received by name"},
		[]string{"event"},
	)
	PushReconnects = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: "broadcast_agent", Name: "push_reconnects_total", Help: "Push channel reconnect attempts"},
	)
	AcceptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "broadcast_agent", Name: "accepts_total", Help: "Acceptance attempts by outcome (succeeded, conflict, failed, rejected)"},
		[]string{"outcome"},
	)
	OffersActive = promauto.NewGauge(
		prometheus.GaugeOpts{Namespace: "broadcast_agent", Name: "offers_active", Help: "Offers currently in the local active set"},
	)
	AgentOnline = promauto.NewGauge(
		prometheus.GaugeOpts{Namespace: "broadcast_agent", Name: "online", Help: "1 when the driver is considered online (API or push channel)"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "broadcast_agent", Name: "http_requests_total", Help: "Control API requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "broadcast_agent",
			Name:      "http_request_duration_seconds",
			Help:      "Control API request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
