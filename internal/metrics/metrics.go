package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Push channel

	PushConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "medtrack",
		Name:      "push_connections",
		Help:      "Live push-channel connections.",
	})

	PushEventsDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "medtrack",
		Name:      "push_events_delivered_total",
		Help:      "Events delivered over the push channel, by kind.",
	}, []string{"kind"})

	PushUpgradeRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "medtrack",
		Name:      "push_upgrade_rejected_total",
		Help:      "Rejected push-channel upgrade attempts, by reason.",
	}, []string{"reason"})

	// Credentials

	SessionsIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "medtrack",
		Name:      "sessions_issued_total",
		Help:      "Session tokens issued.",
	})

	SessionsSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "medtrack",
		Name:      "sessions_swept_total",
		Help:      "Expired session rows removed by sweeps.",
	})

	CodesIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "medtrack",
		Name:      "codes_issued_total",
		Help:      "Ephemeral codes issued, by kind.",
	}, []string{"kind"})

	// HTTP

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "medtrack",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "medtrack",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		PushConnections,
		PushEventsDelivered,
		PushUpgradeRejected,
		SessionsIssued,
		SessionsSwept,
		CodesIssued,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}
