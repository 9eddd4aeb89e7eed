package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus collectors for the admission pipeline and its side channels.
var (
	AdmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evote_admissions_total",
			Help: "Vote admission attempts by outcome",
		},
		[]string{"outcome"},
	)

	IncidentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evote_fraud_incidents_total",
			Help: "Fraud incidents recorded by category and severity",
		},
		[]string{"category", "severity"},
	)

	IncidentPersistFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "evote_fraud_incident_persist_failures_total",
			Help: "Fraud incidents that could not be stored",
		},
	)

	CodesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evote_verification_codes_total",
			Help: "Verification code operations by action and result",
		},
		[]string{"action", "result"},
	)

	NotificationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evote_notification_failures_total",
			Help: "Notification deliveries that failed, by template",
		},
		[]string{"template"},
	)

	BroadcastDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evote_broadcast_dropped_total",
			Help: "Live events dropped because a subscriber buffer was full",
		},
		[]string{"channel_kind"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "evote_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method", "status"},
	)
)

// Register registers all collectors with reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		AdmissionsTotal,
		IncidentsTotal,
		IncidentPersistFailuresTotal,
		CodesTotal,
		NotificationFailuresTotal,
		BroadcastDroppedTotal,
		HTTPRequestDuration,
	)
}
