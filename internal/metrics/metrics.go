package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	OutboxPublishedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "visitflow_outbox_published_total",
			Help: "Outbox records successfully published to the broker",
		},
	)

	OutboxDeadLetteredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "visitflow_outbox_dead_lettered_total",
			Help: "Outbox records marked dead after exhausting publish attempts",
		},
	)

	EventsConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visitflow_events_consumed_total",
			Help: "Bus deliveries by consumer and outcome",
		},
		[]string{"consumer", "outcome"}, // orchestrator|relay|archiver , ack|requeue|reject
	)

	BroadcastsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "visitflow_broadcasts_total",
			Help: "Group hub broadcasts delivered to viewer groups",
		},
	)

	ViewerConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "visitflow_viewer_connections",
			Help: "Open viewer websocket connections",
		},
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		OutboxPublishedTotal,
		OutboxDeadLetteredTotal,
		EventsConsumedTotal,
		BroadcastsTotal,
		ViewerConnections,
	)
}
