// README: Prometheus collectors for dispatch and realtime delivery.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "flashfood"

var (
	ClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "claims_total",
		Help:      "Order claims by result.",
	}, []string{"result"})

	AdvancesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "advances_total",
		Help:      "Stage advances by entered stage or error result.",
	}, []string{"result"})

	TipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "tips_total",
		Help:      "Tip requests by result.",
	}, []string{"result"})

	TxDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "tx_duration_seconds",
		Help:      "Duration of dispatch transactions.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "realtime",
		Name:      "notifications_total",
		Help:      "Tracking notifications by outcome (sent, duplicate, in_flight).",
	}, []string{"outcome"})

	SinkErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "realtime",
		Name:      "sink_errors_total",
		Help:      "Errors returned by notification sinks.",
	}, []string{"sink"})

	DroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "realtime",
		Name:      "dropped_total",
		Help:      "Messages dropped because a connection send buffer was full or closed.",
	})

	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "realtime",
		Name:      "connections",
		Help:      "Live realtime connections.",
	})

	OffersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "matching",
		Name:      "offers_total",
		Help:      "Order offers sent to drivers.",
	})
)
