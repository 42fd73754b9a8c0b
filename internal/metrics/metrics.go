// Package metrics exposes the counters named in the daemon's monitoring
// surface. It wraps client_golang's default registry so promhttp.Handler
// can be mounted directly by main.go without any further wiring.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	BlocksIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "blockwatch",
		Name:      "blocks_ingested_total",
		Help:      "Number of BlockEvents emitted by the chain ingestor.",
	})

	WebsocketReconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "blockwatch",
		Name:      "websocket_reconnects_total",
		Help:      "Number of times the ingestor re-established its explorer websocket.",
	})

	EvaluationPasses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "blockwatch",
		Name:      "evaluation_passes_total",
		Help:      "Number of alert engine evaluation passes run.",
	})

	NotificationsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "blockwatch",
		Name:      "notifications_sent_total",
		Help:      "Number of notifications successfully delivered via the relay gateway.",
	})

	NotificationsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "blockwatch",
		Name:      "notifications_failed_total",
		Help:      "Number of notification delivery attempts that failed.",
	})
)

func init() {
	prometheus.MustRegister(
		BlocksIngested,
		WebsocketReconnects,
		EvaluationPasses,
		NotificationsSent,
		NotificationsFailed,
	)
}
