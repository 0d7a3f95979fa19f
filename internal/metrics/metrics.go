// Package metrics provides Prometheus instrumentation for the livehub
// server. It exposes gauges for connection and live-room counts, counters
// for message throughput, and a histogram for dispatch latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of open WebSocket channels.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "livehub_connections_total",
		Help: "Current number of open WebSocket channels",
	})

	// AuthenticatedUsers tracks the current number of authenticated users.
	AuthenticatedUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "livehub_authenticated_users",
		Help: "Current number of authenticated users in the registry",
	})

	// LiveRooms tracks the current number of ephemeral live rooms.
	LiveRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "livehub_live_rooms",
		Help: "Current number of live rooms with members",
	})

	// MessagesTotal counts processed messages, labeled by kind:
	// "direct", "group", or "signal".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "livehub_messages_total",
		Help: "Total number of messages processed",
	}, []string{"kind"})

	// BroadcastsTotal counts per-recipient broadcast deliveries.
	BroadcastsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "livehub_broadcasts_total",
		Help: "Total number of per-recipient broadcast deliveries",
	})

	// DispatchLatency records event handling latency in seconds.
	DispatchLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "livehub_dispatch_latency_seconds",
		Help:    "Event handling latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		AuthenticatedUsers,
		LiveRooms,
		MessagesTotal,
		BroadcastsTotal,
		DispatchLatency,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
