// Package metrics provides Prometheus instrumentation for the public chat
// server: connection and user gauges, message and moderation counters, and a
// histogram of hub command latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of open client connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connections_total",
		Help: "Current number of open client connections",
	})

	// ConnectionsRejected counts connections refused by admission control,
	// labeled by reason: "rate_limited" or "capacity".
	ConnectionsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_connections_rejected_total",
		Help: "Connections refused before the handshake",
	}, []string{"reason"})

	// UsersOnline tracks the number of registered usernames.
	UsersOnline = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_users_online",
		Help: "Current number of registered usernames",
	})

	// MessagesTotal counts delivered messages, labeled by type:
	// "public", "private" or "delayed".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_total",
		Help: "Total number of messages delivered",
	}, []string{"type"})

	// RateLimitedTotal counts public messages sent over the per-period cap.
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_rate_limited_total",
		Help: "Public messages sent while over the per-period limit",
	})

	// ReportsTotal counts moderation reports filed.
	ReportsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_reports_total",
		Help: "Moderation reports filed",
	})

	// BansTotal counts temporary bans started.
	BansTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_bans_total",
		Help: "Temporary bans started",
	})

	// DelayedPending tracks scheduled messages that have not fired yet.
	DelayedPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_delayed_pending",
		Help: "Delayed messages waiting to fire",
	})

	// CommandLatency records how long the hub spends on one event.
	CommandLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_command_latency_seconds",
		Help:    "Hub event handling latency in seconds",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		ConnectionsRejected,
		UsersOnline,
		MessagesTotal,
		RateLimitedTotal,
		ReportsTotal,
		BansTotal,
		DelayedPending,
		CommandLatency,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
