// Package metrics exposes Prometheus instrumentation for the pairing
// servers: gauges for live population, counters for match and relay
// throughput, and a histogram for how long waiters sit in the queue.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OnlineUsers tracks the current online count (presence-based on the
	// poll server, live-connection count on the push server).
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pairserver_online_users",
		Help: "Current number of online users",
	})

	// WaitingQueueSize tracks how many users are waiting for a partner.
	WaitingQueueSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pairserver_waiting_queue_size",
		Help: "Current number of users in the waiting queue",
	})

	// ActiveMatches tracks matches created minus matches dissolved by this
	// process.
	ActiveMatches = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pairserver_active_matches",
		Help: "Current number of active matches",
	})

	// MatchesCreatedTotal counts successful pairings.
	MatchesCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pairserver_matches_created_total",
		Help: "Total number of matches created",
	})

	// MatchesDissolvedTotal counts match teardowns by cause.
	MatchesDissolvedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pairserver_matches_dissolved_total",
		Help: "Total number of matches dissolved",
	}, []string{"cause"}) // cause = "stop", "disconnect", "sweep"

	// RelayItemsTotal counts queued relay items by kind.
	RelayItemsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pairserver_relay_items_total",
		Help: "Total number of relay items queued",
	}, []string{"kind"}) // kind = "msg", "sig"

	// ReportsFiledTotal counts abuse reports accepted.
	ReportsFiledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pairserver_reports_filed_total",
		Help: "Total number of abuse reports filed",
	})

	// PairingWaitSeconds records how long the matched waiter spent queued
	// before being paired.
	PairingWaitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pairserver_pairing_wait_seconds",
		Help:    "Time a waiter spent queued before being matched",
		Buckets: []float64{.5, 1, 2, 5, 10, 15, 20, 30},
	})
)

func init() {
	prometheus.MustRegister(
		OnlineUsers,
		WaitingQueueSize,
		ActiveMatches,
		MatchesCreatedTotal,
		MatchesDissolvedTotal,
		RelayItemsTotal,
		ReportsFiledTotal,
		PairingWaitSeconds,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
