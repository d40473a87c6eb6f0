// Package metrics provides Prometheus instrumentation for the pairing
// server, named whisper_pair_<subsystem>_<name> per component (§2b, §4.6a).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsGauge tracks the current number of active WebSocket
	// connections (transport subsystem).
	ConnectionsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "whisper_pair_transport_connections",
		Help: "Current number of active WebSocket connections",
	})

	// MessagesTotal counts messages processed, labeled by direction and
	// outcome: direction = "in"/"out", outcome = "ok"/"blocked"/"error".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "whisper_pair_relay_messages_total",
		Help: "Total number of relay messages processed",
	}, []string{"direction", "outcome"})

	// QueueSizeGauge tracks the current number of users in the waiting
	// queue (matchmaker subsystem).
	QueueSizeGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "whisper_pair_matchmaker_queue_size",
		Help: "Current number of users in the waiting queue",
	})

	// MatchesTotal counts matches created (matchmaker subsystem).
	MatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "whisper_pair_matchmaker_matches_total",
		Help: "Total number of matches created",
	})

	// MatchWaitSeconds records the time from start-search to match-created
	// (matchmaker subsystem).
	MatchWaitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "whisper_pair_matchmaker_wait_seconds",
		Help:    "Time from start-search to match-created",
		Buckets: []float64{.1, .5, 1, 2, 5, 10, 20, 30, 60},
	})

	// RoomsGauge tracks live rooms, labeled by census bucket: "paired",
	// "user-self-rooms", "abandoned", "other" (supervisor subsystem, §4.6).
	RoomsGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "whisper_pair_supervisor_rooms",
		Help: "Current room count by census bucket",
	}, []string{"bucket"})

	// GamesActiveGauge tracks active refereed games (relay subsystem).
	GamesActiveGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "whisper_pair_relay_games_active",
		Help: "Current number of active refereed games",
	})

	// BansTotal counts bans issued, labeled by reason (abuse subsystem).
	BansTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "whisper_pair_abuse_bans_total",
		Help: "Total number of bans issued",
	}, []string{"reason"})

	// RateLimitRejectionsTotal counts requests rejected by the rate limiter,
	// labeled by action (supervisor subsystem).
	RateLimitRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "whisper_pair_supervisor_rate_limit_rejections_total",
		Help: "Total number of requests rejected by the rate limiter",
	}, []string{"action"})
)

func init() {
	prometheus.MustRegister(
		ConnectionsGauge,
		MessagesTotal,
		QueueSizeGauge,
		MatchesTotal,
		MatchWaitSeconds,
		RoomsGauge,
		GamesActiveGauge,
		BansTotal,
		RateLimitRejectionsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
