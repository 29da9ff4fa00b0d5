package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_active_connections",
			Help: "Currently open websocket connections",
		},
	)
	LiveRooms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rooms_live_total",
			Help: "Rooms currently held in memory",
		},
	)
	RunningGames = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "games_running_total",
			Help: "Game engines currently attached to a room",
		},
	)
	RLRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limiter_requests_total",
			Help: "Total requests seen by the rate limiter",
		},
		[]string{"scope"},
	)
	RLBlocked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limiter_blocked_total",
			Help: "Total requests blocked by the rate limiter",
		},
		[]string{"scope"},
	)
)

func init() {
	prometheus.MustRegister(ActiveConnections)
	prometheus.MustRegister(LiveRooms)
	prometheus.MustRegister(RunningGames)
	prometheus.MustRegister(RLRequests)
	prometheus.MustRegister(RLBlocked)
}
