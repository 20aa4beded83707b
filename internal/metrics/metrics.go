// Package metrics defines the Prometheus collectors shared by the event
// engine components. Collectors are registered once via promauto at package
// initialization and exposed on the /metrics route.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsPublished counts events handed to the broadcast engine, by type.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leaderboard_events_published_total",
		Help: "Total number of events published to leaderboard channels",
	}, []string{"type"})

	// BroadcastDeliveries counts successful per-connection sends.
	BroadcastDeliveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leaderboard_broadcast_deliveries_total",
		Help: "Total number of successful event deliveries to connections",
	})

	// BroadcastFailures counts sends that failed and evicted a connection.
	BroadcastFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leaderboard_broadcast_failures_total",
		Help: "Total number of failed event deliveries",
	})

	// OpenConnections tracks the number of registered subscriber connections.
	OpenConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "leaderboard_open_connections",
		Help: "Current number of registered subscriber connections",
	})

	// ScoreDeltas counts score mutations applied through the detector.
	ScoreDeltas = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leaderboard_score_deltas_total",
		Help: "Total number of score deltas applied",
	})

	// AchievementsUnlocked counts achievement unlock events.
	AchievementsUnlocked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leaderboard_achievements_unlocked_total",
		Help: "Total number of achievements unlocked",
	})

	// StoreOpDuration observes score store round-trip latency by operation.
	StoreOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "leaderboard_store_op_duration_seconds",
		Help:    "Duration of score store operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
)
