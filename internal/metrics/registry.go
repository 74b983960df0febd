package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// ServersActive tracks live servers per game, updated whenever stats are computed.
	ServersActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "masterlist_servers_active",
			Help: "Number of live servers of each game",
		},
		[]string{"game_id"},
	)

	// Registrations counts server registrations by result.
	Registrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "masterlist_registrations_total",
			Help: "Total number of server registrations",
		},
		[]string{"result"},
	)

	// Heartbeats counts heartbeats by result.
	Heartbeats = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "masterlist_heartbeats_total",
			Help: "Total number of server heartbeats",
		},
		[]string{"result"},
	)

	// TenantRejections counts operations refused for unknown or inactive games.
	TenantRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "masterlist_tenant_rejections_total",
			Help: "Total number of operations rejected by the game gate",
		},
		[]string{"reason"},
	)

	// SweepEvictions counts records removed by the stale sweep.
	SweepEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "masterlist_sweep_evictions_total",
			Help: "Total number of stale servers evicted",
		},
	)

	// SweepErrors counts per game sweep failures.
	SweepErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "masterlist_sweep_errors_total",
			Help: "Total number of per game sweep failures",
		},
	)

	// SweepDuration measures one full sweep over every game.
	SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "masterlist_sweep_duration_seconds",
			Help:    "Duration of a stale sweep over all games",
			Buckets: prometheus.DefBuckets,
		},
	)

	// SnapshotErrors counts per game hourly snapshot failures.
	SnapshotErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "masterlist_snapshot_errors_total",
			Help: "Total number of per game hourly snapshot failures",
		},
	)
)

func registerRegistryMetrics() error {
	return register(
		ServersActive,
		Registrations,
		Heartbeats,
		TenantRejections,
		SweepEvictions,
		SweepErrors,
		SweepDuration,
		SnapshotErrors,
	)
}
