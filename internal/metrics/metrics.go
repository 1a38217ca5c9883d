// Package metrics exposes the aggregator's Prometheus collectors on a
// dedicated registry, adapted from the teacher's pkg/metrics package
// (same dedicated-registry-plus-promhttp.HandlerFor shape), trimmed to
// this service's own concerns.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is this service's own Prometheus registry, kept separate
// from the global default the way the teacher does so tests can spin
// up independent registries without collector-already-registered
// panics.
var Registry = prometheus.NewRegistry()

var (
	ActiveAlerts = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fty_alert_stats_active_alerts",
		Help: "Currently active alerts by severity, summed across all assets.",
	}, []string{"severity"})

	ResyncState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fty_alert_stats_resync_state",
		Help: "Resync controller state: 0=not-ready, 1=querying, 2=ready.",
	})

	OutstandingPeerQueries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fty_alert_stats_outstanding_peer_queries",
		Help: "Number of ASSET_DETAIL queries currently in flight.",
	})

	PeerQueryQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fty_alert_stats_peer_query_queue_depth",
		Help: "Number of asset names waiting for an ASSET_DETAIL query.",
	})

	TickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fty_alert_stats_tick_duration_seconds",
		Help:    "Wall time spent in one periodic tick handler invocation.",
		Buckets: prometheus.DefBuckets,
	})

	ResyncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fty_alert_stats_resync_duration_seconds",
		Help:    "Wall time from resync start to reaching the ready state.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})
)

func init() {
	Registry.MustRegister(
		ActiveAlerts,
		ResyncState,
		OutstandingPeerQueries,
		PeerQueryQueueDepth,
		TickDuration,
		ResyncDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler serves Registry's collectors in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// SetResyncState maps a ResyncController state to the gauge's 0/1/2 encoding.
func SetResyncState(state int) {
	ResyncState.Set(float64(state))
}
