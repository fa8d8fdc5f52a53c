// Package metrics defines the Prometheus instrumentation shared by the store,
// the feed and the coordinator.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MutationsTotal counts coordinator mutations by operation and outcome
	// (ok, validation_error, not_found, duplicate, store_error).
	MutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duesync_mutations_total",
		Help: "Mutations issued by the coordinator, by operation and outcome.",
	}, []string{"op", "outcome"})

	// SnapshotsDelivered counts snapshots handed to subscriber callbacks.
	SnapshotsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duesync_snapshots_delivered_total",
		Help: "Snapshots delivered to feed subscribers.",
	})

	// SnapshotsDropped counts stale snapshots discarded to preserve
	// monotonic delivery.
	SnapshotsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duesync_snapshots_dropped_total",
		Help: "Stale snapshots discarded by feed subscribers.",
	})

	// ActiveSubscriptions tracks currently open change-feed subscriptions.
	ActiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "duesync_active_subscriptions",
		Help: "Currently open change-feed subscriptions.",
	})
)

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
