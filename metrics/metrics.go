// Package metrics holds the Prometheus collectors for the sync layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_sync_runs_total",
			Help: "Total number of reconciliation passes",
		},
		[]string{"kind", "status"},
	)

	syncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backoffice_sync_run_duration_seconds",
			Help:    "Duration of reconciliation passes",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)

	orderPushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_sync_order_pushes_total",
			Help: "Total number of order pushes to the remote store",
		},
		[]string{"status"},
	)

	remoteTimeouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_sync_remote_timeouts_total",
			Help: "Remote calls abandoned after their deadline",
		},
		[]string{"operation"},
	)

	refreshRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_sync_refresh_requests_total",
			Help: "Refresh requests by outcome",
		},
		[]string{"outcome"},
	)

	outboxPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "backoffice_sync_outbox_pending",
			Help: "Entries waiting in the outbox",
		},
	)

	outboxPushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_sync_outbox_pushes_total",
			Help: "Outbox push attempts",
		},
		[]string{"kind", "status"},
	)
)

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordSync records one pull or push pass.
func RecordSync(kind string, success bool, seconds float64) {
	syncRuns.WithLabelValues(kind, status(success)).Inc()
	syncDuration.WithLabelValues(kind).Observe(seconds)
}

func RecordOrderPush(success bool) {
	orderPushes.WithLabelValues(status(success)).Inc()
}

func RecordTimeout(operation string) {
	remoteTimeouts.WithLabelValues(operation).Inc()
}

// RecordRefresh counts a refresh request as "ran", "deferred" or "failed".
func RecordRefresh(outcome string) {
	refreshRequests.WithLabelValues(outcome).Inc()
}

func SetOutboxPending(n int) {
	outboxPending.Set(float64(n))
}

// RecordOutboxPush counts an outbox attempt; status is "success", "error" or "dead".
func RecordOutboxPush(kind, status string) {
	outboxPushes.WithLabelValues(kind, status).Inc()
}
