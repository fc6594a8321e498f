// Package metrics exposes the managers' internal counters as Prometheus
// gauges/counters, extending §3's Progress accounting and Queue state into
// an observable surface (SPEC_FULL.md §11). Grounded on jelmd-node_exporter's
// collector registration style and rclone's own rc metrics naming
// (fs/rc/rcserver/metrics_test.go uses `rclone_bytes_transferred_total`
// style names; this package follows the same `filesync_` prefix idiom).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every metric a manager process exposes. Both the FSS
// and NFS managers create one and register it against their own
// *prometheus.Registry, so each manager's `/metrics` lists all six metrics.
// cmd/fssmanager updates ActiveWorkers and PairsActive; cmd/nfsmanager
// updates QueueDepth and PairsActive. TasksTotal, TasksCompleted and
// SyncErrors are registered but not updated by either manager, so they
// stay at zero.
type Registry struct {
	QueueDepth     prometheus.Gauge
	TasksTotal     prometheus.Counter
	TasksCompleted prometheus.Counter
	ActiveWorkers  prometheus.Gauge
	PairsActive    prometheus.Gauge
	SyncErrors     prometheus.Counter
}

// New creates a Registry and registers every metric against reg.
func New(reg *prometheus.Registry) *Registry {
	m := &Registry{
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "filesync_queue_depth",
			Help: "Current number of tasks waiting in the NFS task queue.",
		}),
		TasksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "filesync_tasks_total",
			Help: "Total number of sync tasks ever enqueued.",
		}),
		TasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "filesync_tasks_completed",
			Help: "Total number of sync tasks a worker has finished, regardless of outcome.",
		}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "filesync_active_workers",
			Help: "Number of workers currently processing a task.",
		}),
		PairsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "filesync_pairs_active",
			Help: "Number of registered sync pairs currently active.",
		}),
		SyncErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "filesync_sync_errors_total",
			Help: "Total number of sync attempts that ended in an ERROR outcome.",
		}),
	}
	reg.MustRegister(m.QueueDepth, m.TasksTotal, m.TasksCompleted, m.ActiveWorkers, m.PairsActive, m.SyncErrors)
	return m
}
