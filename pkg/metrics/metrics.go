// Package metrics exposes Prometheus instrumentation for the queue and
// the enrichment pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the collectors registered for one process.
type Metrics struct {
	Registry *prometheus.Registry

	TasksTotal    *prometheus.CounterVec
	TaskFailures  *prometheus.CounterVec
	TaskDuration  *prometheus.HistogramVec
	TasksDeduped  *prometheus.CounterVec
	QueueDepth    *prometheus.GaugeVec
	DeadLettered  *prometheus.CounterVec
	EventsWritten *prometheus.CounterVec
}

// New creates a Metrics with its own registry, including the standard Go
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	return NewWithRegistry(reg)
}

// NewWithRegistry registers all pipeline collectors on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		TasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shopdesk_tasks_total",
			Help: "Tasks processed, by task name and outcome.",
		}, []string{"task", "status"}),
		// Dashboards and alerts key on this exact series name.
		TaskFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_failures_total",
			Help: "Pipeline step failures, by step.",
		}, []string{"step"}),
		TaskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shopdesk_task_duration_seconds",
			Help:    "Task handler latency, by task name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"task"}),
		TasksDeduped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shopdesk_tasks_deduped_total",
			Help: "Task dispatches suppressed by the task-id dedup guard.",
		}, []string{"task"}),
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shopdesk_queue_depth",
			Help: "Current number of tasks per queue state.",
		}, []string{"state"}),
		DeadLettered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shopdesk_tasks_dead_lettered_total",
			Help: "Tasks moved to the dead-letter list after exhausting retries.",
		}, []string{"task"}),
		EventsWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shopdesk_pipeline_events_total",
			Help: "Pipeline events appended to the log, by event type.",
		}, []string{"type"}),
	}
}
