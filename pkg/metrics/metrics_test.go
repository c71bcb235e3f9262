package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailureCounterSeriesName(t *testing.T) {
	m := New()
	m.TaskFailures.WithLabelValues("pipeline.docqa").Inc()

	families, err := m.Registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	var failureLabels []string
	for _, mf := range families {
		names[mf.GetName()] = true
		if mf.GetName() == "pipeline_failures_total" {
			for _, metric := range mf.GetMetric() {
				for _, label := range metric.GetLabel() {
					failureLabels = append(failureLabels, label.GetName())
				}
			}
		}
	}

	assert.True(t, names["pipeline_failures_total"],
		"failure counter must be exported as pipeline_failures_total")
	assert.Equal(t, []string{"step"}, failureLabels)
}

func TestNewWithRegistryRegistersAllCollectors(t *testing.T) {
	m := New()
	m.TasksTotal.WithLabelValues("pipeline.asr", "succeeded").Inc()
	m.TaskDuration.WithLabelValues("pipeline.asr").Observe(0.1)
	m.TasksDeduped.WithLabelValues("pipeline.run").Inc()
	m.QueueDepth.WithLabelValues("ready").Set(3)
	m.DeadLettered.WithLabelValues("pipeline.vqa").Inc()
	m.EventsWritten.WithLabelValues("INGESTED").Inc()

	families, err := m.Registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	for _, want := range []string{
		"shopdesk_tasks_total",
		"shopdesk_task_duration_seconds",
		"shopdesk_tasks_deduped_total",
		"shopdesk_queue_depth",
		"shopdesk_tasks_dead_lettered_total",
		"shopdesk_pipeline_events_total",
	} {
		assert.True(t, names[want], "missing series %s", want)
	}
}
