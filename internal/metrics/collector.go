// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector exposes workflow engine metrics through Prometheus.
type Collector struct {
	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec

	nodeExecutionsTotal *prometheus.CounterVec
	nodeDuration        *prometheus.HistogramVec

	checkpointsTotal *prometheus.CounterVec
	loopTurnsTotal   *prometheus.CounterVec
	requestsPending  prometheus.Gauge

	logger *zap.Logger
}

// NewCollector registers the workflow metrics on the given registerer.
// Pass prometheus.DefaultRegisterer in production; tests use their own
// registry to avoid duplicate registration panics.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_runs_total",
			Help:      "Total number of workflow runs",
		},
		[]string{"workflow", "status"},
	)

	c.runDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_run_duration_seconds",
			Help:      "Workflow run duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"workflow"},
	)

	c.nodeExecutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_node_executions_total",
			Help:      "Total number of node executions",
		},
		[]string{"workflow", "kind", "status"},
	)

	c.nodeDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_node_duration_seconds",
			Help:      "Node execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"workflow", "kind"},
	)

	c.checkpointsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_checkpoints_total",
			Help:      "Total number of checkpoints created",
		},
		[]string{"workflow"},
	)

	c.loopTurnsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_loop_turns_total",
			Help:      "Total number of feedback loop turns",
		},
		[]string{"workflow"},
	)

	c.requestsPending = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workflow_input_requests_pending",
			Help:      "Input requests currently awaiting a response",
		},
	)

	return c
}

// RecordRun records a completed or failed workflow run.
func (c *Collector) RecordRun(workflow, status string, duration time.Duration) {
	c.runsTotal.WithLabelValues(workflow, status).Inc()
	c.runDuration.WithLabelValues(workflow).Observe(duration.Seconds())
}

// RecordNode records one node execution.
func (c *Collector) RecordNode(workflow, kind, status string, duration time.Duration) {
	c.nodeExecutionsTotal.WithLabelValues(workflow, kind, status).Inc()
	c.nodeDuration.WithLabelValues(workflow, kind).Observe(duration.Seconds())
}

// RecordCheckpoint records a checkpoint creation.
func (c *Collector) RecordCheckpoint(workflow string) {
	c.checkpointsTotal.WithLabelValues(workflow).Inc()
}

// RecordLoopTurn records one feedback loop turn.
func (c *Collector) RecordLoopTurn(workflow string) {
	c.loopTurnsTotal.WithLabelValues(workflow).Inc()
}

// RequestOpened marks an input request as pending.
func (c *Collector) RequestOpened() {
	c.requestsPending.Inc()
}

// RequestClosed marks an input request as answered or abandoned.
func (c *Collector) RequestClosed() {
	c.requestsPending.Dec()
}
