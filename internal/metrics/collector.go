// Package metrics exposes Prometheus collectors for workflow execution.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/flowgraph-io/flowgraph/types"
)

const (
	namespace = "flowgraph"
	subsystem = "engine"
)

// Collector aggregates workflow execution metrics. A nil *Collector is a
// valid no-op, so instrumentation stays optional.
type Collector struct {
	runsTotal      *prometheus.CounterVec
	activeRuns     prometheus.Gauge
	nodeExecutions *prometheus.CounterVec
	nodeDuration   *prometheus.HistogramVec
	tokensTotal    *prometheus.CounterVec
	costTotal      *prometheus.CounterVec
}

// NewCollector registers the workflow collectors with reg, or the default
// registerer when reg is nil.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "runs_total",
			Help:      "Workflow runs by final status.",
		}, []string{"status"}),
		activeRuns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_runs",
			Help:      "Workflow runs currently executing.",
		}),
		nodeExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "node_executions_total",
			Help:      "Node executions by node id and outcome.",
		}, []string{"node", "status"}),
		nodeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "node_duration_seconds",
			Help:      "Wall-clock duration of node executions.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"node"}),
		tokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tokens_total",
			Help:      "Token usage by provider and direction.",
		}, []string{"provider", "direction"}),
		costTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cost_usd_total",
			Help:      "Estimated spend in USD by provider.",
		}, []string{"provider"}),
	}
}

// RunStarted marks one run as active.
func (c *Collector) RunStarted() {
	if c == nil {
		return
	}
	c.activeRuns.Inc()
}

// RunFinished records a run's final status.
func (c *Collector) RunFinished(status string) {
	if c == nil {
		return
	}
	c.activeRuns.Dec()
	c.runsTotal.WithLabelValues(status).Inc()
}

// NodeExecuted records one node invocation outcome.
func (c *Collector) NodeExecuted(nodeID, status string, d time.Duration) {
	if c == nil {
		return
	}
	c.nodeExecutions.WithLabelValues(nodeID, status).Inc()
	c.nodeDuration.WithLabelValues(nodeID).Observe(d.Seconds())
}

// AddUsage records token consumption and priced spend for one invocation.
func (c *Collector) AddUsage(provider string, usage types.Usage, cost float64) {
	if c == nil {
		return
	}
	if provider == "" {
		provider = "unknown"
	}
	c.tokensTotal.WithLabelValues(provider, "prompt").Add(float64(usage.PromptTokens))
	c.tokensTotal.WithLabelValues(provider, "completion").Add(float64(usage.CompletionTokens))
	c.costTotal.WithLabelValues(provider).Add(cost)
}
