package types

import "time"

// ExecutionRecord captures one node invocation. Records are created once,
// never mutated afterwards, and accumulate append-only for the lifetime of
// a run.
type ExecutionRecord struct {
	RunID     string        `json:"run_id"`
	NodeID    string        `json:"node_id"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Usage     Usage         `json:"usage"`
	Cost      float64       `json:"cost"`
	Iteration int           `json:"iteration,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// NodeStats aggregates all invocations of one node within a run.
type NodeStats struct {
	Duration time.Duration `json:"duration"`
	Cost     float64       `json:"cost"`
	Calls    int           `json:"calls"`
}

// BottleneckSummary is the on-demand aggregation over one run's records:
// total wall time across nodes, per-node stats, and the nodes whose
// duration share strictly exceeds the threshold.
type BottleneckSummary struct {
	TotalTime   time.Duration        `json:"total_time"`
	Threshold   float64              `json:"threshold"`
	PerNode     map[string]NodeStats `json:"per_node"`
	Bottlenecks []string             `json:"bottlenecks"`
}
