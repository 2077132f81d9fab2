// Package profile aggregates per-node timing and spend for a workflow run.
//
// The Profiler accumulates wall-clock duration, cost, and call counts per
// node and surfaces the nodes whose share of total time strictly exceeds a
// threshold. The CostAggregator prices token usage through a Pricer and
// buckets spend per provider and per provider/model pair, with unpriceable
// providers collected under a dedicated bucket instead of silently counting
// as free. Both are safe for concurrent use by parallel branches.
package profile
