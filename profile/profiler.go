package profile

import (
	"sort"
	"sync"
	"time"

	"github.com/flowgraph-io/flowgraph/types"
)

// DefaultBottleneckThreshold is the share of total run time a node must
// strictly exceed to be flagged.
const DefaultBottleneckThreshold = 0.5

// Profiler accumulates execution statistics per node. Repeated executions
// of the same node (loops, retries) add into one entry. Safe for
// concurrent use.
type Profiler struct {
	mu      sync.Mutex
	perNode map[string]types.NodeStats
	total   time.Duration
}

// NewProfiler returns an empty profiler.
func NewProfiler() *Profiler {
	return &Profiler{perNode: make(map[string]types.NodeStats)}
}

// Record adds one node execution's duration and cost.
func (p *Profiler) Record(nodeID string, d time.Duration, cost float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := p.perNode[nodeID]
	stats.Duration += d
	stats.Cost += cost
	stats.Calls++
	p.perNode[nodeID] = stats
	p.total += d
}

// Total returns the accumulated wall-clock duration across all nodes.
func (p *Profiler) Total() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

// Stats returns a copy of one node's accumulated statistics.
func (p *Profiler) Stats(nodeID string) (types.NodeStats, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	stats, ok := p.perNode[nodeID]
	return stats, ok
}

// Bottlenecks summarizes the run and flags every node whose share of the
// total accumulated time is strictly greater than threshold. A threshold
// at or below zero falls back to the default. An empty profiler flags
// nothing.
func (p *Profiler) Bottlenecks(threshold float64) types.BottleneckSummary {
	if threshold <= 0 {
		threshold = DefaultBottleneckThreshold
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	sum := types.BottleneckSummary{
		TotalTime: p.total,
		Threshold: threshold,
		PerNode:   make(map[string]types.NodeStats, len(p.perNode)),
	}
	for id, stats := range p.perNode {
		sum.PerNode[id] = stats
	}
	if p.total <= 0 {
		return sum
	}

	for id, stats := range p.perNode {
		share := float64(stats.Duration) / float64(p.total)
		if share > threshold {
			sum.Bottlenecks = append(sum.Bottlenecks, id)
		}
	}
	sort.Strings(sum.Bottlenecks)
	return sum
}

// Slowest returns up to n node ids ordered by accumulated duration,
// longest first. Ties break by id for stable output.
func (p *Profiler) Slowest(n int) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, 0, len(p.perNode))
	for id := range p.perNode {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		di, dj := p.perNode[ids[i]].Duration, p.perNode[ids[j]].Duration
		if di != dj {
			return di > dj
		}
		return ids[i] < ids[j]
	})
	if n < len(ids) {
		ids = ids[:n]
	}
	return ids
}
