package profile

import (
	"sync"

	"github.com/flowgraph-io/flowgraph/capability"
	"github.com/flowgraph-io/flowgraph/types"
)

// UnknownBucket collects spendless invocations against providers the
// pricer has no table for, so they stay visible instead of reading as
// free usage.
const UnknownBucket = "unknown"

// CostAggregator prices token usage through a Pricer and accumulates
// spend per provider and per provider/model pair. Safe for concurrent use.
type CostAggregator struct {
	pricer capability.Pricer

	mu         sync.Mutex
	byProvider map[string]float64
	byModel    map[string]float64
	usage      map[string]types.Usage
	total      float64
}

// NewCostAggregator builds an aggregator over the given pricer.
func NewCostAggregator(pricer capability.Pricer) *CostAggregator {
	return &CostAggregator{
		pricer:     pricer,
		byProvider: make(map[string]float64),
		byModel:    make(map[string]float64),
		usage:      make(map[string]types.Usage),
	}
}

// Record prices one invocation's usage and adds it to the provider and
// provider/model buckets. Usage against providers the pricer does not
// know lands in the UnknownBucket with zero cost. Returns the estimated
// cost of this invocation.
func (a *CostAggregator) Record(provider, model string, usage types.Usage) float64 {
	bucket := provider
	var cost float64
	if a.pricer != nil && a.pricer.Known(provider) {
		cost = a.pricer.Estimate(provider, model, usage)
	} else {
		bucket = UnknownBucket
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.byProvider[bucket] += cost
	a.byModel[bucket+"/"+model] += cost
	u := a.usage[bucket]
	u.Add(usage)
	a.usage[bucket] = u
	a.total += cost
	return cost
}

// Total returns the total estimated spend across all providers.
func (a *CostAggregator) Total() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}

// ByProvider returns a copy of the per-provider spend, including the
// UnknownBucket entry when present.
func (a *CostAggregator) ByProvider() map[string]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]float64, len(a.byProvider))
	for k, v := range a.byProvider {
		out[k] = v
	}
	return out
}

// ByModel returns a copy of the spend keyed by "provider/model".
func (a *CostAggregator) ByModel() map[string]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]float64, len(a.byModel))
	for k, v := range a.byModel {
		out[k] = v
	}
	return out
}

// Usage returns a copy of the accumulated token usage per provider bucket.
func (a *CostAggregator) Usage() map[string]types.Usage {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]types.Usage, len(a.usage))
	for k, v := range a.usage {
		out[k] = v
	}
	return out
}
