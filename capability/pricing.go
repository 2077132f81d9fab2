package capability

import (
	"strings"

	"github.com/flowgraph-io/flowgraph/types"
)

// ModelPrice holds per-million-token prices in USD.
type ModelPrice struct {
	InputPerM  float64
	OutputPerM float64
}

// TablePricer is a static price table keyed by provider and model.
// Free and local providers always estimate zero; unknown providers
// estimate zero and report Known false so the cost aggregator can bucket
// them instead of failing the run.
type TablePricer struct {
	prices map[string]map[string]ModelPrice
	free   map[string]bool
}

// NewTablePricer builds a pricer over the given table. Provider and model
// keys are matched case-insensitively; model lookup falls back to prefix
// match so dated snapshots resolve to their base price.
func NewTablePricer(prices map[string]map[string]ModelPrice, freeProviders ...string) *TablePricer {
	normalized := make(map[string]map[string]ModelPrice, len(prices))
	for provider, models := range prices {
		m := make(map[string]ModelPrice, len(models))
		for model, price := range models {
			m[strings.ToLower(model)] = price
		}
		normalized[strings.ToLower(provider)] = m
	}
	free := make(map[string]bool, len(freeProviders))
	for _, p := range freeProviders {
		free[strings.ToLower(p)] = true
	}
	return &TablePricer{prices: normalized, free: free}
}

// DefaultPricer returns a pricer covering the commonly routed providers,
// with "local" and "ollama" marked free.
func DefaultPricer() *TablePricer {
	return NewTablePricer(map[string]map[string]ModelPrice{
		"openai": {
			"gpt-4o":      {InputPerM: 2.50, OutputPerM: 10.00},
			"gpt-4o-mini": {InputPerM: 0.15, OutputPerM: 0.60},
		},
		"anthropic": {
			"claude-sonnet-4-5": {InputPerM: 3.00, OutputPerM: 15.00},
			"claude-haiku-4-5":  {InputPerM: 1.00, OutputPerM: 5.00},
		},
		"deepseek": {
			"deepseek-chat": {InputPerM: 0.27, OutputPerM: 1.10},
		},
	}, "local", "ollama")
}

// Known implements Pricer.
func (p *TablePricer) Known(provider string) bool {
	provider = strings.ToLower(provider)
	if p.free[provider] {
		return true
	}
	_, ok := p.prices[provider]
	return ok
}

// Estimate implements Pricer.
func (p *TablePricer) Estimate(provider, model string, usage types.Usage) float64 {
	provider = strings.ToLower(provider)
	model = strings.ToLower(model)

	if p.free[provider] {
		return 0
	}
	models, ok := p.prices[provider]
	if !ok {
		return 0
	}

	price, ok := models[model]
	if !ok {
		for prefix, candidate := range models {
			if strings.HasPrefix(model, prefix) {
				price = candidate
				ok = true
				break
			}
		}
	}
	if !ok {
		return 0
	}

	in := float64(usage.PromptTokens) / 1e6 * price.InputPerM
	out := float64(usage.CompletionTokens) / 1e6 * price.OutputPerM
	return in + out
}
