package capability

import (
	"context"
	"fmt"
	"time"

	"github.com/flowgraph-io/flowgraph/types"
)

// Config carries provider configuration as loose key/value pairs so that
// node-level overrides can merge over workflow-level defaults per key.
type Config map[string]any

// Merge returns a new Config with override values winning on every
// conflicting key. Neither input is modified.
func (c Config) Merge(override Config) Config {
	merged := make(Config, len(c)+len(override))
	for k, v := range c {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

// Provider returns the configured provider name, or "" if unset.
func (c Config) Provider() string { return c.str("provider") }

// Model returns the configured model name, or "" if unset.
func (c Config) Model() string { return c.str("model") }

func (c Config) str(key string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return ""
}

// Request is one LLM invocation: a fully resolved prompt, the shape the
// payload must satisfy, acquired tools, and the merged configuration.
type Request struct {
	NodeID      string
	Prompt      string
	OutputShape string // rendered field list the provider must produce
	Tools       []Tool
	Config      Config
}

// Response is the provider payload plus reported token usage. Providers
// that do not report usage leave it zero; the executor fills it from the
// local estimator.
type Response struct {
	Payload map[string]any
	Usage   types.Usage
}

// LLM is the language-model capability. Invoke blocks until the provider
// answers, the context is cancelled, or the call fails. Transient failures
// (rate limits, upstream timeouts) must be returned as *types.Error with
// Retryable set so the executor can back off and retry.
type LLM interface {
	Invoke(ctx context.Context, req *Request) (*Response, error)
	Name() string
}

// Tool is one callable tool surfaced to providers supporting tool use.
type Tool interface {
	Name() string
	Description() string
	Call(ctx context.Context, args map[string]any) (any, error)
}

// ToolRegistry resolves declared tool names at execution time.
type ToolRegistry interface {
	Get(name string) (Tool, error)
}

// NotFound builds the standard error for an unknown tool name.
func NotFound(name string) error {
	return types.NewError(types.ErrToolNotFound, fmt.Sprintf("tool %q not registered", name))
}

// Pricer estimates the cost of one invocation in USD. Implementations
// must report zero for free and local providers and must not fail on
// unknown providers; the cost aggregator buckets those separately.
type Pricer interface {
	Estimate(provider, model string, usage types.Usage) float64
	Known(provider string) bool
}

// Limits bounds a sandboxed code execution.
type Limits struct {
	Timeout     time.Duration
	MemoryBytes int64
}

// SafetyError reports a sandbox policy violation. It is node-scoped and
// never silently swallowed.
type SafetyError struct {
	Policy string
	Detail string
}

func (e *SafetyError) Error() string {
	return fmt.Sprintf("[%s] sandbox policy %q violated: %s", types.ErrSafety, e.Policy, e.Detail)
}

// Sandbox executes a node's code block against concrete resolved bindings.
// Bindings are plain values, never unresolved templates.
type Sandbox interface {
	Run(ctx context.Context, code string, bindings map[string]any, limits Limits) (any, error)
}

// Store is the optional append-only persistence capability. The core
// writes records and summaries keyed by run id and never deletes them.
type Store interface {
	AppendRecord(ctx context.Context, rec types.ExecutionRecord) error
	WriteSummary(ctx context.Context, runID string, sum types.BottleneckSummary) error
	Records(ctx context.Context, runID string) ([]types.ExecutionRecord, error)
}

// StaticToolRegistry is a fixed in-memory registry.
type StaticToolRegistry struct {
	tools map[string]Tool
}

// NewStaticToolRegistry builds a registry over the given tools.
func NewStaticToolRegistry(tools ...Tool) *StaticToolRegistry {
	m := make(map[string]Tool, len(tools))
	for _, tool := range tools {
		m[tool.Name()] = tool
	}
	return &StaticToolRegistry{tools: m}
}

// Get implements ToolRegistry.
func (r *StaticToolRegistry) Get(name string) (Tool, error) {
	tool, ok := r.tools[name]
	if !ok {
		return nil, NotFound(name)
	}
	return tool, nil
}
