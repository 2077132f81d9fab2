// Package flowgraph provides a top-level convenience entry point for
// compiling and running declarative LLM workflows.
//
// Usage:
//
//	import "github.com/flowgraph-io/flowgraph"
//
//	wf, err := flowgraph.Load("workflow.yaml", flowgraph.WithLLM(provider))
//	res, err := wf.Run(ctx, map[string]any{"topic": "go"})
//
// This is a thin wrapper around the graph and engine packages; both
// produce identical results. Use this package when you prefer the shorter
// import path.
package flowgraph

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/flowgraph-io/flowgraph/capability"
	"github.com/flowgraph-io/flowgraph/config"
	"github.com/flowgraph-io/flowgraph/engine"
	"github.com/flowgraph-io/flowgraph/graph"
)

// Re-exports so common callers need only this import path.
type (
	Result = engine.Result
	Handle = engine.Handle
	Spec   = graph.Spec
)

// Option configures the workflow created by New or Load.
type Option func(*options)

type options struct {
	cfg    *config.Config
	engine engine.Options
}

// WithLLM sets the LLM capability. Required.
func WithLLM(llm capability.LLM) Option {
	return func(o *options) { o.engine.LLM = llm }
}

// WithSandbox sets the code execution capability.
func WithSandbox(sandbox capability.Sandbox) Option {
	return func(o *options) { o.engine.Sandbox = sandbox }
}

// WithTools sets the tool registry.
func WithTools(tools capability.ToolRegistry) Option {
	return func(o *options) { o.engine.Tools = tools }
}

// WithPricer sets the pricing capability.
func WithPricer(pricer capability.Pricer) Option {
	return func(o *options) { o.engine.Pricer = pricer }
}

// WithStore sets the persistence capability.
func WithStore(store capability.Store) Option {
	return func(o *options) { o.engine.Store = store }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.engine.Logger = logger }
}

// WithConfig applies engine tuning from a loaded configuration.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// Workflow pairs one compiled graph with an engine ready to run it.
type Workflow struct {
	graph  *graph.CompiledGraph
	engine *engine.Engine
}

// Load reads, compiles, and binds a YAML workflow definition.
func Load(path string, opts ...Option) (*Workflow, error) {
	spec, err := graph.LoadSpec(path)
	if err != nil {
		return nil, err
	}
	return New(spec, opts...)
}

// New compiles a workflow spec and binds it to an engine.
func New(spec *graph.Spec, opts ...Option) (*Workflow, error) {
	g, err := graph.Compile(spec)
	if err != nil {
		return nil, err
	}

	o := &options{cfg: config.Default()}
	for _, opt := range opts {
		opt(o)
	}

	eng := o.engine
	retry := engine.RetryPolicy{
		MaxAttempts:  o.cfg.Engine.MaxAttempts,
		InitialDelay: o.cfg.Engine.InitialBackoff,
		MaxDelay:     o.cfg.Engine.MaxBackoff,
		Multiplier:   o.cfg.Engine.BackoffMultiplier,
		Jitter:       true,
	}
	eng.Retry = &retry
	eng.BottleneckThreshold = o.cfg.Engine.BottleneckThreshold
	eng.RunTimeout = o.cfg.Engine.RunTimeout
	eng.TokenEncoding = o.cfg.LLM.TokenEncoding

	e, err := engine.New(eng)
	if err != nil {
		return nil, err
	}
	return &Workflow{graph: g, engine: e}, nil
}

// Graph returns the compiled graph.
func (w *Workflow) Graph() *graph.CompiledGraph { return w.graph }

// Engine returns the bound engine, for Status/Trace/Bottlenecks access.
func (w *Workflow) Engine() *engine.Engine { return w.engine }

// Run executes synchronously and waits for the result. A zero timeout
// uses the configured run timeout; on expiry the run continues and the
// returned handle stays live.
func (w *Workflow) Run(ctx context.Context, inputs map[string]any) (*engine.Result, error) {
	res, _, err := w.engine.Run(ctx, w.graph, inputs, 0)
	return res, err
}

// RunWithTimeout executes synchronously up to timeout, returning the live
// handle when the run outlasts it.
func (w *Workflow) RunWithTimeout(ctx context.Context, inputs map[string]any, timeout time.Duration) (*engine.Result, *engine.Handle, error) {
	return w.engine.Run(ctx, w.graph, inputs, timeout)
}

// Start launches the workflow asynchronously.
func (w *Workflow) Start(ctx context.Context, inputs map[string]any) (*engine.Handle, error) {
	return w.engine.Start(ctx, w.graph, inputs)
}
