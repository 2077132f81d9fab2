package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flowgraph-io/flowgraph/capability"
	"github.com/flowgraph-io/flowgraph/graph"
	"github.com/flowgraph-io/flowgraph/internal/metrics"
	"github.com/flowgraph-io/flowgraph/profile"
	"github.com/flowgraph-io/flowgraph/types"
)

// Options configures an Engine. LLM is the only required capability.
type Options struct {
	LLM     capability.LLM
	Sandbox capability.Sandbox
	Tools   capability.ToolRegistry
	Pricer  capability.Pricer
	Store   capability.Store

	Logger  *zap.Logger
	Metrics *metrics.Collector

	// Retry overrides the per-node retry policy; nil takes the default.
	Retry *RetryPolicy

	// BottleneckThreshold is the duration share a node must strictly
	// exceed to be flagged; zero takes the default.
	BottleneckThreshold float64

	// RunTimeout bounds synchronous Run calls; zero means wait forever.
	RunTimeout time.Duration

	// TokenEncoding selects the local token estimator encoding.
	TokenEncoding string
}

// Engine executes compiled workflow graphs and keeps every launched run
// addressable by id for Status, Trace, Bottlenecks, and Cancel.
type Engine struct {
	executor *Executor
	pricer   capability.Pricer
	store    capability.Store
	logger   *zap.Logger
	metrics  *metrics.Collector

	bottleneckThreshold float64
	runTimeout          time.Duration

	mu   sync.RWMutex
	runs map[string]*run
}

// New builds an engine over the given capabilities.
func New(opts Options) (*Engine, error) {
	if opts.LLM == nil {
		return nil, fmt.Errorf("engine requires an LLM capability")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	pricer := opts.Pricer
	if pricer == nil {
		pricer = capability.DefaultPricer()
	}
	retry := DefaultRetryPolicy()
	if opts.Retry != nil {
		retry = opts.Retry.normalized()
	}
	threshold := opts.BottleneckThreshold
	if threshold <= 0 {
		threshold = profile.DefaultBottleneckThreshold
	}

	estimator := capability.NewTokenEstimator(opts.TokenEncoding)

	return &Engine{
		executor:            NewExecutor(opts.LLM, opts.Sandbox, opts.Tools, estimator, retry, logger),
		pricer:              pricer,
		store:               opts.Store,
		logger:              logger.With(zap.String("component", "engine")),
		metrics:             opts.Metrics,
		bottleneckThreshold: threshold,
		runTimeout:          opts.RunTimeout,
		runs:                make(map[string]*run),
	}, nil
}

// Start launches a run asynchronously and returns its handle. The initial
// state is constructed and validated before anything executes; cancelling
// ctx cancels the run.
func (e *Engine) Start(ctx context.Context, g *graph.CompiledGraph, inputs map[string]any) (*Handle, error) {
	if g == nil {
		return nil, fmt.Errorf("nil graph")
	}
	state, err := g.StateSchema.New(inputs)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{
		id:       uuid.NewString(),
		graph:    g,
		engine:   e,
		cancel:   cancel,
		done:     make(chan struct{}),
		profiler: profile.NewProfiler(),
		costs:    profile.NewCostAggregator(e.pricer),
		status:   StatusReady,
	}
	r.logger = e.logger.With(
		zap.String("run_id", r.id),
		zap.String("workflow", g.Name),
	)

	e.mu.Lock()
	e.runs[r.id] = r
	e.mu.Unlock()

	e.metrics.RunStarted()
	go r.execute(runCtx, state)

	return &Handle{r: r}, nil
}

// Run executes synchronously. When the timeout (or the engine default, if
// timeout is zero) expires first, the run keeps executing and the call
// returns a nil Result together with the live handle.
func (e *Engine) Run(ctx context.Context, g *graph.CompiledGraph, inputs map[string]any, timeout time.Duration) (*Result, *Handle, error) {
	h, err := e.Start(ctx, g, inputs)
	if err != nil {
		return nil, nil, err
	}

	if timeout <= 0 {
		timeout = e.runTimeout
	}
	if timeout <= 0 {
		res, err := h.Wait(ctx)
		return res, h, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-h.Done():
		res, err := h.r.outcome()
		return res, h, err
	case <-ctx.Done():
		return nil, h, ctx.Err()
	case <-timer.C:
		e.logger.Debug("synchronous wait expired, run continues",
			zap.String("run_id", h.RunID()),
			zap.Duration("timeout", timeout),
		)
		return nil, h, nil
	}
}

// Status reports the lifecycle state of a run.
func (e *Engine) Status(runID string) (Status, error) {
	r, err := e.lookup(runID)
	if err != nil {
		return "", err
	}
	return r.Status(), nil
}

// Trace returns a copy of the execution records committed so far, in
// commit order. Available while the run is still executing.
func (e *Engine) Trace(runID string) ([]types.ExecutionRecord, error) {
	r, err := e.lookup(runID)
	if err != nil {
		return nil, err
	}
	return r.trace(), nil
}

// Bottlenecks aggregates the run's profile on demand. A non-positive
// threshold takes the engine default.
func (e *Engine) Bottlenecks(runID string, threshold float64) (types.BottleneckSummary, error) {
	r, err := e.lookup(runID)
	if err != nil {
		return types.BottleneckSummary{}, err
	}
	if threshold <= 0 {
		threshold = e.bottleneckThreshold
	}
	return r.profiler.Bottlenecks(threshold), nil
}

// Cancel requests cancellation of a running workflow. In-flight capability
// calls observe it through their context; committed records survive.
func (e *Engine) Cancel(runID string) error {
	r, err := e.lookup(runID)
	if err != nil {
		return err
	}
	r.cancelled.Store(true)
	r.cancel()
	return nil
}

// Handle returns the live handle of a previously started run.
func (e *Engine) Handle(runID string) (*Handle, error) {
	r, err := e.lookup(runID)
	if err != nil {
		return nil, err
	}
	return &Handle{r: r}, nil
}

func (e *Engine) lookup(runID string) (*run, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.runs[runID]
	if !ok {
		return nil, types.NewError(types.ErrRunNotFound, fmt.Sprintf("run %q not found", runID))
	}
	return r, nil
}
