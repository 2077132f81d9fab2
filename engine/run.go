package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/flowgraph-io/flowgraph/expr"
	"github.com/flowgraph-io/flowgraph/graph"
	"github.com/flowgraph-io/flowgraph/profile"
	"github.com/flowgraph-io/flowgraph/schema"
	"github.com/flowgraph-io/flowgraph/types"
)

// Status is the lifecycle state of one workflow run.
type Status string

const (
	StatusReady     Status = "ready"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// iterationVar is the engine-private loop counter exposed to until
// predicates. It is never part of the declared state schema.
const iterationVar = "iteration"

// Result is the outcome of a completed run.
type Result struct {
	RunID          string
	State          *schema.State
	Records        []types.ExecutionRecord
	Summary        types.BottleneckSummary
	CostByProvider map[string]float64
	TotalCost      float64
}

type run struct {
	id     string
	graph  *graph.CompiledGraph
	engine *Engine
	logger *zap.Logger

	cancel    context.CancelFunc
	cancelled atomic.Bool
	done      chan struct{}

	profiler *profile.Profiler
	costs    *profile.CostAggregator

	mu      sync.Mutex
	status  Status
	records []types.ExecutionRecord
	result  *Result
	err     error
}

// Commit implements Sink: price the usage, store the record, feed the
// profiler and metrics. Records are append-only and survive cancellation.
func (r *run) Commit(rec types.ExecutionRecord, provider, model string) float64 {
	cost := r.costs.Record(provider, model, rec.Usage)
	rec.Cost = cost
	r.profiler.Record(rec.NodeID, rec.Duration, cost)

	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()

	outcome := "success"
	if rec.Error != "" {
		outcome = "error"
	}
	r.engine.metrics.NodeExecuted(rec.NodeID, outcome, rec.Duration)
	r.engine.metrics.AddUsage(provider, rec.Usage, cost)

	if r.engine.store != nil {
		if err := r.engine.store.AppendRecord(context.Background(), rec); err != nil {
			r.logger.Warn("execution record not persisted",
				zap.String("node_id", rec.NodeID),
				zap.Error(err),
			)
		}
	}
	return cost
}

func (r *run) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *run) setStatus(s Status) {
	r.mu.Lock()
	r.status = s
	r.mu.Unlock()
}

func (r *run) trace() []types.ExecutionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.ExecutionRecord(nil), r.records...)
}

// outcome returns the run result once done is closed.
func (r *run) outcome() (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == StatusCompleted {
		return r.result, nil
	}
	if r.err != nil {
		return nil, r.err
	}
	return nil, types.NewError(types.ErrCancelled, "run did not complete")
}

func (r *run) execute(ctx context.Context, state *schema.State) {
	defer close(r.done)
	r.setStatus(StatusRunning)
	r.logger.Info("starting workflow run",
		zap.String("entry", r.graph.Entry()),
	)

	final, err := r.traverse(ctx, state)
	summary := r.profiler.Bottlenecks(r.engine.bottleneckThreshold)

	r.mu.Lock()
	if err != nil {
		if r.cancelled.Load() || errors.Is(err, context.Canceled) ||
			types.GetErrorCode(err) == types.ErrCancelled {
			r.status = StatusCancelled
		} else {
			r.status = StatusFailed
		}
		r.err = err
	} else {
		r.status = StatusCompleted
		r.result = &Result{
			RunID:          r.id,
			State:          final,
			Records:        append([]types.ExecutionRecord(nil), r.records...),
			Summary:        summary,
			CostByProvider: r.costs.ByProvider(),
			TotalCost:      r.costs.Total(),
		}
	}
	status := r.status
	r.mu.Unlock()

	if r.engine.store != nil {
		if serr := r.engine.store.WriteSummary(context.Background(), r.id, summary); serr != nil {
			r.logger.Warn("run summary not persisted", zap.Error(serr))
		}
	}
	r.engine.metrics.RunFinished(string(status))

	switch status {
	case StatusCompleted:
		r.logger.Info("workflow run completed",
			zap.Duration("total_time", summary.TotalTime),
			zap.Float64("total_cost", r.costs.Total()),
		)
	case StatusCancelled:
		r.logger.Info("workflow run cancelled")
	default:
		r.logger.Error("workflow run failed", zap.Error(err))
	}
}

// traverse walks the compiled graph from the entry node until a terminal
// node commits, a node fails, or the run is cancelled.
func (r *run) traverse(ctx context.Context, state *schema.State) (*schema.State, error) {
	current := r.graph.Entry()
	for {
		if cerr := ctx.Err(); cerr != nil {
			return nil, types.NewError(types.ErrCancelled, "run cancelled").WithCause(cerr)
		}

		node, ok := r.graph.Node(current)
		if !ok {
			return nil, fmt.Errorf("transition into unknown node %q", current)
		}

		var err error
		state, err = r.runNode(ctx, node, state)
		if err != nil {
			return nil, err
		}

		tr := r.graph.Transition(current)
		if tr == nil {
			return state, nil
		}
		switch tr.Kind {
		case graph.TransitionLinear:
			current = tr.To
		case graph.TransitionConditional:
			current, err = r.route(current, tr, state)
			if err != nil {
				return nil, err
			}
		case graph.TransitionParallel:
			state, err = r.fanOut(ctx, tr, state)
			if err != nil {
				return nil, err
			}
			current = tr.Join
		}
	}
}

// route picks the first matching conditional target in declared order,
// falling back to the default.
func (r *run) route(from string, tr *graph.Transition, state *schema.State) (string, error) {
	scope := expr.NewScope(nil, state)
	for _, route := range tr.Routes {
		match, err := expr.Evaluate(route.When, scope)
		if err != nil {
			return "", nodeErr(from, types.PhaseResolve, 0, err)
		}
		if match {
			r.logger.Debug("route matched",
				zap.String("from", from),
				zap.String("to", route.To),
				zap.String("when", route.When),
			)
			return route.To, nil
		}
	}
	r.logger.Debug("no route matched, taking default",
		zap.String("from", from),
		zap.String("to", tr.Default),
	)
	return tr.Default, nil
}

// runNode executes one node, repeating it under its loop construct when
// declared, and commits validated outputs into state.
func (r *run) runNode(ctx context.Context, node *graph.Node, state *schema.State) (*schema.State, error) {
	if node.Loop == nil {
		outputs, err := r.engine.executor.Execute(ctx, r.id, node, state, r.graph.Defaults, 0, r)
		if err != nil {
			return nil, err
		}
		return r.apply(node, state, outputs)
	}

	loop := node.Loop
	for iter := 1; iter <= loop.MaxIterations; iter++ {
		outputs, err := r.engine.executor.Execute(ctx, r.id, node, state, r.graph.Defaults, iter, r)
		if err != nil {
			return nil, err
		}
		state, err = r.apply(node, state, outputs)
		if err != nil {
			return nil, err
		}

		scope := expr.NewScope(map[string]any{iterationVar: iter}, state)
		stop, err := expr.Evaluate(loop.Until, scope)
		if err != nil {
			return nil, nodeErr(node.Decl.ID, types.PhaseResolve, iter, err)
		}
		if stop {
			r.logger.Debug("loop predicate satisfied",
				zap.String("node_id", node.Decl.ID),
				zap.Int("iteration", iter),
			)
			break
		}
		// Exhausting max_iterations is a normal exit.
	}
	return state, nil
}

// apply commits a node's validated outputs into state.
func (r *run) apply(node *graph.Node, state *schema.State, outputs map[string]any) (*schema.State, error) {
	next, err := state.With(outputs)
	if err != nil {
		return nil, nodeErr(node.Decl.ID, types.PhaseValidate, 0, err)
	}
	return next, nil
}

// fanOut runs every parallel target against its own snapshot of the
// state at dispatch. The join is a hard barrier: every branch runs to
// completion before the first branch error, if any, fails the run.
// Sibling outputs are disjoint by compilation, so the merge is a union.
func (r *run) fanOut(ctx context.Context, tr *graph.Transition, state *schema.State) (*schema.State, error) {
	r.logger.Debug("parallel fan-out",
		zap.Strings("targets", tr.Targets),
		zap.String("join", tr.Join),
	)

	outputs := make([]map[string]any, len(tr.Targets))
	var eg errgroup.Group
	for i, target := range tr.Targets {
		node, ok := r.graph.Node(target)
		if !ok {
			return nil, fmt.Errorf("parallel target %q unknown", target)
		}
		snapshot := state.Clone()
		eg.Go(func() error {
			branchState, err := r.runNode(ctx, node, snapshot)
			if err != nil {
				return err
			}
			branch := make(map[string]any, len(node.Output.FieldNames()))
			for _, field := range node.Output.FieldNames() {
				if v, ok := branchState.Value(field); ok {
					branch[field] = v
				}
			}
			outputs[i] = branch
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]any)
	for _, branch := range outputs {
		for field, v := range branch {
			merged[field] = v
		}
	}
	next, err := state.With(merged)
	if err != nil {
		return nil, fmt.Errorf("join %q merge: %w", tr.Join, err)
	}
	return next, nil
}
