package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/flowgraph-io/flowgraph/capability"
	"github.com/flowgraph-io/flowgraph/expr"
	"github.com/flowgraph-io/flowgraph/graph"
	"github.com/flowgraph-io/flowgraph/schema"
	"github.com/flowgraph-io/flowgraph/types"
)

// defaultSandboxTimeout bounds code blocks that do not configure their own.
const defaultSandboxTimeout = 30 * time.Second

// Sink receives the execution record of every node invocation, successful
// or failed. Commit prices the usage, stores the record, and returns the
// estimated cost.
type Sink interface {
	Commit(rec types.ExecutionRecord, provider, model string) float64
}

// Executor runs one node end to end: resolve inputs and prompt, invoke
// the LLM or sandbox capability, validate the output against the node's
// declared shape, and retry within policy. Every invocation commits
// exactly one record through the Sink, failures included; calls released
// by cancellation commit nothing.
type Executor struct {
	llm       capability.LLM
	sandbox   capability.Sandbox
	tools     capability.ToolRegistry
	estimator *capability.TokenEstimator
	retry     RetryPolicy
	logger    *zap.Logger
}

// NewExecutor builds a node executor. sandbox may be nil when no node
// declares code blocks; tools may be nil when no node declares tools.
func NewExecutor(llm capability.LLM, sandbox capability.Sandbox, tools capability.ToolRegistry,
	estimator *capability.TokenEstimator, retry RetryPolicy, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		llm:       llm,
		sandbox:   sandbox,
		tools:     tools,
		estimator: estimator,
		retry:     retry.normalized(),
		logger:    logger.With(zap.String("component", "executor")),
	}
}

// Execute runs the node against the given state and returns the validated
// output record. iteration is nonzero inside loop constructs.
func (e *Executor) Execute(ctx context.Context, runID string, node *graph.Node,
	state *schema.State, defaults capability.Config, iteration int, sink Sink) (map[string]any, error) {

	decl := node.Decl
	cfg := defaults.Merge(decl.Config)
	start := time.Now()

	inputs, err := resolveInputs(decl.Inputs, state)
	if err != nil {
		e.commit(sink, runID, decl.ID, cfg, start, types.Usage{}, iteration, err)
		return nil, nodeErr(decl.ID, types.PhaseResolve, 0, err)
	}
	scope := expr.NewScope(inputs, state)

	if decl.Code != "" {
		return e.executeCode(ctx, runID, node, state, inputs, cfg, iteration, sink)
	}

	prompt, err := expr.Resolve(decl.Prompt, scope)
	if err != nil {
		e.commit(sink, runID, decl.ID, cfg, start, types.Usage{}, iteration, err)
		return nil, nodeErr(decl.ID, types.PhaseResolve, 0, err)
	}

	tools, err := e.acquireTools(decl.Tools)
	if err != nil {
		e.commit(sink, runID, decl.ID, cfg, start, types.Usage{}, iteration, err)
		return nil, nodeErr(decl.ID, types.PhaseResolve, 0, err)
	}

	shape := node.Output.Describe()
	attemptPrompt := prompt

	for attempt := 1; attempt <= e.retry.MaxAttempts; attempt++ {
		req := &capability.Request{
			NodeID:      decl.ID,
			Prompt:      attemptPrompt,
			OutputShape: shape,
			Tools:       tools,
			Config:      cfg,
		}

		attemptStart := time.Now()
		resp, err := e.llm.Invoke(ctx, req)
		if err != nil {
			// A released in-flight call is not an invocation outcome:
			// cancellation never mints a record.
			if isCancellation(err) {
				return nil, nodeErr(decl.ID, types.PhaseInvoke, attempt, err)
			}
			e.commit(sink, runID, decl.ID, cfg, attemptStart, types.Usage{}, iteration, err)
			if types.IsRetryable(err) && attempt < e.retry.MaxAttempts {
				e.logger.Debug("transient provider failure, backing off",
					zap.String("node_id", decl.ID),
					zap.Int("attempt", attempt),
					zap.Error(err),
				)
				if werr := e.retry.wait(ctx, attempt); werr != nil {
					return nil, nodeErr(decl.ID, types.PhaseInvoke, attempt,
						types.NewError(types.ErrCancelled, "node cancelled during backoff").WithCause(werr))
				}
				continue
			}
			return nil, nodeErr(decl.ID, types.PhaseInvoke, attempt, err)
		}

		usage := e.fillUsage(resp, attemptPrompt)

		validated, verr := node.Output.Validate(resp.Payload)
		if verr != nil {
			e.commit(sink, runID, decl.ID, cfg, attemptStart, usage, iteration, verr)
			if attempt < e.retry.MaxAttempts {
				e.logger.Debug("output validation failed, amending prompt",
					zap.String("node_id", decl.ID),
					zap.Int("attempt", attempt),
					zap.Error(verr),
				)
				attemptPrompt = amendPrompt(prompt, shape, verr)
				continue
			}
			return nil, nodeErr(decl.ID, types.PhaseValidate, attempt, verr)
		}

		e.commit(sink, runID, decl.ID, cfg, attemptStart, usage, iteration, nil)
		return validated, nil
	}

	// Unreachable: the loop always returns.
	return nil, nodeErr(decl.ID, types.PhaseInvoke, e.retry.MaxAttempts,
		fmt.Errorf("retry budget exhausted"))
}

// executeCode runs a node's code block in the sandbox against concrete
// resolved bindings. Sandbox failures are never retried.
func (e *Executor) executeCode(ctx context.Context, runID string, node *graph.Node,
	state *schema.State, inputs map[string]any, cfg capability.Config, iteration int, sink Sink) (map[string]any, error) {

	decl := node.Decl
	start := time.Now()

	if e.sandbox == nil {
		err := types.NewError(types.ErrNodeExecution, "no sandbox capability configured")
		e.commit(sink, runID, decl.ID, cfg, start, types.Usage{}, iteration, err)
		return nil, nodeErr(decl.ID, types.PhaseInvoke, 1, err)
	}

	bindings := state.Map()
	for name, v := range inputs {
		bindings[name] = v
	}

	result, err := e.sandbox.Run(ctx, decl.Code, bindings, capability.Limits{Timeout: defaultSandboxTimeout})
	if err != nil {
		if isCancellation(err) {
			return nil, nodeErr(decl.ID, types.PhaseInvoke, 1, err)
		}
		e.commit(sink, runID, decl.ID, cfg, start, types.Usage{}, iteration, err)
		return nil, nodeErr(decl.ID, types.PhaseInvoke, 1, err)
	}

	payload, ok := result.(map[string]any)
	if !ok {
		payload = map[string]any{schema.ScalarField: result}
	}

	validated, verr := node.Output.Validate(payload)
	if verr != nil {
		e.commit(sink, runID, decl.ID, cfg, start, types.Usage{}, iteration, verr)
		return nil, nodeErr(decl.ID, types.PhaseValidate, 1, verr)
	}

	e.commit(sink, runID, decl.ID, cfg, start, types.Usage{}, iteration, nil)
	return validated, nil
}

// commit builds and hands off the invocation record for one attempt.
func (e *Executor) commit(sink Sink, runID, nodeID string, cfg capability.Config,
	start time.Time, usage types.Usage, iteration int, err error) {
	if sink == nil {
		return
	}
	end := time.Now()
	rec := types.ExecutionRecord{
		RunID:     runID,
		NodeID:    nodeID,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
		Usage:     usage,
		Iteration: iteration,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	sink.Commit(rec, cfg.Provider(), cfg.Model())
}

// fillUsage takes provider-reported usage or estimates locally when the
// provider reports none.
func (e *Executor) fillUsage(resp *capability.Response, prompt string) types.Usage {
	usage := resp.Usage
	if !usage.IsZero() || e.estimator == nil {
		return usage
	}
	usage.PromptTokens = e.estimator.Count(prompt)
	if data, err := json.Marshal(resp.Payload); err == nil {
		usage.CompletionTokens = e.estimator.Count(string(data))
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	return usage
}

// isCancellation reports whether a capability call failed because the run
// was released rather than because the capability itself failed.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || types.GetErrorCode(err) == types.ErrCancelled
}

// acquireTools resolves declared tool names through the registry.
func (e *Executor) acquireTools(names []string) ([]capability.Tool, error) {
	if len(names) == 0 {
		return nil, nil
	}
	if e.tools == nil {
		return nil, capability.NotFound(names[0])
	}
	tools := make([]capability.Tool, 0, len(names))
	for _, name := range names {
		tool, err := e.tools.Get(name)
		if err != nil {
			return nil, err
		}
		tools = append(tools, tool)
	}
	return tools, nil
}

// resolveInputs resolves the node-local input mapping against state. A
// template that is exactly one placeholder keeps the value's type.
func resolveInputs(mapping map[string]string, state *schema.State) (map[string]any, error) {
	if len(mapping) == 0 {
		return nil, nil
	}
	scope := expr.NewScope(nil, state)
	inputs := make(map[string]any, len(mapping))
	for name, tpl := range mapping {
		v, err := expr.ResolveValue(tpl, scope)
		if err != nil {
			return nil, err
		}
		inputs[name] = v
	}
	return inputs, nil
}

// amendPrompt restates the required shape after a validation failure so
// the next attempt can self-correct.
func amendPrompt(prompt, shape string, verr error) string {
	return fmt.Sprintf("%s\n\nYour previous response was invalid: %v.\nRespond with exactly these fields: %s.",
		prompt, verr, shape)
}
