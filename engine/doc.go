// Package engine executes compiled workflow graphs.
//
// An Engine binds the external capabilities (LLM, sandbox, tools, pricing,
// persistence) and launches runs over graph.CompiledGraph values. Each run
// traverses the graph sequentially, fans parallel targets out onto
// goroutines with independent state snapshots, bounds loop constructs with
// their declared iteration limit, and commits exactly one execution record
// per capability invocation, failures included. Runs are addressable by id
// for Status, Trace, Bottlenecks, and Cancel; synchronous calls that
// outlive their timeout convert into a live Handle without aborting the
// run.
package engine
