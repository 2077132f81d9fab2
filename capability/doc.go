// Package capability defines the narrow interfaces through which the
// execution engine consumes its external collaborators: the LLM provider,
// the tool registry, the pricing lookup, the sandboxed code runner, and
// the append-only record store. The engine never depends on concrete
// providers; callers inject implementations of these interfaces.
//
// The package also ships the small built-in implementations the framework
// needs out of the box: a table-driven pricer, a tiktoken-backed token
// estimator, and a client-side rate-limiting wrapper for LLM capabilities.
package capability
