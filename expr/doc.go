// Package expr resolves {path} template placeholders and evaluates routing
// and loop predicates against workflow state.
//
// Resolution consults two sources in strict precedence order: the node's
// local input mapping wins over the current state container, which is
// addressed by dot-path at arbitrary depth. Unresolved paths fail with a
// ResolutionError carrying a best-effort suggestion and the full list of
// valid paths.
//
// Predicates are short boolean expressions over resolved paths and
// literals. The evaluator is a restricted-grammar recursive descent parser
// supporting only comparison, boolean, and arithmetic operators; it never
// delegates to a general-purpose dynamic evaluator, so user-supplied
// expressions cannot execute arbitrary code.
package expr
