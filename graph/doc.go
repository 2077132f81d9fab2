// Package graph declares workflow specifications and compiles them into
// executable graphs.
//
// A Spec lists typed state fields, node declarations, and an edge set of
// four variants: linear, conditional routing, loop-back, and parallel
// fan-out/fan-in. Compile validates the whole structure once — exactly one
// entry, at least one terminal, full reachability, no cycles outside
// declared loops, disjoint parallel sibling outputs — and returns a
// CompiledGraph the engine can traverse without further structural checks.
// Violations surface as a StructureError before any execution begins.
package graph
