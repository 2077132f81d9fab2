// Package schema turns declarative field descriptions into validated,
// immutable state containers and output validators.
//
// A workflow declares its state as an ordered list of FieldDecl entries.
// BuildState compiles them once into a StateSchema; malformed declarations
// fail at build time and never surface mid-run. The schema then acts as a
// factory: every instantiation and every transition produces a fresh,
// deep-copied State, so no two execution steps ever alias each other's data.
//
// Node result shapes go through the same pipeline: BuildOutput compiles a
// node's declared outputs into an OutputSchema whose Validate enforces that
// a capability payload matches the declaration exactly.
package schema
