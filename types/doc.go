// Package types provides the shared type contracts of the flowgraph
// framework: the structured error model, execution phases, and token usage
// accounting. It is the lowest layer and depends on no other flowgraph
// package, so every module can import it freely.
package types
