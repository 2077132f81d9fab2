package graph

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/flowgraph-io/flowgraph/capability"
	"github.com/flowgraph-io/flowgraph/schema"
)

// Spec is the declarative workflow definition. It is immutable once
// compiled; the compiler never mutates it.
type Spec struct {
	Name        string             `yaml:"name" json:"name"`
	Description string             `yaml:"description,omitempty" json:"description,omitempty"`
	State       []schema.FieldDecl `yaml:"state" json:"state"`
	Defaults    capability.Config  `yaml:"defaults,omitempty" json:"defaults,omitempty"`
	Nodes       []NodeDecl         `yaml:"nodes" json:"nodes"`
	Edges       []EdgeDecl         `yaml:"edges" json:"edges"`
}

// NodeDecl declares one unit of work: an LLM call shaped by Output,
// optionally combined with a sandboxed code block.
type NodeDecl struct {
	ID string `yaml:"id" json:"id"`

	// Prompt is the template sent to the LLM capability. {path}
	// placeholders resolve against the input mapping and current state.
	Prompt string `yaml:"prompt,omitempty" json:"prompt,omitempty"`

	// Inputs is the node-local input mapping. Values are templates
	// resolved against the current state; resolved entries win over state
	// paths during prompt resolution.
	Inputs map[string]string `yaml:"inputs,omitempty" json:"inputs,omitempty"`

	// Output declares the result shape the capability must produce.
	Output schema.OutputDecl `yaml:"output" json:"output"`

	// Tools lists tool names acquired from the registry at execution time.
	Tools []string `yaml:"tools,omitempty" json:"tools,omitempty"`

	// Config overrides workflow-level capability defaults per key.
	Config capability.Config `yaml:"config,omitempty" json:"config,omitempty"`

	// Code, when set, runs in the sandbox capability with concrete
	// resolved state bindings instead of the LLM call.
	Code string `yaml:"code,omitempty" json:"code,omitempty"`
}

// EdgeDecl is the tagged edge variant; exactly one member must be set.
type EdgeDecl struct {
	Linear      *LinearEdge      `yaml:"linear,omitempty" json:"linear,omitempty"`
	Conditional *ConditionalEdge `yaml:"conditional,omitempty" json:"conditional,omitempty"`
	Loop        *LoopEdge        `yaml:"loop,omitempty" json:"loop,omitempty"`
	Parallel    *ParallelEdge    `yaml:"parallel,omitempty" json:"parallel,omitempty"`
}

// LinearEdge is a single unconditional successor.
type LinearEdge struct {
	From string `yaml:"from" json:"from"`
	To   string `yaml:"to" json:"to"`
}

// Route is one predicate/target pair of a conditional edge.
type Route struct {
	When string `yaml:"when" json:"when"`
	To   string `yaml:"to" json:"to"`
}

// ConditionalEdge routes to the first route whose predicate evaluates
// true, in declared order, or to Default when none match. Default is
// mandatory.
type ConditionalEdge struct {
	From    string  `yaml:"from" json:"from"`
	Routes  []Route `yaml:"routes" json:"routes"`
	Default string  `yaml:"default" json:"default"`
}

// LoopEdge re-enters Node while Until stays false, bounded by the
// mandatory MaxIterations. Exceeding the bound is a normal exit.
type LoopEdge struct {
	Node          string `yaml:"node" json:"node"`
	MaxIterations int    `yaml:"max_iterations" json:"max_iterations"`
	Until         string `yaml:"until" json:"until"`
}

// ParallelEdge dispatches to all targets concurrently, each against an
// independent snapshot of state-at-dispatch, then synchronizes at Join.
type ParallelEdge struct {
	From    string   `yaml:"from" json:"from"`
	Targets []string `yaml:"targets" json:"targets"`
	Join    string   `yaml:"join" json:"join"`
}

// ParseSpec decodes a YAML workflow definition.
func ParseSpec(data []byte) (*Spec, error) {
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse workflow spec: %w", err)
	}
	return &spec, nil
}

// LoadSpec reads and decodes a YAML workflow definition from disk.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow spec: %w", err)
	}
	return ParseSpec(data)
}
