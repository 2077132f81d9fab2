package graph

import (
	"fmt"
	"strings"

	"github.com/flowgraph-io/flowgraph/capability"
	"github.com/flowgraph-io/flowgraph/expr"
	"github.com/flowgraph-io/flowgraph/schema"
	"github.com/flowgraph-io/flowgraph/types"
)

// StructureError collects every structural violation found during
// compilation. It is fatal, never retried, and always surfaces before a
// run starts.
type StructureError struct {
	Violations []string
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("[%s] invalid workflow graph: %s",
		types.ErrGraphStructure, strings.Join(e.Violations, "; "))
}

// TransitionKind discriminates a node's outgoing control flow.
type TransitionKind int

const (
	TransitionLinear TransitionKind = iota
	TransitionConditional
	TransitionParallel
)

// Transition is a node's compiled outgoing edge. Terminal nodes have none.
type Transition struct {
	Kind    TransitionKind
	To      string   // linear successor
	Routes  []Route  // conditional, evaluated in declared order
	Default string   // conditional fallback, always present
	Targets []string // parallel branch entries
	Join    string   // parallel barrier node
}

// Node is a compiled node: its declaration, validated output schema, and
// the loop attached to it, if any.
type Node struct {
	Decl   NodeDecl
	Output *schema.OutputSchema
	Loop   *LoopEdge
}

// CompiledGraph is the validated executable form of a Spec. All
// structural guarantees hold by construction; the engine performs no
// further structure checks at run time.
type CompiledGraph struct {
	Name        string
	StateSchema *schema.StateSchema
	Defaults    capability.Config

	nodes       map[string]*Node
	order       []string
	entry       string
	transitions map[string]*Transition
	branchOf    map[string]string // parallel target -> join
}

// Entry returns the entry node id.
func (g *CompiledGraph) Entry() string { return g.entry }

// Node returns a compiled node by id.
func (g *CompiledGraph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// NodeIDs returns all node ids in declaration order.
func (g *CompiledGraph) NodeIDs() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Transition returns a node's outgoing transition, or nil for terminals
// and parallel branch targets (whose successor is their join barrier).
func (g *CompiledGraph) Transition(id string) *Transition {
	return g.transitions[id]
}

// Terminal reports whether the node ends a traversal path.
func (g *CompiledGraph) Terminal(id string) bool {
	_, isBranch := g.branchOf[id]
	return g.transitions[id] == nil && !isBranch
}

// Compile validates a workflow spec and produces its executable graph.
// Schema problems return schema.BuildError; structural problems return a
// StructureError listing every violation at once.
func Compile(spec *Spec) (*CompiledGraph, error) {
	if spec == nil {
		return nil, &StructureError{Violations: []string{"spec is nil"}}
	}

	stateSchema, err := schema.BuildState(spec.State)
	if err != nil {
		return nil, err
	}

	g := &CompiledGraph{
		Name:        spec.Name,
		StateSchema: stateSchema,
		Defaults:    spec.Defaults,
		nodes:       make(map[string]*Node, len(spec.Nodes)),
		transitions: make(map[string]*Transition),
		branchOf:    make(map[string]string),
	}

	var violations []string
	fail := func(format string, args ...any) {
		violations = append(violations, fmt.Sprintf(format, args...))
	}

	if len(spec.Nodes) == 0 {
		fail("workflow declares no nodes")
	}

	stateFields := make(map[string]bool)
	for _, name := range stateSchema.Fields() {
		stateFields[name] = true
	}

	for _, decl := range spec.Nodes {
		if decl.ID == "" {
			fail("node id must not be empty")
			continue
		}
		if _, dup := g.nodes[decl.ID]; dup {
			fail("duplicate node id %q", decl.ID)
			continue
		}
		if decl.Prompt == "" && decl.Code == "" {
			fail("node %q declares neither prompt nor code", decl.ID)
		}

		output, err := schema.BuildOutput(decl.ID, decl.Output)
		if err != nil {
			return nil, err
		}
		// Outputs commit into state, so every output field must be a
		// declared state field.
		for _, field := range output.FieldNames() {
			if !stateFields[field] {
				fail("node %q output field %q not declared in workflow state", decl.ID, field)
			}
		}
		g.nodes[decl.ID] = &Node{Decl: decl, Output: output}
		g.order = append(g.order, decl.ID)
	}

	exists := func(id string) bool {
		_, ok := g.nodes[id]
		return ok
	}
	setTransition := func(from string, tr *Transition) {
		if _, conflict := g.transitions[from]; conflict {
			fail("node %q has more than one outgoing edge", from)
			return
		}
		g.transitions[from] = tr
	}

	incoming := make(map[string]int, len(g.nodes))
	arrive := func(id string) { incoming[id]++ }

	for _, edge := range spec.Edges {
		switch {
		case edge.Linear != nil:
			e := edge.Linear
			if !exists(e.From) || !exists(e.To) {
				fail("linear edge references unknown node (%q -> %q)", e.From, e.To)
				continue
			}
			setTransition(e.From, &Transition{Kind: TransitionLinear, To: e.To})
			arrive(e.To)

		case edge.Conditional != nil:
			e := edge.Conditional
			if !exists(e.From) {
				fail("conditional edge from unknown node %q", e.From)
				continue
			}
			if len(e.Routes) == 0 {
				fail("conditional edge from %q declares no routes", e.From)
			}
			if e.Default == "" {
				fail("conditional edge from %q lacks a default target", e.From)
			} else if !exists(e.Default) {
				fail("conditional edge from %q: default target %q unknown", e.From, e.Default)
			} else {
				arrive(e.Default)
			}
			for _, route := range e.Routes {
				if !exists(route.To) {
					fail("conditional edge from %q: target %q unknown", e.From, route.To)
					continue
				}
				if err := expr.CheckSyntax(route.When); err != nil {
					fail("conditional edge from %q: predicate %q: %v", e.From, route.When, err)
				}
				arrive(route.To)
			}
			setTransition(e.From, &Transition{
				Kind:    TransitionConditional,
				Routes:  e.Routes,
				Default: e.Default,
			})

		case edge.Loop != nil:
			e := edge.Loop
			node, ok := g.nodes[e.Node]
			if !ok {
				fail("loop edge references unknown node %q", e.Node)
				continue
			}
			if node.Loop != nil {
				fail("node %q declares more than one loop", e.Node)
				continue
			}
			if e.MaxIterations < 1 {
				fail("loop on %q requires max_iterations >= 1", e.Node)
			}
			if e.Until == "" {
				fail("loop on %q lacks an until predicate", e.Node)
			} else if err := expr.CheckSyntax(e.Until); err != nil {
				fail("loop on %q: predicate %q: %v", e.Node, e.Until, err)
			}
			loop := *e
			node.Loop = &loop

		case edge.Parallel != nil:
			e := edge.Parallel
			if !exists(e.From) {
				fail("parallel edge from unknown node %q", e.From)
				continue
			}
			if len(e.Targets) < 2 {
				fail("parallel edge from %q requires at least 2 targets", e.From)
			}
			if !exists(e.Join) {
				fail("parallel edge from %q: join node %q unknown", e.From, e.Join)
				continue
			}
			seen := make(map[string]bool, len(e.Targets))
			for _, target := range e.Targets {
				if !exists(target) {
					fail("parallel edge from %q: target %q unknown", e.From, target)
					continue
				}
				if seen[target] {
					fail("parallel edge from %q: duplicate target %q", e.From, target)
					continue
				}
				seen[target] = true
				if target == e.Join {
					fail("parallel edge from %q: join %q cannot be a target", e.From, e.Join)
					continue
				}
				g.branchOf[target] = e.Join
				arrive(target)
			}
			checkDisjointOutputs(g, e, fail)
			arrive(e.Join)
			setTransition(e.From, &Transition{
				Kind:    TransitionParallel,
				Targets: e.Targets,
				Join:    e.Join,
			})

		default:
			fail("edge declares no variant")
		}
	}

	// Parallel targets hand off to the join barrier; an explicit outgoing
	// edge on a target would bypass it.
	for target, join := range g.branchOf {
		if g.transitions[target] != nil {
			fail("parallel target %q must flow only into its join %q", target, join)
		}
	}

	// Exactly one entry: the single node nothing flows into.
	var entries []string
	for _, id := range g.order {
		if incoming[id] == 0 {
			entries = append(entries, id)
		}
	}
	switch len(entries) {
	case 1:
		g.entry = entries[0]
	case 0:
		fail("workflow has no entry node")
	default:
		fail("workflow has multiple entry nodes: %s", strings.Join(entries, ", "))
	}

	// At least one terminal.
	var terminals []string
	for _, id := range g.order {
		if g.Terminal(id) {
			terminals = append(terminals, id)
		}
	}
	if len(terminals) == 0 {
		fail("workflow has no terminal node")
	}

	if len(violations) > 0 {
		return nil, &StructureError{Violations: violations}
	}

	validateFlow(g, terminals, fail)
	if len(violations) > 0 {
		return nil, &StructureError{Violations: violations}
	}

	return g, nil
}

// checkDisjointOutputs rejects fan-out sibling sets whose declared output
// fields overlap, which forces disjoint writes and sidesteps undefined
// merge semantics at the join.
func checkDisjointOutputs(g *CompiledGraph, e *ParallelEdge, fail func(string, ...any)) {
	owner := make(map[string]string)
	for _, target := range e.Targets {
		node, ok := g.nodes[target]
		if !ok {
			continue
		}
		for _, field := range node.Output.FieldNames() {
			if prev, clash := owner[field]; clash {
				fail("parallel targets %q and %q both write output field %q", prev, target, field)
				continue
			}
			owner[field] = target
		}
	}
}

// successors lists every node control can flow to from id, with parallel
// targets flowing into their join.
func (g *CompiledGraph) successors(id string) []string {
	if join, ok := g.branchOf[id]; ok {
		return []string{join}
	}
	tr := g.transitions[id]
	if tr == nil {
		return nil
	}
	switch tr.Kind {
	case TransitionLinear:
		return []string{tr.To}
	case TransitionConditional:
		out := make([]string, 0, len(tr.Routes)+1)
		for _, route := range tr.Routes {
			out = append(out, route.To)
		}
		return append(out, tr.Default)
	case TransitionParallel:
		return append(append([]string{}, tr.Targets...), tr.Join)
	}
	return nil
}

// validateFlow checks reachability from the entry, a path to a terminal
// from every node, and acyclicity outside declared loop constructs.
func validateFlow(g *CompiledGraph, terminals []string, fail func(string, ...any)) {
	// Forward reachability from entry.
	reached := map[string]bool{g.entry: true}
	queue := []string{g.entry}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range g.successors(id) {
			if !reached[next] {
				reached[next] = true
				queue = append(queue, next)
			}
		}
	}
	for _, id := range g.order {
		if !reached[id] {
			fail("node %q is unreachable from entry %q", id, g.entry)
		}
	}

	// Reverse reachability from terminals.
	reverse := make(map[string][]string)
	for _, id := range g.order {
		for _, next := range g.successors(id) {
			reverse[next] = append(reverse[next], id)
		}
	}
	canFinish := make(map[string]bool, len(terminals))
	queue = queue[:0]
	for _, id := range terminals {
		canFinish[id] = true
		queue = append(queue, id)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, prev := range reverse[id] {
			if !canFinish[prev] {
				canFinish[prev] = true
				queue = append(queue, prev)
			}
		}
	}
	for _, id := range g.order {
		if !canFinish[id] {
			fail("node %q has no path to a terminal", id)
		}
	}

	// Cycle detection over the transition graph. Declared loops re-enter
	// a single node under the engine's iteration bound and are not edges
	// here, so any remaining cycle is a structural error.
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.order))
	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		for _, next := range g.successors(id) {
			switch color[next] {
			case gray:
				fail("cycle detected through node %q outside a declared loop", next)
				return false
			case white:
				if !visit(next) {
					return false
				}
			}
		}
		color[id] = black
		return true
	}
	for _, id := range g.order {
		if color[id] == white {
			if !visit(id) {
				return
			}
		}
	}
}
