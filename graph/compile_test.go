package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgraph-io/flowgraph/schema"
)

func promptNode(id string, outputs ...string) NodeDecl {
	fields := make([]schema.FieldDecl, len(outputs))
	for i, name := range outputs {
		fields[i] = schema.FieldDecl{Name: name, Type: "string"}
	}
	return NodeDecl{
		ID:     id,
		Prompt: "work on {topic}",
		Output: schema.OutputDecl{Fields: fields},
	}
}

func linear(from, to string) EdgeDecl {
	return EdgeDecl{Linear: &LinearEdge{From: from, To: to}}
}

// testState declares topic and score plus one string field per named
// output, since outputs commit into declared state fields.
func testState(outputs ...string) []schema.FieldDecl {
	fields := []schema.FieldDecl{
		{Name: "topic", Type: "string", Required: true},
		{Name: "score", Type: "float", Default: 0.0},
	}
	for _, name := range outputs {
		fields = append(fields, schema.FieldDecl{Name: name, Type: "string"})
	}
	return fields
}

func TestCompile_LinearChain(t *testing.T) {
	spec := &Spec{
		Name:  "pipeline",
		State: testState("text", "verdict", "url"),
		Nodes: []NodeDecl{
			promptNode("draft", "text"),
			promptNode("review", "verdict"),
			promptNode("publish", "url"),
		},
		Edges: []EdgeDecl{
			linear("draft", "review"),
			linear("review", "publish"),
		},
	}

	g, err := Compile(spec)
	require.NoError(t, err)

	assert.Equal(t, "draft", g.Entry())
	assert.Equal(t, []string{"draft", "review", "publish"}, g.NodeIDs())

	tr := g.Transition("draft")
	require.NotNil(t, tr)
	assert.Equal(t, TransitionLinear, tr.Kind)
	assert.Equal(t, "review", tr.To)

	assert.Nil(t, g.Transition("publish"))
	assert.True(t, g.Terminal("publish"))
	assert.False(t, g.Terminal("draft"))

	node, ok := g.Node("review")
	require.True(t, ok)
	assert.Equal(t, []string{"verdict"}, node.Output.FieldNames())
}

func TestCompile_ConditionalAndLoop(t *testing.T) {
	spec := &Spec{
		Name:  "revise-until-good",
		State: testState("text", "feedback", "url"),
		Nodes: []NodeDecl{
			promptNode("draft", "text"),
			promptNode("grade", "feedback"),
			promptNode("ship", "url"),
			promptNode("revise", "text"),
		},
		Edges: []EdgeDecl{
			linear("draft", "grade"),
			{Conditional: &ConditionalEdge{
				From: "grade",
				Routes: []Route{
					{When: "score >= 0.8", To: "ship"},
				},
				Default: "revise",
			}},
			linear("revise", "ship"),
			{Loop: &LoopEdge{Node: "revise", MaxIterations: 3, Until: "score >= 0.8"}},
		},
	}

	g, err := Compile(spec)
	require.NoError(t, err)

	tr := g.Transition("grade")
	require.NotNil(t, tr)
	assert.Equal(t, TransitionConditional, tr.Kind)
	require.Len(t, tr.Routes, 1)
	assert.Equal(t, "ship", tr.Routes[0].To)
	assert.Equal(t, "revise", tr.Default)

	revise, ok := g.Node("revise")
	require.True(t, ok)
	require.NotNil(t, revise.Loop)
	assert.Equal(t, 3, revise.Loop.MaxIterations)
}

func TestCompile_ParallelFanOut(t *testing.T) {
	spec := &Spec{
		Name:  "fan-out",
		State: testState("outline", "intro_text", "body_text", "document"),
		Nodes: []NodeDecl{
			promptNode("plan", "outline"),
			promptNode("intro", "intro_text"),
			promptNode("body", "body_text"),
			promptNode("merge", "document"),
		},
		Edges: []EdgeDecl{
			{Parallel: &ParallelEdge{
				From:    "plan",
				Targets: []string{"intro", "body"},
				Join:    "merge",
			}},
		},
	}

	g, err := Compile(spec)
	require.NoError(t, err)

	tr := g.Transition("plan")
	require.NotNil(t, tr)
	assert.Equal(t, TransitionParallel, tr.Kind)
	assert.Equal(t, []string{"intro", "body"}, tr.Targets)
	assert.Equal(t, "merge", tr.Join)

	// Branch targets flow only into the join and are not terminals.
	assert.Nil(t, g.Transition("intro"))
	assert.False(t, g.Terminal("intro"))
	assert.True(t, g.Terminal("merge"))
}

func TestCompile_StructureViolations(t *testing.T) {
	tests := []struct {
		name string
		spec *Spec
		want string
	}{
		{
			name: "no nodes",
			spec: &Spec{Name: "empty", State: testState()},
			want: "declares no nodes",
		},
		{
			name: "duplicate node id",
			spec: &Spec{
				Name:  "dup",
				State: testState("x", "y"),
				Nodes: []NodeDecl{promptNode("a", "x"), promptNode("a", "y")},
			},
			want: "duplicate node id",
		},
		{
			name: "node without prompt or code",
			spec: &Spec{
				Name:  "blank",
				State: testState("result"),
				Nodes: []NodeDecl{{ID: "a", Output: schema.OutputDecl{Scalar: "string"}}},
			},
			want: "neither prompt nor code",
		},
		{
			name: "output field missing from state",
			spec: &Spec{
				Name:  "orphan-output",
				State: testState(),
				Nodes: []NodeDecl{promptNode("a", "x")},
			},
			want: "not declared in workflow state",
		},
		{
			name: "linear edge to unknown node",
			spec: &Spec{
				Name:  "dangling",
				State: testState("x"),
				Nodes: []NodeDecl{promptNode("a", "x")},
				Edges: []EdgeDecl{linear("a", "ghost")},
			},
			want: "unknown node",
		},
		{
			name: "two outgoing edges on one node",
			spec: &Spec{
				Name:  "forked",
				State: testState("x", "y", "z"),
				Nodes: []NodeDecl{promptNode("a", "x"), promptNode("b", "y"), promptNode("c", "z")},
				Edges: []EdgeDecl{linear("a", "b"), linear("a", "c")},
			},
			want: "more than one outgoing edge",
		},
		{
			name: "conditional without default",
			spec: &Spec{
				Name:  "nodefault",
				State: testState("x", "y"),
				Nodes: []NodeDecl{promptNode("a", "x"), promptNode("b", "y")},
				Edges: []EdgeDecl{{Conditional: &ConditionalEdge{
					From:   "a",
					Routes: []Route{{When: "score > 0.5", To: "b"}},
				}}},
			},
			want: "lacks a default",
		},
		{
			name: "conditional with malformed predicate",
			spec: &Spec{
				Name:  "badpred",
				State: testState("x", "y"),
				Nodes: []NodeDecl{promptNode("a", "x"), promptNode("b", "y")},
				Edges: []EdgeDecl{{Conditional: &ConditionalEdge{
					From:    "a",
					Routes:  []Route{{When: "score >= >=", To: "b"}},
					Default: "b",
				}}},
			},
			want: "predicate",
		},
		{
			name: "loop without max iterations",
			spec: &Spec{
				Name:  "unbounded",
				State: testState("x", "y"),
				Nodes: []NodeDecl{promptNode("a", "x"), promptNode("b", "y")},
				Edges: []EdgeDecl{
					linear("a", "b"),
					{Loop: &LoopEdge{Node: "b", Until: "score > 0.9"}},
				},
			},
			want: "max_iterations",
		},
		{
			name: "parallel with single target",
			spec: &Spec{
				Name:  "narrow",
				State: testState("x", "y", "z"),
				Nodes: []NodeDecl{promptNode("a", "x"), promptNode("b", "y"), promptNode("j", "z")},
				Edges: []EdgeDecl{{Parallel: &ParallelEdge{
					From:    "a",
					Targets: []string{"b"},
					Join:    "j",
				}}},
			},
			want: "at least 2 targets",
		},
		{
			name: "parallel siblings write same output field",
			spec: &Spec{
				Name:  "overlap",
				State: testState("x", "summary", "z"),
				Nodes: []NodeDecl{
					promptNode("a", "x"),
					promptNode("b", "summary"),
					promptNode("c", "summary"),
					promptNode("j", "z"),
				},
				Edges: []EdgeDecl{{Parallel: &ParallelEdge{
					From:    "a",
					Targets: []string{"b", "c"},
					Join:    "j",
				}}},
			},
			want: "both write output field",
		},
		{
			name: "parallel target with escape edge",
			spec: &Spec{
				Name:  "escape",
				State: testState("x", "y", "z", "w"),
				Nodes: []NodeDecl{
					promptNode("a", "x"),
					promptNode("b", "y"),
					promptNode("c", "z"),
					promptNode("j", "w"),
				},
				Edges: []EdgeDecl{
					{Parallel: &ParallelEdge{From: "a", Targets: []string{"b", "c"}, Join: "j"}},
					linear("b", "j"),
				},
			},
			want: "must flow only into its join",
		},
		{
			name: "multiple entry nodes",
			spec: &Spec{
				Name:  "twoheads",
				State: testState("x", "y", "z"),
				Nodes: []NodeDecl{promptNode("a", "x"), promptNode("b", "y"), promptNode("c", "z")},
				Edges: []EdgeDecl{linear("a", "c"), linear("b", "c")},
			},
			want: "multiple entry nodes",
		},
		{
			name: "cycle outside a declared loop",
			spec: &Spec{
				Name:  "ouroboros",
				State: testState("x", "y", "z"),
				Nodes: []NodeDecl{promptNode("a", "x"), promptNode("b", "y"), promptNode("c", "z")},
				Edges: []EdgeDecl{linear("a", "b"), linear("b", "c"), linear("c", "b")},
			},
			want: "no terminal node",
		},
		{
			name: "empty edge variant",
			spec: &Spec{
				Name:  "blank-edge",
				State: testState("x"),
				Nodes: []NodeDecl{promptNode("a", "x")},
				Edges: []EdgeDecl{{}},
			},
			want: "no variant",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.spec)
			require.Error(t, err)
			var structErr *StructureError
			require.ErrorAs(t, err, &structErr)
			require.NotEmpty(t, structErr.Violations)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCompile_ReportsAllViolationsAtOnce(t *testing.T) {
	spec := &Spec{
		Name:  "broken",
		State: testState("x", "y", "result"),
		Nodes: []NodeDecl{
			promptNode("a", "x"),
			promptNode("b", "y"),
			{ID: "c", Output: schema.OutputDecl{Scalar: "string"}},
		},
		Edges: []EdgeDecl{
			linear("a", "ghost"),
			{Loop: &LoopEdge{Node: "b", Until: ""}},
		},
	}

	_, err := Compile(spec)
	require.Error(t, err)
	var structErr *StructureError
	require.ErrorAs(t, err, &structErr)
	assert.GreaterOrEqual(t, len(structErr.Violations), 3)
}

func TestCompile_StateSchemaErrorsSurfaceDirectly(t *testing.T) {
	spec := &Spec{
		Name: "badstate",
		State: []schema.FieldDecl{
			{Name: "count", Type: "int", Required: true, Default: 3},
		},
		Nodes: []NodeDecl{promptNode("a", "x")},
	}

	_, err := Compile(spec)
	require.Error(t, err)
	var buildErr *schema.BuildError
	assert.ErrorAs(t, err, &buildErr)
}

func TestParseSpec_YAMLRoundTrip(t *testing.T) {
	doc := []byte(`
name: summarize
state:
  - name: topic
    type: string
    required: true
  - name: score
    type: float
    default: 0.0
  - name: text
    type: string
  - name: feedback
    type: string
defaults:
  provider: openai
  model: gpt-4o
nodes:
  - id: draft
    prompt: "Write about {topic}"
    output:
      fields:
        - name: text
          type: string
  - id: grade
    prompt: "Grade: {text}"
    inputs:
      text: "{text}"
    output:
      fields:
        - name: feedback
          type: string
edges:
  - linear:
      from: draft
      to: grade
`)

	spec, err := ParseSpec(doc)
	require.NoError(t, err)
	assert.Equal(t, "summarize", spec.Name)
	assert.Equal(t, "openai", spec.Defaults.Provider())

	g, err := Compile(spec)
	require.NoError(t, err)
	assert.Equal(t, "draft", g.Entry())
	assert.Equal(t, "gpt-4o", g.Defaults.Model())
}
