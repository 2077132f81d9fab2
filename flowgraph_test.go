package flowgraph_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgraph-io/flowgraph"
	"github.com/flowgraph-io/flowgraph/graph"
	"github.com/flowgraph-io/flowgraph/schema"
	"github.com/flowgraph-io/flowgraph/testutil/mocks"
)

func TestNew_CompilesAndRuns(t *testing.T) {
	spec := &flowgraph.Spec{
		Name: "hello",
		State: []schema.FieldDecl{
			{Name: "topic", Type: "string", Required: true},
			{Name: "text", Type: "string"},
		},
		Nodes: []graph.NodeDecl{{
			ID:     "draft",
			Prompt: "Write about {topic}",
			Output: schema.OutputDecl{Fields: []schema.FieldDecl{{Name: "text", Type: "string"}}},
		}},
	}

	llm := mocks.NewMockLLM().WithResponse("draft", map[string]any{"text": "an essay"})
	wf, err := flowgraph.New(spec, flowgraph.WithLLM(llm))
	require.NoError(t, err)

	res, err := wf.Run(context.Background(), map[string]any{"topic": "go"})
	require.NoError(t, err)
	text, _ := res.State.Value("text")
	assert.Equal(t, "an essay", text)
}

func TestNew_RequiresLLM(t *testing.T) {
	spec := &flowgraph.Spec{
		Name:  "hello",
		State: []schema.FieldDecl{{Name: "text", Type: "string"}},
		Nodes: []graph.NodeDecl{{
			ID:     "draft",
			Prompt: "hi",
			Output: schema.OutputDecl{Fields: []schema.FieldDecl{{Name: "text", Type: "string"}}},
		}},
	}
	_, err := flowgraph.New(spec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM")
}

func TestLoad_FromYAML(t *testing.T) {
	doc := []byte(`
name: summarize
state:
  - name: topic
    type: string
    required: true
  - name: summary
    type: string
nodes:
  - id: sum
    prompt: "Summarize {topic}"
    output:
      fields:
        - name: summary
          type: string
`)
	path := filepath.Join(t.TempDir(), "workflow.yaml")
	require.NoError(t, os.WriteFile(path, doc, 0o600))

	llm := mocks.NewMockLLM().WithResponse("sum", map[string]any{"summary": "short"})
	wf, err := flowgraph.Load(path, flowgraph.WithLLM(llm))
	require.NoError(t, err)
	assert.Equal(t, "sum", wf.Graph().Entry())

	res, err := wf.Run(context.Background(), map[string]any{"topic": "go"})
	require.NoError(t, err)
	summary, _ := res.State.Value("summary")
	assert.Equal(t, "short", summary)
}
