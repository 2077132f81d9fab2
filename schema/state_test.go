package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func researchDecls() []FieldDecl {
	return []FieldDecl{
		{Name: "topic", Type: "string", Required: true},
		{Name: "depth", Type: "int", Default: 2},
		{Name: "score", Type: "float", Default: 0.5},
		{Name: "approved", Type: "bool"},
		{Name: "sources", Type: "list<string>", Default: []any{"web"}},
		{Name: "metadata", Type: "object", Fields: []FieldDecl{
			{Name: "author", Type: "string", Default: "unknown"},
			{Name: "flags", Type: "object", Fields: []FieldDecl{
				{Name: "level", Type: "int", Default: 1},
			}},
		}},
	}
}

func TestBuildState_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		decls []FieldDecl
		field string
	}{
		{
			name:  "required field with default",
			decls: []FieldDecl{{Name: "topic", Type: "string", Required: true, Default: "x"}},
			field: "topic",
		},
		{
			name:  "unknown type descriptor",
			decls: []FieldDecl{{Name: "blob", Type: "bytes"}},
			field: "blob",
		},
		{
			name:  "duplicate field name",
			decls: []FieldDecl{{Name: "a", Type: "string"}, {Name: "a", Type: "int"}},
			field: "a",
		},
		{
			name:  "object without nested fields",
			decls: []FieldDecl{{Name: "meta", Type: "object"}},
			field: "meta",
		},
		{
			name:  "nested list element",
			decls: []FieldDecl{{Name: "grid", Type: "list<list>"}},
			field: "grid",
		},
		{
			name:  "default violates declared type",
			decls: []FieldDecl{{Name: "depth", Type: "int", Default: "three"}},
			field: "depth",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildState(tt.decls)
			require.Error(t, err)

			var buildErr *BuildError
			require.ErrorAs(t, err, &buildErr)
			assert.Contains(t, buildErr.Field, tt.field)
		})
	}
}

func TestStateNew_RequiredMissingNamesField(t *testing.T) {
	s, err := BuildState(researchDecls())
	require.NoError(t, err)

	_, err = s.New(map[string]any{})
	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, "topic", buildErr.Field)
}

func TestStateNew_DefaultsAndZeros(t *testing.T) {
	s, err := BuildState(researchDecls())
	require.NoError(t, err)

	st, err := s.New(map[string]any{"topic": "A"})
	require.NoError(t, err)

	depth, _ := st.Value("depth")
	assert.Equal(t, int64(2), depth)

	approved, _ := st.Value("approved")
	assert.Equal(t, false, approved)

	level, ok := st.Get("metadata.flags.level")
	require.True(t, ok)
	assert.Equal(t, int64(1), level)
}

func TestStateNew_DefaultsDoNotAlias(t *testing.T) {
	s, err := BuildState(researchDecls())
	require.NoError(t, err)

	first, err := s.New(map[string]any{"topic": "A"})
	require.NoError(t, err)
	second, err := s.New(map[string]any{"topic": "B"})
	require.NoError(t, err)

	// Mutating one instance's list must not leak into the other.
	sources, _ := first.Value("sources")
	sources.([]any)[0] = "mutated"

	fresh, _ := second.Value("sources")
	assert.Equal(t, []any{"web"}, fresh)
}

func TestStateNew_RejectsUndeclaredInput(t *testing.T) {
	s, err := BuildState(researchDecls())
	require.NoError(t, err)

	_, err = s.New(map[string]any{"topic": "A", "sneaky": 1})
	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, "sneaky", buildErr.Field)
}

func TestStateNew_IntAcceptsWholeFloat(t *testing.T) {
	s, err := BuildState(researchDecls())
	require.NoError(t, err)

	// JSON decoding produces float64 for all numbers.
	st, err := s.New(map[string]any{"topic": "A", "depth": float64(7)})
	require.NoError(t, err)
	depth, _ := st.Value("depth")
	assert.Equal(t, int64(7), depth)

	_, err = s.New(map[string]any{"topic": "A", "depth": 7.5})
	require.Error(t, err)
}

func TestState_WithIsCopyOnWrite(t *testing.T) {
	s, err := BuildState(researchDecls())
	require.NoError(t, err)

	before, err := s.New(map[string]any{"topic": "A"})
	require.NoError(t, err)

	after, err := before.With(map[string]any{"topic": "B", "depth": 9})
	require.NoError(t, err)

	topicBefore, _ := before.Value("topic")
	topicAfter, _ := after.Value("topic")
	assert.Equal(t, "A", topicBefore)
	assert.Equal(t, "B", topicAfter)

	depthBefore, _ := before.Value("depth")
	assert.Equal(t, int64(2), depthBefore)
}

func TestState_WithRejectsBadUpdate(t *testing.T) {
	s, err := BuildState(researchDecls())
	require.NoError(t, err)

	st, err := s.New(map[string]any{"topic": "A"})
	require.NoError(t, err)

	_, err = st.With(map[string]any{"depth": "deep"})
	require.Error(t, err)

	_, err = st.With(map[string]any{"nonexistent": 1})
	require.Error(t, err)
}

func TestState_CloneIsIndependent(t *testing.T) {
	s, err := BuildState(researchDecls())
	require.NoError(t, err)

	st, err := s.New(map[string]any{"topic": "A"})
	require.NoError(t, err)

	clone := st.Clone()
	meta, _ := clone.Value("metadata")
	meta.(map[string]any)["author"] = "tampered"

	author, _ := st.Get("metadata.author")
	assert.Equal(t, "unknown", author)
}

func TestState_RoundTrip(t *testing.T) {
	s, err := BuildState(researchDecls())
	require.NoError(t, err)

	st, err := s.New(map[string]any{
		"topic":    "quantum error correction",
		"depth":    3,
		"approved": true,
		"sources":  []any{"arxiv", "web"},
	})
	require.NoError(t, err)

	data, err := st.MarshalJSON()
	require.NoError(t, err)

	restored, err := s.FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, st.Map(), restored.Map())
}

func TestSchema_Paths(t *testing.T) {
	s, err := BuildState(researchDecls())
	require.NoError(t, err)

	paths := s.Paths()
	assert.Contains(t, paths, "topic")
	assert.Contains(t, paths, "metadata.author")
	assert.Contains(t, paths, "metadata.flags.level")
}

// TestState_RoundTripProperty verifies that for arbitrary valid inputs the
// constructed container survives a serialize→deserialize cycle unchanged.
func TestState_RoundTripProperty(t *testing.T) {
	s, err := BuildState([]FieldDecl{
		{Name: "title", Type: "string", Required: true},
		{Name: "count", Type: "int"},
		{Name: "ratio", Type: "float"},
		{Name: "done", Type: "bool"},
		{Name: "tags", Type: "list<string>"},
	})
	require.NoError(t, err)

	rapid.Check(t, func(t *rapid.T) {
		tags := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,8}`), 0, 5).Draw(t, "tags")
		anyTags := make([]any, len(tags))
		for i, tag := range tags {
			anyTags[i] = tag
		}

		inputs := map[string]any{
			"title": rapid.StringMatching(`[ -~]{1,32}`).Draw(t, "title"),
			"count": rapid.Int64Range(-1<<52, 1<<52).Draw(t, "count"),
			"ratio": rapid.Float64Range(-1e6, 1e6).Draw(t, "ratio"),
			"done":  rapid.Bool().Draw(t, "done"),
			"tags":  anyTags,
		}

		st, err := s.New(inputs)
		if err != nil {
			t.Fatalf("construct failed: %v", err)
		}

		data, err := st.MarshalJSON()
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}

		restored, err := s.FromJSON(data)
		if err != nil {
			t.Fatalf("restore failed: %v", err)
		}

		if title, _ := restored.Value("title"); title != inputs["title"] {
			t.Fatalf("title mismatch: %v != %v", title, inputs["title"])
		}
		if count, _ := restored.Value("count"); count != inputs["count"] {
			t.Fatalf("count mismatch: %v != %v", count, inputs["count"])
		}
	})
}
