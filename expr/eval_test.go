package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	scope := NewScope(map[string]any{
		"score":  0.9,
		"count":  int64(5),
		"status": "active",
		"result": map[string]any{"grade": 87.0},
	}, nil)

	tests := []struct {
		name    string
		expr    string
		want    bool
		wantErr bool
	}{
		{name: "greater than true", expr: `score > 0.8`, want: true},
		{name: "greater than false", expr: `score > 0.95`, want: false},
		{name: "string equality", expr: `status == "active"`, want: true},
		{name: "string inequality", expr: `status != 'done'`, want: true},
		{name: "nested path", expr: `result.grade >= 87`, want: true},
		{name: "and", expr: `score > 0.5 && count == 5`, want: true},
		{name: "or short circuit", expr: `score > 2 || status == "active"`, want: true},
		{name: "not", expr: `!(count < 3)`, want: true},
		{name: "boolean literal", expr: `true && !false`, want: true},
		{name: "arithmetic addition", expr: `count + 1 == 6`, want: true},
		{name: "arithmetic precedence", expr: `2 + 3 * 4 == 14`, want: true},
		{name: "parenthesized arithmetic", expr: `(2 + 3) * 4 == 20`, want: true},
		{name: "division", expr: `count / 2 > 2`, want: true},
		{name: "unary minus", expr: `-count < 0`, want: true},
		{name: "subtraction", expr: `score - 0.9 == 0`, want: true},
		{name: "string concat", expr: `status + "!" == "active!"`, want: true},
		{name: "division by zero", expr: `count / 0 > 1`, wantErr: true},
		{name: "empty predicate", expr: ``, wantErr: true},
		{name: "dangling operator", expr: `count >`, wantErr: true},
		{name: "unbalanced paren", expr: `(count > 1`, wantErr: true},
		{name: "unterminated string", expr: `status == "act`, wantErr: true},
		{name: "arithmetic on bool", expr: `true + 1 == 2`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.expr, scope)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_UnresolvedIdentifier(t *testing.T) {
	scope := NewScope(map[string]any{"score": 0.9}, nil)

	_, err := Evaluate(`scor > 0.5`, scope)
	var rErr *ResolutionError
	require.ErrorAs(t, err, &rErr)
	assert.Equal(t, "scor", rErr.Path)
	assert.Equal(t, "score", rErr.Suggestion)
}

func TestEvaluate_NilOrdering(t *testing.T) {
	scope := NewScope(map[string]any{"missing": nil, "n": 1}, nil)

	got, err := Evaluate(`missing < n`, scope)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = Evaluate(`missing != n`, scope)
	require.NoError(t, err)
	assert.True(t, got)
}
