package expr

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestProperty_ComparisonMatchesGoSemantics(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("a < b agrees with native comparison", prop.ForAll(
		func(a, b int) bool {
			scope := NewScope(map[string]any{"a": a, "b": b}, nil)
			got, err := Evaluate("a < b", scope)
			if err != nil {
				t.Logf("evaluate failed: %v", err)
				return false
			}
			return got == (a < b)
		},
		gen.IntRange(-1000000, 1000000),
		gen.IntRange(-1000000, 1000000),
	))

	properties.Property("ordering operators are mutually consistent", prop.ForAll(
		func(a, b int) bool {
			scope := NewScope(map[string]any{"a": a, "b": b}, nil)
			lt, err1 := Evaluate("a < b", scope)
			ge, err2 := Evaluate("a >= b", scope)
			if err1 != nil || err2 != nil {
				return false
			}
			return lt != ge
		},
		gen.IntRange(-1000000, 1000000),
		gen.IntRange(-1000000, 1000000),
	))

	properties.TestingRun(t)
}

func TestProperty_ArithmeticIdentities(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("addition commutes", prop.ForAll(
		func(a, b int) bool {
			scope := NewScope(map[string]any{"a": a, "b": b}, nil)
			got, err := Evaluate("a + b == b + a", scope)
			return err == nil && got
		},
		gen.IntRange(-100000, 100000),
		gen.IntRange(-100000, 100000),
	))

	properties.Property("literal sum evaluates exactly", prop.ForAll(
		func(a, b int) bool {
			scope := NewScope(nil, nil)
			expr := fmt.Sprintf("%d + %d == %d", a, b, a+b)
			got, err := Evaluate(expr, scope)
			return err == nil && got
		},
		gen.IntRange(0, 1000000),
		gen.IntRange(0, 1000000),
	))

	properties.TestingRun(t)
}

func TestProperty_DeMorgan(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("!(p && q) equals !p || !q", prop.ForAll(
		func(p, q bool) bool {
			scope := NewScope(map[string]any{"p": p, "q": q}, nil)
			left, err1 := Evaluate("!(p && q)", scope)
			right, err2 := Evaluate("!p || !q", scope)
			return err1 == nil && err2 == nil && left == right
		},
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
