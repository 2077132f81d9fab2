package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/flowgraph-io/flowgraph/types"
)

// ScalarField is the internal field name wrapping single-scalar outputs,
// so every output validates through the same one-record path.
const ScalarField = "result"

// OutputDecl declares a node's result shape: either a single wrapped
// scalar (Scalar holds its type descriptor) or an object with named fields.
// Exactly one of the two must be set.
type OutputDecl struct {
	Scalar string      `yaml:"scalar,omitempty" json:"scalar,omitempty"`
	Fields []FieldDecl `yaml:"fields,omitempty" json:"fields,omitempty"`
}

// OutputValidationError reports a payload/declaration mismatch. It is the
// signal the node executor's retry policy consumes; it is never fatal on
// first occurrence.
type OutputValidationError struct {
	NodeID   string
	Field    string
	Expected string
	Actual   string
}

func (e *OutputValidationError) Error() string {
	return fmt.Sprintf("[%s] node %q field %q: expected %s, got %s",
		types.ErrOutputValidation, e.NodeID, e.Field, e.Expected, e.Actual)
}

// OutputSchema validates capability payloads against a node's declared
// result shape. Compiled once per node at graph compile time.
type OutputSchema struct {
	nodeID string
	scalar bool
	fields map[string]*fieldType
	order  []string
}

// BuildOutput compiles an output declaration for the given node.
func BuildOutput(nodeID string, decl OutputDecl) (*OutputSchema, error) {
	if decl.Scalar != "" && len(decl.Fields) > 0 {
		return nil, buildErrorf(nodeID, "output declares both scalar and fields")
	}

	os := &OutputSchema{nodeID: nodeID, fields: make(map[string]*fieldType)}

	if decl.Scalar != "" {
		typ, err := parseType(FieldDecl{Name: ScalarField, Type: decl.Scalar})
		if err != nil {
			return nil, err
		}
		os.scalar = true
		os.fields[ScalarField] = typ
		os.order = []string{ScalarField}
		return os, nil
	}

	if len(decl.Fields) == 0 {
		return nil, buildErrorf(nodeID, "output declares neither scalar nor fields")
	}

	for _, fd := range decl.Fields {
		if fd.Name == "" {
			return nil, buildErrorf(nodeID, "output field name must not be empty")
		}
		if _, dup := os.fields[fd.Name]; dup {
			return nil, buildErrorf(fd.Name, "duplicate output field")
		}
		typ, err := parseType(fd)
		if err != nil {
			return nil, err
		}
		os.fields[fd.Name] = typ
		os.order = append(os.order, fd.Name)
	}
	return os, nil
}

// Scalar reports whether the declaration was a single wrapped scalar.
func (os *OutputSchema) Scalar() bool {
	return os.scalar
}

// FieldNames returns the declared output field names in order. The graph
// compiler uses these to reject overlapping parallel sibling outputs.
func (os *OutputSchema) FieldNames() []string {
	out := make([]string, len(os.order))
	copy(out, os.order)
	return out
}

// Describe renders the declared shape for prompt amendment on retry.
func (os *OutputSchema) Describe() string {
	parts := make([]string, 0, len(os.order))
	for _, name := range os.order {
		parts = append(parts, fmt.Sprintf("%q (%s)", name, os.fields[name].descriptor()))
	}
	return strings.Join(parts, ", ")
}

// Validate checks a payload against the declaration and returns the
// canonical value map. Every declared field must be present with the
// correct type; undeclared fields are rejected. The only coercion applied
// is numeric/boolean-to-string normalization on declared string fields.
func (os *OutputSchema) Validate(payload map[string]any) (map[string]any, error) {
	for _, name := range os.order {
		if _, ok := payload[name]; !ok {
			return nil, &OutputValidationError{
				NodeID:   os.nodeID,
				Field:    name,
				Expected: os.fields[name].descriptor(),
				Actual:   "missing",
			}
		}
	}

	extras := make([]string, 0)
	for key := range payload {
		if _, ok := os.fields[key]; !ok {
			extras = append(extras, key)
		}
	}
	if len(extras) > 0 {
		sort.Strings(extras)
		return nil, &OutputValidationError{
			NodeID:   os.nodeID,
			Field:    extras[0],
			Expected: "no undeclared fields",
			Actual:   fmt.Sprintf("%T", payload[extras[0]]),
		}
	}

	out := make(map[string]any, len(os.order))
	for _, name := range os.order {
		typ := os.fields[name]
		raw := payload[name]

		if typ.kind == KindString {
			raw = stringifyScalar(raw)
		}

		canonical, err := typ.check(name, raw)
		if err != nil {
			return nil, &OutputValidationError{
				NodeID:   os.nodeID,
				Field:    name,
				Expected: typ.descriptor(),
				Actual:   fmt.Sprintf("%T", payload[name]),
			}
		}
		out[name] = canonical
	}
	return out, nil
}

// Unwrap extracts the scalar value from a validated one-field record when
// the declaration was scalar; otherwise it returns the record unchanged.
func (os *OutputSchema) Unwrap(validated map[string]any) any {
	if os.scalar {
		return validated[ScalarField]
	}
	return validated
}

// stringifyScalar applies the declared numeric/boolean-to-string
// normalization. Anything else passes through for the type check to reject.
func stringifyScalar(v any) any {
	switch n := v.(type) {
	case string:
		return n
	case bool:
		return fmt.Sprintf("%t", n)
	case int:
		return fmt.Sprintf("%d", n)
	case int64:
		return fmt.Sprintf("%d", n)
	case float64:
		if n == float64(int64(n)) {
			return fmt.Sprintf("%d", int64(n))
		}
		return fmt.Sprintf("%g", n)
	default:
		return v
	}
}
