package schema

import (
	"fmt"
	"strings"

	"github.com/flowgraph-io/flowgraph/types"
)

// Kind enumerates the value kinds a state or output field can hold.
type Kind string

const (
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
	KindList   Kind = "list"
	KindObject Kind = "object"
)

// FieldDecl declares a single typed field. Type is a descriptor string:
// "string", "int", "float", "bool", "list", "list<T>" for element-typed
// collections, or "object" with nested Fields.
type FieldDecl struct {
	Name        string      `yaml:"name" json:"name"`
	Type        string      `yaml:"type" json:"type"`
	Required    bool        `yaml:"required,omitempty" json:"required,omitempty"`
	Default     any         `yaml:"default,omitempty" json:"default,omitempty"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	Fields      []FieldDecl `yaml:"fields,omitempty" json:"fields,omitempty"`
}

// BuildError reports an invalid declaration or a constructed instance that
// violates its schema. The Field names the offending declaration.
type BuildError struct {
	Field  string
	Reason string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("[%s] field %q: %s", types.ErrSchemaBuild, e.Field, e.Reason)
}

func buildErrorf(field, format string, args ...any) *BuildError {
	return &BuildError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// fieldType is the compiled form of a type descriptor.
type fieldType struct {
	kind   Kind
	elem   *fieldType   // list element type, nil for untyped lists
	object *StateSchema // nested object schema
}

// parseType compiles a descriptor string. Nested objects are compiled from
// the declaration's Fields list.
func parseType(decl FieldDecl) (*fieldType, error) {
	raw := strings.TrimSpace(decl.Type)
	switch {
	case raw == string(KindString), raw == string(KindInt),
		raw == string(KindFloat), raw == string(KindBool):
		return &fieldType{kind: Kind(raw)}, nil

	case raw == string(KindList):
		return &fieldType{kind: KindList}, nil

	case strings.HasPrefix(raw, "list<") && strings.HasSuffix(raw, ">"):
		inner := strings.TrimSuffix(strings.TrimPrefix(raw, "list<"), ">")
		elemDecl := FieldDecl{Name: decl.Name + "[]", Type: inner, Fields: decl.Fields}
		elem, err := parseType(elemDecl)
		if err != nil {
			return nil, err
		}
		if elem.kind == KindList {
			return nil, buildErrorf(decl.Name, "nested list element types are not supported")
		}
		return &fieldType{kind: KindList, elem: elem}, nil

	case raw == string(KindObject):
		if len(decl.Fields) == 0 {
			return nil, buildErrorf(decl.Name, "object type requires nested fields")
		}
		nested, err := BuildState(decl.Fields)
		if err != nil {
			return nil, buildErrorf(decl.Name, "nested schema invalid: %v", err)
		}
		return &fieldType{kind: KindObject, object: nested}, nil

	default:
		return nil, buildErrorf(decl.Name, "unknown type descriptor %q", decl.Type)
	}
}

// descriptor renders the type back into its declaration form, used in
// validation messages.
func (t *fieldType) descriptor() string {
	switch t.kind {
	case KindList:
		if t.elem != nil {
			return fmt.Sprintf("list<%s>", t.elem.descriptor())
		}
		return string(KindList)
	default:
		return string(t.kind)
	}
}

// check validates a raw value against the type, returning the canonical
// representation (whole floats become int64 for int fields, ints widen to
// float64 for float fields, typed slices normalize to []any).
func (t *fieldType) check(field string, value any) (any, error) {
	switch t.kind {
	case KindString:
		if s, ok := value.(string); ok {
			return s, nil
		}
		return nil, typeMismatch(field, t, value)

	case KindBool:
		if b, ok := value.(bool); ok {
			return b, nil
		}
		return nil, typeMismatch(field, t, value)

	case KindInt:
		switch v := value.(type) {
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		case float64:
			if v == float64(int64(v)) {
				return int64(v), nil
			}
		}
		return nil, typeMismatch(field, t, value)

	case KindFloat:
		switch v := value.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		}
		return nil, typeMismatch(field, t, value)

	case KindList:
		items, ok := normalizeList(value)
		if !ok {
			return nil, typeMismatch(field, t, value)
		}
		if t.elem == nil {
			return items, nil
		}
		checked := make([]any, len(items))
		for i, item := range items {
			cv, err := t.elem.check(fmt.Sprintf("%s[%d]", field, i), item)
			if err != nil {
				return nil, err
			}
			checked[i] = cv
		}
		return checked, nil

	case KindObject:
		m, ok := value.(map[string]any)
		if !ok {
			return nil, typeMismatch(field, t, value)
		}
		nested, err := t.object.construct(m, field+".")
		if err != nil {
			return nil, err
		}
		return nested, nil
	}
	return nil, buildErrorf(field, "unsupported kind %q", t.kind)
}

func typeMismatch(field string, t *fieldType, value any) *BuildError {
	return buildErrorf(field, "expected %s, got %T", t.descriptor(), value)
}

// normalizeList converts common slice shapes into []any.
func normalizeList(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, true
	case []int:
		out := make([]any, len(v))
		for i, n := range v {
			out[i] = n
		}
		return out, true
	case []float64:
		out := make([]any, len(v))
		for i, f := range v {
			out[i] = f
		}
		return out, true
	default:
		return nil, false
	}
}

// deepCopy clones a canonical value so separate instances never alias.
func deepCopy(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return v
	}
}
