package schema

import (
	"encoding/json"
	"strings"
)

// compiledField pairs a declaration with its compiled type. The canonical
// default is validated once at build time and deep-copied per instance.
type compiledField struct {
	decl FieldDecl
	typ  *fieldType
	def  any
}

// StateSchema is the compiled form of a state declaration list. It is
// immutable after BuildState and safe for concurrent use as a factory.
type StateSchema struct {
	fields map[string]*compiledField
	order  []string
}

// BuildState compiles an ordered list of field declarations. All structural
// problems (duplicate names, unknown descriptors, malformed nesting,
// required fields carrying defaults) are reported here, before any run.
func BuildState(decls []FieldDecl) (*StateSchema, error) {
	s := &StateSchema{fields: make(map[string]*compiledField, len(decls))}

	for _, decl := range decls {
		if decl.Name == "" {
			return nil, buildErrorf("", "field name must not be empty")
		}
		if _, dup := s.fields[decl.Name]; dup {
			return nil, buildErrorf(decl.Name, "duplicate field name")
		}
		if decl.Required && decl.Default != nil {
			return nil, buildErrorf(decl.Name, "required field must not declare a default")
		}

		typ, err := parseType(decl)
		if err != nil {
			return nil, err
		}

		cf := &compiledField{decl: decl, typ: typ}
		if decl.Default != nil {
			canonical, err := typ.check(decl.Name, decl.Default)
			if err != nil {
				return nil, buildErrorf(decl.Name, "default does not match declared type: %v", err)
			}
			cf.def = canonical
		}

		s.fields[decl.Name] = cf
		s.order = append(s.order, decl.Name)
	}

	return s, nil
}

// New constructs a validated State from caller inputs. Missing optional
// fields take their default or zero value; missing required fields and
// undeclared input keys fail with a BuildError naming the field.
func (s *StateSchema) New(inputs map[string]any) (*State, error) {
	values, err := s.construct(inputs, "")
	if err != nil {
		return nil, err
	}
	return &State{schema: s, values: values}, nil
}

// FromJSON reconstructs a State from its serialized form, revalidating
// every field against the schema.
func (s *StateSchema) FromJSON(data []byte) (*State, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, buildErrorf("", "invalid state payload: %v", err)
	}
	return s.New(raw)
}

// Fields returns the declared field names in declaration order.
func (s *StateSchema) Fields() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Paths returns every addressable dot-path in the schema, including nested
// object members. Used by the template resolver for error suggestions.
func (s *StateSchema) Paths() []string {
	var paths []string
	s.collectPaths("", &paths)
	return paths
}

func (s *StateSchema) collectPaths(prefix string, out *[]string) {
	for _, name := range s.order {
		cf := s.fields[name]
		*out = append(*out, prefix+name)
		if cf.typ.kind == KindObject {
			cf.typ.object.collectPaths(prefix+name+".", out)
		}
	}
}

func (s *StateSchema) construct(inputs map[string]any, prefix string) (map[string]any, error) {
	for key := range inputs {
		if _, ok := s.fields[key]; !ok {
			return nil, buildErrorf(prefix+key, "not declared in schema")
		}
	}

	values := make(map[string]any, len(s.order))
	for _, name := range s.order {
		cf := s.fields[name]
		qualified := prefix + name

		if raw, ok := inputs[name]; ok && raw != nil {
			canonical, err := cf.typ.check(qualified, raw)
			if err != nil {
				return nil, err
			}
			values[name] = deepCopy(canonical)
			continue
		}

		if cf.def != nil {
			values[name] = deepCopy(cf.def)
			continue
		}

		if cf.decl.Required {
			return nil, buildErrorf(qualified, "required field missing")
		}

		zero, err := cf.typ.zero(qualified)
		if err != nil {
			return nil, err
		}
		values[name] = zero
	}
	return values, nil
}

// zero produces the kind's zero value so every declared field is always
// present. Optional objects materialize their nested zero/default values;
// a required nested field without a default makes the enclosing object
// impossible to zero, which is reported as a build-style error.
func (t *fieldType) zero(field string) (any, error) {
	switch t.kind {
	case KindString:
		return "", nil
	case KindInt:
		return int64(0), nil
	case KindFloat:
		return float64(0), nil
	case KindBool:
		return false, nil
	case KindList:
		return []any{}, nil
	case KindObject:
		nested, err := t.object.construct(map[string]any{}, field+".")
		if err != nil {
			return nil, err
		}
		return nested, nil
	}
	return nil, buildErrorf(field, "unsupported kind %q", t.kind)
}

// State is an immutable, schema-validated container of workflow data.
// Transitions never mutate: With returns a fresh deep-copied instance.
type State struct {
	schema *StateSchema
	values map[string]any
}

// Schema returns the schema this state was constructed from.
func (st *State) Schema() *StateSchema {
	return st.schema
}

// Value returns a top-level field value.
func (st *State) Value(name string) (any, bool) {
	v, ok := st.values[name]
	return v, ok
}

// Get resolves a dot-path of arbitrary depth, e.g. "metadata.flags.level".
func (st *State) Get(path string) (any, bool) {
	parts := strings.Split(path, ".")
	var current any = st.values
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// With produces a new State with the given field updates applied. Every
// update is validated against the schema; the receiver is never modified.
func (st *State) With(updates map[string]any) (*State, error) {
	values := deepCopy(st.values).(map[string]any)
	for name, raw := range updates {
		cf, ok := st.schema.fields[name]
		if !ok {
			return nil, buildErrorf(name, "not declared in schema")
		}
		canonical, err := cf.typ.check(name, raw)
		if err != nil {
			return nil, err
		}
		values[name] = deepCopy(canonical)
	}
	return &State{schema: st.schema, values: values}, nil
}

// Clone returns an independent deep copy, used to snapshot state at
// parallel dispatch so branches never share mutable data.
func (st *State) Clone() *State {
	return &State{
		schema: st.schema,
		values: deepCopy(st.values).(map[string]any),
	}
}

// Map returns a deep copy of all values, safe to hand to capabilities.
func (st *State) Map() map[string]any {
	return deepCopy(st.values).(map[string]any)
}

// MarshalJSON serializes the state values.
func (st *State) MarshalJSON() ([]byte, error) {
	return json.Marshal(st.values)
}
