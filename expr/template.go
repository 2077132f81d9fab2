package expr

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/flowgraph-io/flowgraph/schema"
	"github.com/flowgraph-io/flowgraph/types"
)

// maxSuggestionDistance bounds how far a "did you mean" candidate may be
// from the offending path.
const maxSuggestionDistance = 2

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_.]*)\}`)

// ResolutionError reports an unresolvable template or predicate path,
// with a best-effort suggestion and the complete list of valid paths.
type ResolutionError struct {
	Path       string
	Suggestion string
	ValidPaths []string
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("[%s] unresolved path %q", types.ErrTemplateResolution, e.Path)
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", e.Suggestion)
	}
	if len(e.ValidPaths) > 0 {
		msg += "; valid paths: " + strings.Join(e.ValidPaths, ", ")
	}
	return msg
}

// Scope is the two-source lookup environment for one node execution:
// the node-local input mapping, which wins ties, and the current state.
type Scope struct {
	inputs map[string]any
	state  *schema.State
}

// NewScope builds a scope. Either source may be nil.
func NewScope(inputs map[string]any, state *schema.State) *Scope {
	return &Scope{inputs: inputs, state: state}
}

// Lookup resolves a dot-path: input mapping first, then state.
func (s *Scope) Lookup(path string) (any, bool) {
	if s.inputs != nil {
		if v, ok := s.inputs[path]; ok {
			return v, true
		}
		// Dot-paths may descend into structured input values too.
		if head, rest, found := strings.Cut(path, "."); found {
			if root, ok := s.inputs[head]; ok {
				if v, ok := descend(root, rest); ok {
					return v, true
				}
			}
		}
	}
	if s.state != nil {
		if v, ok := s.state.Get(path); ok {
			return v, true
		}
	}
	return nil, false
}

// Paths returns every valid path in the scope, sorted, inputs included.
func (s *Scope) Paths() []string {
	seen := make(map[string]bool)
	var paths []string
	if s.inputs != nil {
		for key := range s.inputs {
			if !seen[key] {
				seen[key] = true
				paths = append(paths, key)
			}
		}
	}
	if s.state != nil {
		for _, p := range s.state.Schema().Paths() {
			if !seen[p] {
				seen[p] = true
				paths = append(paths, p)
			}
		}
	}
	sort.Strings(paths)
	return paths
}

// fail builds the ResolutionError for an unresolved path.
func (s *Scope) fail(path string) *ResolutionError {
	valid := s.Paths()
	return &ResolutionError{
		Path:       path,
		Suggestion: suggest(path, valid),
		ValidPaths: valid,
	}
}

// Resolve substitutes every {path} placeholder in the template. All values
// are stringified before substitution.
func Resolve(template string, scope *Scope) (string, error) {
	var firstErr error
	out := placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		path := match[1 : len(match)-1]
		v, ok := scope.Lookup(path)
		if !ok {
			if firstErr == nil {
				firstErr = scope.fail(path)
			}
			return match
		}
		return Stringify(v)
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

var soloPlaceholderRe = regexp.MustCompile(`^\{([a-zA-Z_][a-zA-Z0-9_.]*)\}$`)

// ResolveValue resolves a template to a value. A template that is exactly
// one placeholder yields the underlying value with its type preserved;
// anything else resolves to a string like Resolve.
func ResolveValue(template string, scope *Scope) (any, error) {
	if m := soloPlaceholderRe.FindStringSubmatch(strings.TrimSpace(template)); m != nil {
		v, ok := scope.Lookup(m[1])
		if !ok {
			return nil, scope.fail(m[1])
		}
		return v, nil
	}
	return Resolve(template, scope)
}

// Stringify renders a resolved value for substitution.
func Stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// suggest picks the closest valid path within the edit distance bound.
func suggest(path string, valid []string) string {
	best := ""
	bestDist := maxSuggestionDistance + 1
	for _, candidate := range valid {
		d := levenshtein.Distance(path, candidate, nil)
		if d < bestDist {
			best = candidate
			bestDist = d
		}
	}
	return best
}

// descend walks a dot-path into nested maps.
func descend(root any, path string) (any, bool) {
	current := root
	for _, part := range strings.Split(path, ".") {
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
