package mocks

import (
	"context"

	"github.com/flowgraph-io/flowgraph/capability"
)

// MockSandbox runs a supplied function instead of real code execution.
type MockSandbox struct {
	Fn func(ctx context.Context, code string, bindings map[string]any) (any, error)
}

// Run implements capability.Sandbox.
func (m *MockSandbox) Run(ctx context.Context, code string, bindings map[string]any, _ capability.Limits) (any, error) {
	if m.Fn == nil {
		return map[string]any{}, nil
	}
	return m.Fn(ctx, code, bindings)
}
