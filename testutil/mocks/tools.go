package mocks

import "context"

// MockTool is a fixed-result tool.
type MockTool struct {
	ToolName string
	Desc     string
	Result   any
	Err      error

	Calls []map[string]any
}

// Name implements capability.Tool.
func (m *MockTool) Name() string { return m.ToolName }

// Description implements capability.Tool.
func (m *MockTool) Description() string { return m.Desc }

// Call implements capability.Tool.
func (m *MockTool) Call(_ context.Context, args map[string]any) (any, error) {
	m.Calls = append(m.Calls, args)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Result, nil
}
