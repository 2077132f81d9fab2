// Package mocks provides capability test doubles with scripted responses
// and error injection.
package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flowgraph-io/flowgraph/capability"
	"github.com/flowgraph-io/flowgraph/types"
)

// Step is one scripted LLM response for a node: either a payload or an
// error, with optional reported usage.
type Step struct {
	Payload map[string]any
	Usage   types.Usage
	Err     error
}

// MockLLM is a scripted LLM capability. Per-node step queues are consumed
// in order; when a node's queue is empty its repeating payload answers,
// then the default payload. Every request is recorded.
type MockLLM struct {
	mu         sync.Mutex
	scripts    map[string][]Step
	repeating  map[string]map[string]any
	fallback   map[string]any
	delay      time.Duration
	nodeDelays map[string]time.Duration
	calls      []capability.Request
}

// NewMockLLM creates an empty mock.
func NewMockLLM() *MockLLM {
	return &MockLLM{
		scripts:    make(map[string][]Step),
		repeating:  make(map[string]map[string]any),
		nodeDelays: make(map[string]time.Duration),
	}
}

// WithResponse sets a repeating payload for a node.
func (m *MockLLM) WithResponse(nodeID string, payload map[string]any) *MockLLM {
	m.repeating[nodeID] = payload
	return m
}

// WithSteps queues scripted steps for a node, consumed one per call.
func (m *MockLLM) WithSteps(nodeID string, steps ...Step) *MockLLM {
	m.scripts[nodeID] = append(m.scripts[nodeID], steps...)
	return m
}

// WithDefault sets the payload answering nodes with no script.
func (m *MockLLM) WithDefault(payload map[string]any) *MockLLM {
	m.fallback = payload
	return m
}

// WithDelay makes every invocation sleep, honoring cancellation.
func (m *MockLLM) WithDelay(d time.Duration) *MockLLM {
	m.delay = d
	return m
}

// WithNodeDelay makes one node's invocations sleep, honoring cancellation.
func (m *MockLLM) WithNodeDelay(nodeID string, d time.Duration) *MockLLM {
	m.nodeDelays[nodeID] = d
	return m
}

// Name implements capability.LLM.
func (m *MockLLM) Name() string { return "mock" }

// Invoke implements capability.LLM.
func (m *MockLLM) Invoke(ctx context.Context, req *capability.Request) (*capability.Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, *req)
	delay := m.delay
	if d, ok := m.nodeDelays[req.NodeID]; ok {
		delay = d
	}

	var step *Step
	if queue := m.scripts[req.NodeID]; len(queue) > 0 {
		s := queue[0]
		m.scripts[req.NodeID] = queue[1:]
		step = &s
	}
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, types.NewError(types.ErrCancelled, "invocation cancelled").WithCause(ctx.Err())
		case <-time.After(delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, types.NewError(types.ErrCancelled, "invocation cancelled").WithCause(err)
	}

	if step != nil {
		if step.Err != nil {
			return nil, step.Err
		}
		return &capability.Response{Payload: clone(step.Payload), Usage: step.Usage}, nil
	}

	m.mu.Lock()
	payload, ok := m.repeating[req.NodeID]
	if !ok {
		payload = m.fallback
	}
	m.mu.Unlock()
	if payload == nil {
		return nil, fmt.Errorf("no response scripted for node %q", req.NodeID)
	}
	return &capability.Response{Payload: clone(payload)}, nil
}

// Calls returns a copy of every recorded request, in order.
func (m *MockLLM) Calls() []capability.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]capability.Request(nil), m.calls...)
}

// CallCount returns how many times a node was invoked.
func (m *MockLLM) CallCount(nodeID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, call := range m.calls {
		if call.NodeID == nodeID {
			n++
		}
	}
	return n
}

func clone(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	return out
}

// Transient builds a retryable provider error.
func Transient(code types.ErrorCode, msg string) error {
	return types.NewError(code, msg).WithRetryable(true)
}
