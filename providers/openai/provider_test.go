package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgraph-io/flowgraph/capability"
	"github.com/flowgraph-io/flowgraph/types"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Options{APIKey: "test-key", BaseURL: srv.URL})
}

func TestProvider_InvokeParsesJSONPayload(t *testing.T) {
	var gotBody map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": `{"text":"an essay"}`}},
			},
			"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19},
		})
	})

	resp, err := p.Invoke(context.Background(), &capability.Request{
		NodeID:      "draft",
		Prompt:      "Write about go",
		OutputShape: `"text" (string)`,
		Config:      capability.Config{"model": "gpt-4o", "temperature": 0.2},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"text": "an essay"}, resp.Payload)
	assert.Equal(t, 19, resp.Usage.TotalTokens)

	assert.Equal(t, "gpt-4o", gotBody["model"])
	assert.Equal(t, 0.2, gotBody["temperature"])
	messages := gotBody["messages"].([]any)
	system := messages[0].(map[string]any)
	assert.Contains(t, system["content"], `"text" (string)`)
}

func TestProvider_StatusCodeClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCode  types.ErrorCode
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, types.ErrRateLimited, true},
		{"gateway timeout", http.StatusGatewayTimeout, types.ErrUpstreamTimeout, true},
		{"unavailable", http.StatusServiceUnavailable, types.ErrProviderUnavailable, true},
		{"server error", http.StatusInternalServerError, types.ErrUpstreamError, true},
		{"bad request", http.StatusBadRequest, types.ErrUpstreamError, false},
		{"unauthorized", http.StatusUnauthorized, types.ErrUpstreamError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			})
			_, err := p.Invoke(context.Background(), &capability.Request{NodeID: "n", Prompt: "p"})
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, types.GetErrorCode(err))
			assert.Equal(t, tt.retryable, types.IsRetryable(err))
		})
	}
}

func TestProvider_NonJSONContentYieldsEmptyPayload(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "Sure! Here is your answer..."}},
			},
		})
	})

	resp, err := p.Invoke(context.Background(), &capability.Request{NodeID: "n", Prompt: "p"})
	require.NoError(t, err)
	assert.Empty(t, resp.Payload)
}

func TestProvider_ToolsListedInSystemPrompt(t *testing.T) {
	req := &capability.Request{
		NodeID:      "n",
		OutputShape: `"text" (string)`,
		Tools:       []capability.Tool{stubTool{}},
	}
	prompt := systemPrompt(req)
	assert.Contains(t, prompt, "search")
	assert.Contains(t, prompt, "web search")
}

type stubTool struct{}

func (stubTool) Name() string        { return "search" }
func (stubTool) Description() string { return "web search" }
func (stubTool) Call(context.Context, map[string]any) (any, error) {
	return nil, nil
}
