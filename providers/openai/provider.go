// Package openai implements the LLM capability over any OpenAI-compatible
// chat completions endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/flowgraph-io/flowgraph/capability"
	"github.com/flowgraph-io/flowgraph/types"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 120 * time.Second
)

// Options configures a Provider. APIKey falls back to OPENAI_API_KEY.
type Options struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
	Logger  *zap.Logger
}

// Provider calls an OpenAI-compatible chat completions API, forcing JSON
// object responses shaped by the request's declared output fields.
type Provider struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// New builds a provider.
func New(opts Options) *Provider {
	if opts.APIKey == "" {
		opts.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: defaultTimeout}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Provider{
		apiKey:  opts.APIKey,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		client:  opts.Client,
		logger:  opts.Logger.With(zap.String("component", "openai_provider")),
	}
}

// Name implements capability.LLM.
func (p *Provider) Name() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    *float64       `json:"temperature,omitempty"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Invoke implements capability.LLM.
func (p *Provider) Invoke(ctx context.Context, req *capability.Request) (*capability.Response, error) {
	body := chatRequest{
		Model: req.Config.Model(),
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt(req)},
			{Role: "user", Content: req.Prompt},
		},
		ResponseFormat: map[string]any{"type": "json_object"},
	}
	if body.Model == "" {
		body.Model = defaultModel
	}
	if temp, ok := req.Config["temperature"].(float64); ok {
		body.Temperature = &temp
	}
	if mt, ok := req.Config["max_tokens"].(int); ok {
		body.MaxTokens = mt
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "encode request").WithCause(err).WithProvider(p.Name())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "build request").WithCause(err).WithProvider(p.Name())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, types.NewError(types.ErrUpstreamTimeout, "request timed out").
				WithCause(err).WithRetryable(true).WithProvider(p.Name())
		}
		return nil, types.NewError(types.ErrProviderUnavailable, "request failed").
			WithCause(err).WithRetryable(true).WithProvider(p.Name())
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "read response").
			WithCause(err).WithRetryable(true).WithProvider(p.Name())
	}

	if resp.StatusCode != http.StatusOK {
		return nil, p.statusError(resp.StatusCode, data)
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "decode response").WithCause(err).WithProvider(p.Name())
	}
	if parsed.Error != nil {
		return nil, types.NewError(types.ErrUpstreamError, parsed.Error.Message).WithProvider(p.Name())
	}
	if len(parsed.Choices) == 0 {
		return nil, types.NewError(types.ErrUpstreamError, "no choices in response").WithProvider(p.Name())
	}

	var out map[string]any
	content := parsed.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		// Malformed JSON reads as an empty payload; output validation
		// reports the missing fields and drives the retry.
		p.logger.Debug("non-JSON completion content",
			zap.String("node_id", req.NodeID),
			zap.Error(err),
		)
		out = map[string]any{}
	}

	return &capability.Response{
		Payload: out,
		Usage: types.Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
	}, nil
}

// statusError maps HTTP status codes onto the error taxonomy.
func (p *Provider) statusError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	switch {
	case status == http.StatusTooManyRequests:
		return types.NewError(types.ErrRateLimited, msg).WithRetryable(true).WithProvider(p.Name())
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return types.NewError(types.ErrUpstreamTimeout, msg).WithRetryable(true).WithProvider(p.Name())
	case status == http.StatusServiceUnavailable:
		return types.NewError(types.ErrProviderUnavailable, msg).WithRetryable(true).WithProvider(p.Name())
	case status >= 500:
		return types.NewError(types.ErrUpstreamError, msg).WithRetryable(true).WithProvider(p.Name())
	default:
		return types.NewError(types.ErrUpstreamError, fmt.Sprintf("status %d: %s", status, msg)).WithProvider(p.Name())
	}
}

// systemPrompt instructs the model to answer as one JSON object with the
// node's declared fields, listing available tools for context.
func systemPrompt(req *capability.Request) string {
	var sb strings.Builder
	sb.WriteString("You are a workflow node. Respond with a single JSON object containing exactly these fields: ")
	sb.WriteString(req.OutputShape)
	sb.WriteString(". No prose, no markdown.")
	if len(req.Tools) > 0 {
		sb.WriteString("\nAvailable tools:")
		for _, tool := range req.Tools {
			sb.WriteString(fmt.Sprintf("\n- %s: %s", tool.Name(), tool.Description()))
		}
	}
	return sb.String()
}
