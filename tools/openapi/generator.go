// Package openapi turns OpenAPI 3.x documents into callable workflow tools.
//
// Each operation in the document becomes one capability.Tool whose Call
// performs the HTTP request: path parameters are substituted from the
// arguments, query parameters are appended, and a "body" argument is sent
// as the JSON request body.
package openapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/flowgraph-io/flowgraph/capability"
)

// Document is the subset of an OpenAPI 3.x document the generator reads.
type Document struct {
	OpenAPI string              `json:"openapi"`
	Info    Info                `json:"info"`
	Servers []Server            `json:"servers,omitempty"`
	Paths   map[string]PathItem `json:"paths"`
}

// Info carries API metadata.
type Info struct {
	Title   string `json:"title"`
	Version string `json:"version"`
}

// Server names one API base URL.
type Server struct {
	URL string `json:"url"`
}

// PathItem holds the operations declared on one path.
type PathItem struct {
	Get    *Operation `json:"get,omitempty"`
	Post   *Operation `json:"post,omitempty"`
	Put    *Operation `json:"put,omitempty"`
	Delete *Operation `json:"delete,omitempty"`
	Patch  *Operation `json:"patch,omitempty"`
}

// Operation is one API operation.
type Operation struct {
	OperationID string       `json:"operationId,omitempty"`
	Summary     string       `json:"summary,omitempty"`
	Description string       `json:"description,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
	Parameters  []Parameter  `json:"parameters,omitempty"`
	RequestBody *RequestBody `json:"requestBody,omitempty"`
}

// Parameter is one operation parameter.
type Parameter struct {
	Name     string `json:"name"`
	In       string `json:"in"` // path, query, header
	Required bool   `json:"required,omitempty"`
}

// RequestBody marks an operation accepting a JSON body.
type RequestBody struct {
	Required bool `json:"required,omitempty"`
}

// Options configures tool generation.
type Options struct {
	BaseURL     string // overrides the document's first server URL
	IncludeTags []string
	ExcludeTags []string
}

// Generator loads OpenAPI documents and produces tools from them.
// Loaded documents are cached per source.
type Generator struct {
	client *http.Client
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[string]*Document
}

// NewGenerator builds a generator. A nil logger disables logging.
func NewGenerator(logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger.With(zap.String("component", "openapi_tools")),
		cache:  make(map[string]*Document),
	}
}

// Load reads an OpenAPI document from a URL or a local file path.
func (g *Generator) Load(ctx context.Context, source string) (*Document, error) {
	g.mu.RLock()
	if doc, ok := g.cache[source]; ok {
		g.mu.RUnlock()
		return doc, nil
	}
	g.mu.RUnlock()

	var data []byte
	var err error
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		data, err = g.fetch(ctx, source)
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("load openapi document %q: %w", source, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse openapi document %q: %w", source, err)
	}

	g.mu.Lock()
	g.cache[source] = &doc
	g.mu.Unlock()

	g.logger.Info("loaded openapi document",
		zap.String("title", doc.Info.Title),
		zap.String("version", doc.Info.Version),
		zap.Int("paths", len(doc.Paths)),
	)
	return &doc, nil
}

func (g *Generator) fetch(ctx context.Context, src string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}

// Tools converts every matching operation in the document into a tool.
func (g *Generator) Tools(doc *Document, opts Options) []capability.Tool {
	baseURL := opts.BaseURL
	if baseURL == "" && len(doc.Servers) > 0 {
		baseURL = doc.Servers[0].URL
	}

	var tools []capability.Tool
	for path, item := range doc.Paths {
		for method, op := range map[string]*Operation{
			http.MethodGet:    item.Get,
			http.MethodPost:   item.Post,
			http.MethodPut:    item.Put,
			http.MethodDelete: item.Delete,
			http.MethodPatch:  item.Patch,
		} {
			if op == nil || !matchesTags(op.Tags, opts) {
				continue
			}
			tools = append(tools, &httpTool{
				name:        toolName(method, path, op),
				description: toolDescription(method, path, op),
				method:      method,
				baseURL:     strings.TrimRight(baseURL, "/"),
				path:        path,
				params:      op.Parameters,
				hasBody:     op.RequestBody != nil,
				client:      g.client,
			})
		}
	}

	g.logger.Info("generated tools", zap.Int("count", len(tools)))
	return tools
}

// Registry loads a document and wraps its tools in a static registry.
func (g *Generator) Registry(ctx context.Context, source string, opts Options) (*capability.StaticToolRegistry, error) {
	doc, err := g.Load(ctx, source)
	if err != nil {
		return nil, err
	}
	return capability.NewStaticToolRegistry(g.Tools(doc, opts)...), nil
}

func matchesTags(tags []string, opts Options) bool {
	if len(opts.IncludeTags) > 0 && !hasAnyTag(tags, opts.IncludeTags) {
		return false
	}
	if len(opts.ExcludeTags) > 0 && hasAnyTag(tags, opts.ExcludeTags) {
		return false
	}
	return true
}

func hasAnyTag(tags, targets []string) bool {
	for _, tag := range tags {
		for _, target := range targets {
			if tag == target {
				return true
			}
		}
	}
	return false
}

func toolName(method, path string, op *Operation) string {
	if op.OperationID != "" {
		return op.OperationID
	}
	p := strings.NewReplacer("/", "_", "{", "", "}", "").Replace(path)
	return strings.ToLower(method) + "_" + strings.Trim(p, "_")
}

func toolDescription(method, path string, op *Operation) string {
	if op.Summary != "" {
		return op.Summary
	}
	if op.Description != "" {
		return op.Description
	}
	return method + " " + path
}

// httpTool is one generated operation, callable as a capability.Tool.
type httpTool struct {
	name        string
	description string
	method      string
	baseURL     string
	path        string
	params      []Parameter
	hasBody     bool
	client      *http.Client
}

func (t *httpTool) Name() string        { return t.name }
func (t *httpTool) Description() string { return t.description }

// Call performs the HTTP request for this operation. Path parameters are
// substituted from args, query parameters appended, and args["body"] sent
// as the JSON body when the operation declares one.
func (t *httpTool) Call(ctx context.Context, args map[string]any) (any, error) {
	path := t.path
	query := url.Values{}
	for _, p := range t.params {
		val, ok := args[p.Name]
		if !ok {
			if p.Required {
				return nil, fmt.Errorf("tool %q: missing required argument %q", t.name, p.Name)
			}
			continue
		}
		switch p.In {
		case "path":
			path = strings.ReplaceAll(path, "{"+p.Name+"}", fmt.Sprintf("%v", val))
		case "query":
			query.Set(p.Name, fmt.Sprintf("%v", val))
		}
	}

	target := t.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if t.hasBody {
		if raw, ok := args["body"]; ok {
			data, err := json.Marshal(raw)
			if err != nil {
				return nil, fmt.Errorf("tool %q: encode body: %w", t.name, err)
			}
			body = bytes.NewReader(data)
		}
	}

	req, err := http.NewRequestWithContext(ctx, t.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("tool %q: %w", t.name, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, p := range t.params {
		if p.In == "header" {
			if val, ok := args[p.Name]; ok {
				req.Header.Set(p.Name, fmt.Sprintf("%v", val))
			}
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tool %q: %w", t.name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("tool %q: read response: %w", t.name, err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("tool %q: HTTP %d: %s", t.name, resp.StatusCode, truncate(string(data), 256))
	}

	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return string(data), nil
	}
	return decoded, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
