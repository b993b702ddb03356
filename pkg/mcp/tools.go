package mcp

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mapset-verifier/server/pkg/orchestrator"
)

// Tool name constants.
const (
	ToolNameVerify        = "mapset_verify"
	ToolNameDocumentation = "mapset_documentation"
)

// Sentinel errors for tool input validation.
var (
	// ErrEmptyPath indicates the path parameter is empty.
	ErrEmptyPath = errors.New("path parameter is required and must not be empty")
	// ErrPathNotAbsolute indicates the path is not absolute.
	ErrPathNotAbsolute = errors.New("path must be an absolute path")
	// ErrUnknownView indicates a requested view does not exist.
	ErrUnknownView = errors.New("unknown view")
)

// Input types (auto-generate JSON schemas via struct tags).

// VerifyInput is the input schema for the mapset_verify tool.
type VerifyInput struct {
	Path  string   `json:"path"            jsonschema:"absolute path to a beatmap set directory"`
	Views []string `json:"views,omitempty" jsonschema:"optional list of views: checks snapshots overview (default: all)"`
}

// DocumentationInput is the input schema for the mapset_documentation tool.
type DocumentationInput struct {
	Message string `json:"message,omitempty" jsonschema:"optional check message whose overlay to render"`
}

// VerifyResult is the JSON payload of mapset_verify.
type VerifyResult struct {
	Path string `json:"path"`
	// Views maps a view name to its rendered HTML.
	Views map[string]string `json:"views"`
	// Exceptions maps a view name to its rendered error.
	Exceptions map[string]string `json:"exceptions,omitempty"`
	// Outcomes maps a view name to how its analysis ended.
	Outcomes map[string]string `json:"outcomes,omitempty"`
}

// DocumentationResult is the JSON payload of mapset_documentation.
type DocumentationResult struct {
	HTML string `json:"html"`
}

// Output type (used as structured output for generic AddTool).

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

func (s *Server) handleVerify(ctx context.Context, _ *mcpsdk.CallToolRequest, input VerifyInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	views, err := validateVerifyInput(input)
	if err != nil {
		return errorResult(err)
	}

	var out collector

	deps := s.deps.Verifier.DispatcherDeps(s.deps.Store, s.deps.Loader, &out)
	deps.TaskTimeout = s.deps.TaskTimeout
	deps.Logger = s.deps.Logger
	deps.Tracer = s.deps.Tracer
	deps.Metrics = s.deps.TaskMetrics

	req := orchestrator.NewDispatcher(deps).Handle(ctx, orchestrator.KeyRequestBeatmapset, input.Path)
	req.Wait()

	result := VerifyResult{
		Path:       input.Path,
		Views:      make(map[string]string),
		Exceptions: make(map[string]string),
		Outcomes:   make(map[string]string),
	}

	for _, msg := range out.messages() {
		switch msg.Key {
		case orchestrator.KeyUpdateChecks, orchestrator.KeyUpdateSnapshots, orchestrator.KeyUpdateOverview:
			name := viewName(strings.TrimPrefix(msg.Key, "Update"))
			if slices.Contains(views, name) {
				result.Views[name] = msg.Value
			}
		case orchestrator.KeyUpdateException:
			tag, body, _ := strings.Cut(msg.Value, ":")
			if name := viewName(tag); slices.Contains(views, name) {
				result.Exceptions[name] = body
			}
		}
	}

	for kind, outcome := range req.Outcomes() {
		if name := viewName(kind.String()); slices.Contains(views, name) {
			result.Outcomes[name] = string(outcome)
		}
	}

	return jsonResult(result)
}

func (s *Server) handleDocumentation(
	_ context.Context, _ *mcpsdk.CallToolRequest, input DocumentationInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	render := s.deps.Verifier.Documentation
	if input.Message != "" {
		render = func() (string, error) { return s.deps.Verifier.Overlay(input.Message) }
	}

	body, err := render()
	if err != nil {
		return errorResult(fmt.Errorf("render documentation: %w", err))
	}

	return jsonResult(DocumentationResult{HTML: body})
}

// Views selectable in mapset_verify.
var allViews = []string{"checks", "snapshots", "overview"}

func viewName(tag string) string {
	return strings.ToLower(tag)
}

func validateVerifyInput(input VerifyInput) ([]string, error) {
	if input.Path == "" {
		return nil, ErrEmptyPath
	}

	if !filepath.IsAbs(input.Path) {
		return nil, fmt.Errorf("%w: %s", ErrPathNotAbsolute, input.Path)
	}

	if len(input.Views) == 0 {
		return allViews, nil
	}

	views := make([]string, 0, len(input.Views))

	for _, view := range input.Views {
		name := viewName(view)
		if !slices.Contains(allViews, name) {
			return nil, fmt.Errorf("%w: %q (valid: %s)", ErrUnknownView, view, strings.Join(allViews, ", "))
		}

		views = append(views, name)
	}

	return views, nil
}

// collector is a Sender keeping the messages of one tool call.
type collector struct {
	mu   sync.Mutex
	msgs []orchestrator.Message
}

func (c *collector) Send(_ context.Context, msg orchestrator.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.msgs = append(c.msgs, msg)

	return nil
}

func (c *collector) messages() []orchestrator.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.msgs)
}

// Result helpers.

// errorResult builds a CallToolResult with isError set.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
		IsError: true,
	}, ToolOutput{}, nil
}

// jsonResult builds a CallToolResult with JSON-encoded content.
func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}, ToolOutput{Data: value}, nil
}
