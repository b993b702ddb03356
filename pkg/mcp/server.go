// Package mcp implements a Model Context Protocol server exposing the
// verifier as MCP tools over stdio transport.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mapset-verifier/server/pkg/observability"
	"github.com/mapset-verifier/server/pkg/orchestrator"
	"github.com/mapset-verifier/server/pkg/verifier"
	"github.com/mapset-verifier/server/pkg/version"
)

const (
	// serverName is the MCP server implementation name.
	serverName = "mapsetverifier"

	// toolCount is the expected number of registered tools.
	toolCount = 2
)

// ServerDeps holds injectable dependencies for the MCP server.
// Zero-value optional fields use production defaults.
type ServerDeps struct {
	// Verifier provides the analyses. Required.
	Verifier *verifier.Verifier

	// Store and Loader are shared by every tool call. Nil creates a fresh
	// pair.
	Store  *orchestrator.Store
	Loader *orchestrator.Loader

	// TaskTimeout bounds each analysis. Zero means no deadline.
	TaskTimeout time.Duration

	// Logger is an optional structured logger. Nil uses slog default.
	Logger *slog.Logger

	// Metrics is an optional RED metrics recorder. Nil disables per-tool metrics.
	Metrics *observability.REDMetrics

	// TaskMetrics records analysis outcomes of tool calls.
	TaskMetrics *observability.TaskMetrics

	// Tracer is an optional OTel tracer for per-tool-call spans. Nil disables tracing.
	Tracer trace.Tracer
}

// Server wraps the MCP SDK server with the verifier tool registrations.
type Server struct {
	inner   *mcpsdk.Server
	deps    ServerDeps
	mu      sync.RWMutex
	tools   []string
	metrics *observability.REDMetrics
	tracer  trace.Tracer
}

// NewServer creates a new MCP server with all tools registered.
func NewServer(deps ServerDeps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	if deps.Store == nil {
		deps.Store = orchestrator.NewStore()
	}

	if deps.Loader == nil {
		deps.Loader = orchestrator.NewLoader(orchestrator.LoaderDeps{
			Load:    deps.Verifier.Load,
			Store:   deps.Store,
			Logger:  deps.Logger,
			Tracer:  deps.Tracer,
			Metrics: deps.TaskMetrics,
		})
	}

	inner := mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    serverName,
			Version: version.Version,
		},
		nil,
	)

	srv := &Server{
		inner:   inner,
		deps:    deps,
		tools:   make([]string, 0, toolCount),
		metrics: deps.Metrics,
		tracer:  deps.Tracer,
	}

	srv.registerTools()

	return srv
}

// ListToolNames returns the sorted names of all registered tools.
func (s *Server) ListToolNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, len(s.tools))
	copy(names, s.tools)
	sort.Strings(names)

	return names
}

// Run starts the MCP server on stdio transport. It blocks until the context
// is canceled or the connection closes.
func (s *Server) Run(ctx context.Context) error {
	return s.RunWithTransport(ctx, &mcpsdk.StdioTransport{})
}

// RunWithTransport starts the MCP server on the given transport. It blocks
// until the context is canceled or the connection closes.
func (s *Server) RunWithTransport(ctx context.Context, transport mcpsdk.Transport) error {
	err := s.inner.Run(ctx, transport)
	if err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNameVerify,
		Description: verifyToolDescription,
	}, withMetrics(s.metrics, ToolNameVerify, withTracing(s.tracer, ToolNameVerify, s.handleVerify)))

	s.trackTool(ToolNameVerify)

	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNameDocumentation,
		Description: documentationToolDescription,
	}, withMetrics(s.metrics, ToolNameDocumentation, withTracing(s.tracer, ToolNameDocumentation, s.handleDocumentation)))

	s.trackTool(ToolNameDocumentation)
}

// mcpSpanPrefix is the prefix for MCP tool span names.
const mcpSpanPrefix = "mcp."

// traceIDMetaKey is the metadata key for trace_id in MCP tool responses.
const traceIDMetaKey = "trace_id"

// withTracing wraps an MCP tool handler to create an OTel span per invocation
// and include trace_id in the response content when sampled.
func withTracing[Input any](
	tracer trace.Tracer,
	toolName string,
	handler func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error),
) func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if tracer == nil {
		return handler
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		ctx, span := tracer.Start(ctx, mcpSpanPrefix+toolName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("mcp.tool", toolName)),
		)
		defer span.End()

		result, output, err := handler(ctx, req, input)

		sc := span.SpanContext()
		if sc.IsSampled() && result != nil {
			traceContent := &mcpsdk.TextContent{Text: fmt.Sprintf("%s=%s", traceIDMetaKey, sc.TraceID().String())}
			result.Content = append(result.Content, traceContent)
		}

		return result, output, err
	}
}

// withMetrics wraps an MCP tool handler to record RED metrics per invocation.
func withMetrics[Input any](
	metrics *observability.REDMetrics,
	toolName string,
	handler func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error),
) func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if metrics == nil {
		return handler
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		start := time.Now()

		decInflight := metrics.TrackInflight(ctx, mcpSpanPrefix+toolName)
		defer decInflight()

		result, output, err := handler(ctx, req, input)

		status := "ok"
		if err != nil || (result != nil && result.IsError) {
			status = "error"
		}

		metrics.RecordRequest(ctx, mcpSpanPrefix+toolName, status, time.Since(start))

		return result, output, err
	}
}

func (s *Server) trackTool(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tools = append(s.tools, name)
}

// Tool description constants.
const (
	verifyToolDescription = "Load a beatmap set directory and run the verifier on it " +
		"(checks, snapshots, overview). Returns the rendered HTML of each view " +
		"and any analysis errors as JSON."

	documentationToolDescription = "Render the check documentation page, or the documentation " +
		"overlay of one check when a check message is given."
)
