package mcp_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/mapset-verifier/server/pkg/beatmap"
	"github.com/mapset-verifier/server/pkg/beatmap/beatmaptest"
	"github.com/mapset-verifier/server/pkg/mcp"
	"github.com/mapset-verifier/server/pkg/orchestrator"
	"github.com/mapset-verifier/server/pkg/verifier"
)

const callTimeout = 10 * time.Second

func connect(t *testing.T) *mcpsdk.ClientSession {
	t.Helper()

	v, err := verifier.New(verifier.Deps{})
	require.NoError(t, err)

	return connectServer(t, mcp.NewServer(mcp.ServerDeps{Verifier: v}))
}

func connectServer(t *testing.T, srv *mcp.Server) *mcpsdk.ClientSession {
	t.Helper()

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)

	serverDone := make(chan error, 1)

	go func() {
		serverDone <- srv.RunWithTransport(ctx, serverTransport)
	}()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}, nil)

	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = session.Close()

		cancel()
		<-serverDone
	})

	return session
}

func call(t *testing.T, session *mcpsdk.ClientSession, name string, args map[string]any) *mcpsdk.CallToolResult {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)

	return result
}

func text(t *testing.T, result *mcpsdk.CallToolResult) string {
	t.Helper()

	content, ok := result.Content[0].(*mcpsdk.TextContent)
	require.True(t, ok)

	return content.Text
}

func TestMCPServer_ToolsList(t *testing.T) {
	t.Parallel()

	session := connect(t)

	toolsResult, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	toolNames := make([]string, 0, len(toolsResult.Tools))
	for _, tool := range toolsResult.Tools {
		toolNames = append(toolNames, tool.Name)
		assert.NotNil(t, tool.InputSchema, "tool %s missing input schema", tool.Name)
	}

	assert.ElementsMatch(t, []string{mcp.ToolNameVerify, mcp.ToolNameDocumentation}, toolNames)
}

func TestMCPServer_ListToolNames(t *testing.T) {
	t.Parallel()

	v, err := verifier.New(verifier.Deps{})
	require.NoError(t, err)

	srv := mcp.NewServer(mcp.ServerDeps{Verifier: v})
	assert.Equal(t, []string{mcp.ToolNameDocumentation, mcp.ToolNameVerify}, srv.ListToolNames())
}

func TestMCPServer_Verify(t *testing.T) {
	t.Parallel()

	session := connect(t)
	dir := beatmaptest.WriteSet(t,
		beatmaptest.Difficulty{Version: "Normal", Objects: 10, HP: 4, OD: 5},
		beatmaptest.Difficulty{Version: "Insane", Objects: 0, HP: 7, OD: 8},
	)

	result := call(t, session, mcp.ToolNameVerify, map[string]any{"path": dir, "views": []string{"checks", "Overview"}})
	assert.False(t, result.IsError)

	var got mcp.VerifyResult
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &got))

	assert.Equal(t, dir, got.Path)
	require.Contains(t, got.Views, "checks")
	require.Contains(t, got.Views, "overview")
	assert.NotContains(t, got.Views, "snapshots")
	assert.Contains(t, got.Views["checks"], "No hit objects.")
	assert.Empty(t, got.Exceptions)
	assert.Equal(t, map[string]string{"checks": "published", "overview": "published"}, got.Outcomes)
}

func TestMCPServer_VerifyMissingDirectory(t *testing.T) {
	t.Parallel()

	session := connect(t)

	result := call(t, session, mcp.ToolNameVerify, map[string]any{"path": "/definitely/not/here"})
	assert.False(t, result.IsError)

	var got mcp.VerifyResult
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &got))

	assert.Empty(t, got.Views)
	assert.Contains(t, got.Exceptions, "checks")
	assert.Contains(t, got.Exceptions, "overview")
	assert.Contains(t, got.Exceptions["checks"], `class="exception"`)
}

// A load that fails after another caller queued behind it reports nothing
// but the superseded outcome.
func TestMCPServer_VerifySuperseded(t *testing.T) {
	t.Parallel()

	v, err := verifier.New(verifier.Deps{})
	require.NoError(t, err)

	dir := beatmaptest.WriteSet(t, beatmaptest.Difficulty{Version: "Normal", Objects: 10, HP: 4, OD: 5})
	store := orchestrator.NewStore()

	var loader *orchestrator.Loader

	loader = orchestrator.NewLoader(orchestrator.LoaderDeps{
		Store: store,
		Load: func(ctx context.Context, path string) (*beatmap.Set, error) {
			if path != "/maps/gone" {
				return v.Load(ctx, path)
			}

			go func() { _, _ = loader.EnsureLoaded(context.Background(), dir, nil) }()

			time.Sleep(50 * time.Millisecond)

			return nil, errors.New("no such beatmapset")
		},
	})

	session := connectServer(t, mcp.NewServer(mcp.ServerDeps{Verifier: v, Store: store, Loader: loader}))

	result := call(t, session, mcp.ToolNameVerify, map[string]any{"path": "/maps/gone"})
	assert.False(t, result.IsError)

	var got mcp.VerifyResult
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &got))

	assert.Empty(t, got.Views)
	assert.Empty(t, got.Exceptions)
	assert.Equal(t, map[string]string{"checks": "superseded", "overview": "superseded"}, got.Outcomes)

	require.Eventually(t, func() bool { return store.ActivePath() == dir }, callTimeout, time.Millisecond)
}

func TestMCPServer_VerifyInvalidInput(t *testing.T) {
	t.Parallel()

	session := connect(t)

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"empty path", map[string]any{"path": ""}, mcp.ErrEmptyPath.Error()},
		{"relative path", map[string]any{"path": "maps/A"}, mcp.ErrPathNotAbsolute.Error()},
		{"unknown view", map[string]any{"path": "/maps/A", "views": []string{"storyboard"}}, mcp.ErrUnknownView.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := call(t, session, mcp.ToolNameVerify, tt.args)
			assert.True(t, result.IsError)
			assert.Contains(t, text(t, result), tt.want)
		})
	}
}

func TestMCPServer_Documentation(t *testing.T) {
	t.Parallel()

	session := connect(t)

	var docs mcp.DocumentationResult

	result := call(t, session, mcp.ToolNameDocumentation, map[string]any{})
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &docs))
	assert.Contains(t, docs.HTML, "Missing background image.")

	var overlay mcp.DocumentationResult

	result = call(t, session, mcp.ToolNameDocumentation, map[string]any{"message": "Missing background image."})
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &overlay))
	assert.Contains(t, overlay.HTML, "overlay-top-title")
}

func TestMCPServer_TracesToolCalls(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	v, err := verifier.New(verifier.Deps{})
	require.NoError(t, err)

	srv := mcp.NewServer(mcp.ServerDeps{Verifier: v, Tracer: tp.Tracer("test")})

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	go func() { _ = srv.RunWithTransport(ctx, serverTransport) }()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "1.0.0"}, nil)

	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	defer func() { _ = session.Close() }()

	result := call(t, session, mcp.ToolNameDocumentation, map[string]any{})
	require.Len(t, result.Content, 2)

	traceText, ok := result.Content[1].(*mcpsdk.TextContent)
	require.True(t, ok)
	assert.Contains(t, traceText.Text, "trace_id=")

	spans := exporter.GetSpans()
	require.NotEmpty(t, spans)
	assert.Equal(t, "mcp."+mcp.ToolNameDocumentation, spans[0].Name)
}
