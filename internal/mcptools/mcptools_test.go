package mcptools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/alita/agentloop"
)

func TestParseConfig(t *testing.T) {
	servers, err := ParseConfig([]byte(`{
		"files": {"command": "npx", "args": ["-y", "server-files"], "env": {"ROOT": "/tmp"}},
		"weather": {"url": "http://localhost:8000/sse", "transport": "sse"},
		"search": {"url": "http://localhost:9000/mcp", "transport": "streamable_http"}
	}`))
	require.NoError(t, err)

	var names []string
	for pair := servers.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	assert.Equal(t, []string{"files", "weather", "search"}, names)

	files, _ := servers.Get("files")
	assert.Equal(t, []string{"-y", "server-files"}, files.Args)
	assert.Equal(t, "/tmp", files.Env["ROOT"])
}

func TestParseConfigNested(t *testing.T) {
	servers, err := ParseConfig([]byte(`{"mcpServers": {"git": {"command": "mcp-git"}}}`))
	require.NoError(t, err)
	require.Equal(t, 1, servers.Len())
	git, ok := servers.Get("git")
	require.True(t, ok)
	assert.Equal(t, "mcp-git", git.Command)
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"not json", `{"a": `},
		{"no command or url", `{"a": {"args": ["x"]}}`},
		{"unknown transport", `{"a": {"command": "x", "transport": "carrier-pigeon"}}`},
		{"stdio without command", `{"a": {"url": "http://localhost/mcp", "transport": "stdio"}}`},
		{"http without url", `{"a": {"command": "x", "transport": "sse"}}`},
		{"bad url", `{"a": {"url": "not a url"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.json))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "mcp.json"))
	assert.Error(t, err)
}

func TestNewTransport(t *testing.T) {
	stdio, err := newTransport(ServerConfig{Command: "mcp-git", Args: []string{"--repo", "."}, Env: map[string]string{"A": "1"}})
	require.NoError(t, err)
	cmd, ok := stdio.(*mcp.CommandTransport)
	require.True(t, ok)
	assert.Equal(t, []string{"mcp-git", "--repo", "."}, cmd.Command.Args)
	assert.Contains(t, cmd.Command.Env, "A=1")

	sse, err := newTransport(ServerConfig{URL: "http://localhost/sse"})
	require.NoError(t, err)
	assert.IsType(t, &mcp.SSEClientTransport{}, sse)

	streamable, err := newTransport(ServerConfig{URL: "http://localhost/mcp", Transport: "http"})
	require.NoError(t, err)
	assert.IsType(t, &mcp.StreamableClientTransport{}, streamable)
}

func TestParamsFromSchema(t *testing.T) {
	params, err := paramsFromSchema(json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "What to look for"},
			"limit": {"type": ["integer", "null"], "default": 10},
			"tags": {"type": "array", "items": {"type": "string"}},
			"mode": {"type": "string", "enum": ["fast", "slow"]},
			"filter": {"type": "object"},
			"anything": {}
		},
		"required": ["query"]
	}`))
	require.NoError(t, err)
	require.Len(t, params, 6)

	assert.Equal(t, agentloop.ParamSpec{Name: "query", Type: agentloop.ParamString, Description: "What to look for", Required: true}, params[0])
	assert.Equal(t, agentloop.ParamInteger, params[1].Type)
	assert.False(t, params[1].Required)
	assert.Equal(t, 10.0, params[1].Default)
	assert.Equal(t, agentloop.ParamArray, params[2].Type)
	assert.Equal(t, agentloop.ParamString, params[2].Items)
	assert.Equal(t, []string{"fast", "slow"}, params[3].Enum)
	assert.Equal(t, agentloop.ParamObject, params[4].Type)
	assert.Equal(t, agentloop.ParamAny, params[5].Type)

	none, err := paramsFromSchema(map[string]any{"type": "object"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

// newTestServer serves a greet tool and a failing tool over in-memory
// transports and returns a manager connected to it.
func newTestServer(t *testing.T) *Manager {
	t.Helper()
	ctx := context.Background()
	server := mcp.NewServer(&mcp.Implementation{Name: "test", Version: "v0.0.1"}, nil)
	server.AddTool(&mcp.Tool{
		Name:        "greet",
		Description: "Greet someone.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"user":{"type":"string"},"times":{"type":"integer"}},"required":["user"]}`),
	}, func(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args struct {
			User  string `json:"user"`
			Times int    `json:"times"`
		}
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			return nil, err
		}
		text := "Hi " + args.User
		for i := 1; i < args.Times; i++ {
			text += "!"
		}
		return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}, nil
	})
	server.AddTool(&mcp.Tool{
		Name:        "explode",
		InputSchema: json.RawMessage(`{"type":"object"}`),
	}, func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: "disk on fire"}},
		}, nil
	})

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	_, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)

	m := NewManager()
	require.NoError(t, m.Connect(ctx, "test", clientTransport))
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestRegisterToolsAndDispatch(t *testing.T) {
	m := newTestServer(t)
	reg := agentloop.NewToolRegistry()
	agentloop.RegisterCoreTools(reg, 0)
	before := reg.Count()

	n, err := m.RegisterTools(context.Background(), reg)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, before+2, reg.Count())
	assert.Equal(t, []string{"test"}, m.Servers())

	greet := reg.Get("greet")
	require.NotNil(t, greet)
	assert.Equal(t, "Greet someone.", greet.Spec.Description)
	user, ok := greet.Spec.Param("user")
	require.True(t, ok)
	assert.True(t, user.Required)

	d := agentloop.NewDispatcher(reg, nil)
	ctx := context.Background()

	obs := d.Dispatch(ctx, agentloop.ToolCall{Name: "greet", Arguments: agentloop.NewArguments("user", "you", "times", "3")})
	assert.False(t, obs.IsFailure(), obs.Content)
	assert.Equal(t, "Hi you!!", obs.Content)

	obs = d.Dispatch(ctx, agentloop.ToolCall{Name: "explode", Arguments: agentloop.NewArguments()})
	assert.True(t, obs.IsFailure())
	assert.Contains(t, obs.String(), "disk on fire")

	obs = d.Dispatch(ctx, agentloop.ToolCall{Name: "greet", Arguments: agentloop.NewArguments()})
	assert.True(t, obs.IsFailure())
	assert.Contains(t, obs.String(), "missing required argument: 'user'")
}

func TestConnectTwice(t *testing.T) {
	m := newTestServer(t)
	_, clientTransport := mcp.NewInMemoryTransports()
	assert.Error(t, m.Connect(context.Background(), "test", clientTransport))
}

func TestResultText(t *testing.T) {
	res := &mcp.CallToolResult{Content: []mcp.Content{
		&mcp.TextContent{Text: "one"},
		&mcp.ImageContent{MIMEType: "image/png", Data: []byte("abcd")},
		&mcp.EmbeddedResource{Resource: &mcp.ResourceContents{URI: "file:///a.txt", Text: "contents"}},
	}}
	assert.Equal(t, "one\n[image content: image/png, 4 bytes]\ncontents", resultText(res))

	structured := &mcp.CallToolResult{StructuredContent: map[string]any{"ok": true}}
	assert.Equal(t, `{"ok":true}`, resultText(structured))
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"git": {"command": "mcp-git"}}`), 0644))
	servers, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 1, servers.Len())
}
