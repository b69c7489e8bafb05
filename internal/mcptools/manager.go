package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/martinemde/alita/agentloop"
)

const clientName = "alita"

// Manager owns the client sessions to a set of MCP servers.
type Manager struct {
	client *mcp.Client

	mu       sync.Mutex
	sessions *orderedmap.OrderedMap[string, *mcp.ClientSession]
}

// NewManager creates a Manager with no connected servers.
func NewManager() *Manager {
	return &Manager{
		client:   mcp.NewClient(&mcp.Implementation{Name: clientName, Version: "dev"}, nil),
		sessions: orderedmap.New[string, *mcp.ClientSession](),
	}
}

// Connect opens a session to the server called name over transport.
func (m *Manager) Connect(ctx context.Context, name string, transport mcp.Transport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions.Get(name); exists {
		return errors.Errorf("MCP server %s is already connected", name)
	}
	session, err := m.client.Connect(ctx, transport, nil)
	if err != nil {
		return errors.Wrapf(err, "connecting to MCP server %s", name)
	}
	m.sessions.Set(name, session)
	log.Debug().Str("server", name).Msg("connected to MCP server")
	return nil
}

// ConnectAll connects to every configured server. On failure the sessions
// opened so far stay open and are released by Close.
func (m *Manager) ConnectAll(ctx context.Context, servers *Servers) error {
	for pair := servers.Oldest(); pair != nil; pair = pair.Next() {
		transport, err := newTransport(pair.Value)
		if err != nil {
			return errors.Wrapf(err, "server %s", pair.Key)
		}
		if err := m.Connect(ctx, pair.Key, transport); err != nil {
			return err
		}
	}
	return nil
}

// Servers returns the connected server names in connection order.
func (m *Manager) Servers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, m.sessions.Len())
	for pair := m.sessions.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// RegisterTools lists the tools of every connected server and adds them to
// reg. It returns how many tools were registered.
func (m *Manager) RegisterTools(ctx context.Context, reg *agentloop.ToolRegistry) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for pair := m.sessions.Oldest(); pair != nil; pair = pair.Next() {
		server, session := pair.Key, pair.Value
		for tool, err := range session.Tools(ctx, nil) {
			if err != nil {
				return count, errors.Wrapf(err, "listing tools of MCP server %s", server)
			}
			params, err := paramsFromSchema(tool.InputSchema)
			if err != nil {
				return count, errors.Wrapf(err, "tool %s of MCP server %s", tool.Name, server)
			}
			reg.Register(agentloop.RegisteredTool{
				Spec: agentloop.ToolSpec{
					Name:        tool.Name,
					Description: tool.Description,
					Params:      params,
				},
				Executor: callTool(session, server, tool.Name),
			})
			log.Debug().Str("server", server).Str("tool", tool.Name).Int("params", len(params)).Msg("registered MCP tool")
			count++
		}
	}
	return count, nil
}

// Close ends every session and returns the first error.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var first error
	for pair := m.sessions.Oldest(); pair != nil; pair = pair.Next() {
		if err := pair.Value.Close(); err != nil {
			log.Warn().Err(err).Str("server", pair.Key).Msg("closing MCP session")
			if first == nil {
				first = errors.Wrapf(err, "closing MCP server %s", pair.Key)
			}
		}
	}
	m.sessions = orderedmap.New[string, *mcp.ClientSession]()
	return first
}

// callTool forwards a dispatched call to the server. Results flagged as
// errors become tool errors, which the dispatcher turns into failure
// observations.
func callTool(session *mcp.ClientSession, server, name string) agentloop.ToolExecutor {
	return func(ctx context.Context, args *agentloop.Arguments, _ agentloop.ExecutionEnvironment) (any, error) {
		var arguments any = map[string]any{}
		if args != nil {
			arguments = args
		}
		res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: arguments})
		if err != nil {
			return nil, errors.Wrapf(err, "calling %s on MCP server %s", name, server)
		}
		text := resultText(res)
		if res.IsError {
			if text == "" {
				text = "tool reported an error"
			}
			return nil, errors.New(text)
		}
		return text, nil
	}
}

func resultText(res *mcp.CallToolResult) string {
	parts := make([]string, 0, len(res.Content))
	for _, c := range res.Content {
		switch c := c.(type) {
		case *mcp.TextContent:
			parts = append(parts, c.Text)
		case *mcp.ImageContent:
			parts = append(parts, fmt.Sprintf("[image content: %s, %d bytes]", c.MIMEType, len(c.Data)))
		case *mcp.AudioContent:
			parts = append(parts, fmt.Sprintf("[audio content: %s, %d bytes]", c.MIMEType, len(c.Data)))
		case *mcp.EmbeddedResource:
			if c.Resource != nil && c.Resource.Text != "" {
				parts = append(parts, c.Resource.Text)
			} else if c.Resource != nil {
				parts = append(parts, fmt.Sprintf("[resource %s]", c.Resource.URI))
			}
		default:
			b, err := json.Marshal(c)
			if err == nil {
				parts = append(parts, string(b))
			}
		}
	}
	if len(parts) == 0 && res.StructuredContent != nil {
		if b, err := json.Marshal(res.StructuredContent); err == nil {
			parts = append(parts, string(b))
		}
	}
	return strings.Join(parts, "\n")
}

func newTransport(cfg ServerConfig) (mcp.Transport, error) {
	kind, err := transportKind(cfg)
	if err != nil {
		return nil, err
	}
	switch kind {
	case TransportStdio:
		cmd := exec.Command(cfg.Command, cfg.Args...)
		if len(cfg.Env) > 0 {
			cmd.Env = os.Environ()
			for k, v := range cfg.Env {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
		}
		return &mcp.CommandTransport{Command: cmd}, nil
	case TransportSSE:
		return &mcp.SSEClientTransport{Endpoint: cfg.URL}, nil
	case TransportStreamableHTTP:
		return &mcp.StreamableClientTransport{Endpoint: cfg.URL}, nil
	}
	return nil, errors.Errorf("unsupported MCP transport %q", kind)
}
