// Package mcptools connects to MCP servers and registers the tools they
// serve in an agentloop tool registry, next to the core tools.
package mcptools

import (
	"encoding/json"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Transport kinds accepted in a server entry.
const (
	TransportStdio          = "stdio"
	TransportSSE            = "sse"
	TransportStreamableHTTP = "streamable_http"
)

// ServerConfig describes how to reach one MCP server. A server is either a
// local command spoken to over stdio or an HTTP endpoint.
type ServerConfig struct {
	Transport string            `json:"transport,omitempty" validate:"omitempty,oneof=stdio sse streamable_http http"`
	Command   string            `json:"command,omitempty" validate:"required_without=URL"`
	Args      []string          `json:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	URL       string            `json:"url,omitempty" validate:"omitempty,url"`
}

// Servers maps server names to their configuration in file order.
type Servers = orderedmap.OrderedMap[string, ServerConfig]

// LoadConfig reads an mcp.json file.
func LoadConfig(path string) (*Servers, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading MCP config")
	}
	servers, err := ParseConfig(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	return servers, nil
}

// ParseConfig decodes server entries. Both a bare object of servers and one
// nested under "mcpServers" are accepted.
func ParseConfig(data []byte) (*Servers, error) {
	var wrapped struct {
		MCPServers *Servers `json:"mcpServers"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, errors.Wrap(err, "decoding MCP config")
	}
	servers := wrapped.MCPServers
	if servers == nil {
		servers = orderedmap.New[string, ServerConfig]()
		if err := json.Unmarshal(data, servers); err != nil {
			return nil, errors.Wrap(err, "decoding MCP servers")
		}
	}

	validate := validator.New()
	for pair := servers.Oldest(); pair != nil; pair = pair.Next() {
		if err := validate.Struct(pair.Value); err != nil {
			return nil, errors.Wrapf(err, "server %s", pair.Key)
		}
		if _, err := transportKind(pair.Value); err != nil {
			return nil, errors.Wrapf(err, "server %s", pair.Key)
		}
	}
	return servers, nil
}

// transportKind resolves the transport of a server entry. Without an
// explicit transport, commands use stdio and URLs use SSE.
func transportKind(cfg ServerConfig) (string, error) {
	kind := cfg.Transport
	if kind == "http" {
		kind = TransportStreamableHTTP
	}
	if kind == "" {
		if cfg.Command != "" {
			kind = TransportStdio
		} else {
			kind = TransportSSE
		}
	}
	switch kind {
	case TransportStdio:
		if cfg.Command == "" {
			return "", errors.New("stdio transport needs a command")
		}
	case TransportSSE, TransportStreamableHTTP:
		if cfg.URL == "" {
			return "", errors.Errorf("%s transport needs a url", kind)
		}
	}
	return kind, nil
}
