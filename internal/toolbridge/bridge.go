// ABOUTME: Forwards a child process's item/tool/call requests to configured external MCP servers.
// ABOUTME: Tool names use the runtime's "mcp:{server}/{tool}" wire convention to route to the right session.
package toolbridge

import (
	"context"
	"fmt"
	"strings"
	"sync"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/draphael89/swarmd/internal/childproto"
)

// ServerConfig describes one external MCP server to connect to at startup,
// launched as a subprocess speaking MCP-over-stdio.
type ServerConfig struct {
	Name    string
	Command string
	Args    []string
	Env     []string
}

// Bridge holds one live MCP client per configured server and routes calls to
// them by the "mcp:{server}/{tool}" tool-name convention.
type Bridge struct {
	mu      sync.RWMutex
	clients map[string]*mcpclient.Client
}

// New constructs an empty Bridge. Call Connect for each configured server
// before routing calls through Dispatch.
func New() *Bridge {
	return &Bridge{clients: make(map[string]*mcpclient.Client)}
}

// Connect launches cfg's subprocess over the stdio transport, performs the
// MCP initialize handshake, and keeps the client keyed by cfg.Name for
// later routing.
func (b *Bridge) Connect(ctx context.Context, cfg ServerConfig) error {
	client, err := mcpclient.NewStdioMCPClient(cfg.Command, cfg.Env, cfg.Args...)
	if err != nil {
		return fmt.Errorf("toolbridge: create client %q: %w", cfg.Name, err)
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: "swarmd", Version: "1.0.0"}
	if _, err := client.Initialize(ctx, initReq); err != nil {
		_ = client.Close()
		return fmt.Errorf("toolbridge: initialize %q: %w", cfg.Name, err)
	}

	b.mu.Lock()
	b.clients[cfg.Name] = client
	b.mu.Unlock()
	return nil
}

// Close terminates every connected server client.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	for name, client := range b.clients {
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("toolbridge: close %q: %w", name, err)
		}
	}
	return firstErr
}

// Dispatch routes a child's tool-call request to the matching MCP server
// client. params.Tool must follow the "mcp:{server}/{tool}" convention; any
// other shape is rejected as unroutable.
func (b *Bridge) Dispatch(ctx context.Context, agentID string, params childproto.ToolCallParams) (any, error) {
	server, tool, err := parseToolName(params.Tool)
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	client, ok := b.clients[server]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("toolbridge: no mcp server connected for %q", server)
	}

	args, _ := params.Arguments.(map[string]any)
	req := mcpgo.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args

	result, err := client.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("toolbridge: call %s/%s: %w", server, tool, err)
	}
	if result.IsError {
		return nil, fmt.Errorf("toolbridge: %s/%s reported an error result", server, tool)
	}
	return result.Content, nil
}

// parseToolName splits "mcp:{server}/{tool}" into its parts.
func parseToolName(raw string) (server, tool string, err error) {
	const prefix = "mcp:"
	if !strings.HasPrefix(raw, prefix) {
		return "", "", fmt.Errorf("toolbridge: tool name %q is not an mcp tool call", raw)
	}
	rest := strings.TrimPrefix(raw, prefix)
	idx := strings.IndexByte(rest, '/')
	if idx < 0 {
		return "", "", fmt.Errorf("toolbridge: malformed mcp tool name %q", raw)
	}
	return rest[:idx], rest[idx+1:], nil
}
