package gateway

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"stevedore/pkg/logging"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

const clientSubsystem = "StdioClient"

// stdioInitTimeout bounds the protocol handshake when the caller's context
// carries no deadline of its own.
const stdioInitTimeout = 10 * time.Second

// ToolClient is the slice of MCP client behavior the router drives: connect,
// discover tools, forward calls, disconnect.
type ToolClient interface {
	Initialize(ctx context.Context) error
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error)
	Close() error
}

// StdioClient speaks MCP to one tool server over a spawned process's stdin
// and stdout. The process is whatever the stdio spec names, typically a
// docker run or docker exec against the server's container.
type StdioClient struct {
	command string
	args    []string
	env     map[string]string

	mu        sync.RWMutex
	client    client.MCPClient
	connected bool
}

// NewStdioClient creates a stdio-based MCP client. The process is not
// spawned until Initialize.
func NewStdioClient(command string, args []string, env map[string]string) *StdioClient {
	return &StdioClient{
		command: command,
		args:    args,
		env:     env,
	}
}

// Initialize spawns the process and performs the MCP protocol handshake.
// Calling it on a connected client is a no-op.
func (c *StdioClient) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	logging.Debug(clientSubsystem, "Spawning stdio client: %s %v", c.command, c.args)

	mcpClient, err := client.NewStdioMCPClient(c.command, envToStrings(c.env), c.args...)
	if err != nil {
		return fmt.Errorf("failed to spawn stdio client: %w", err)
	}

	initCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, stdioInitTimeout)
		defer cancel()
	}

	initResult, err := mcpClient.Initialize(initCtx, mcp.InitializeRequest{
		Params: struct {
			ProtocolVersion string                 `json:"protocolVersion"`
			Capabilities    mcp.ClientCapabilities `json:"capabilities"`
			ClientInfo      mcp.Implementation     `json:"clientInfo"`
		}{
			ProtocolVersion: "2024-11-05",
			ClientInfo: mcp.Implementation{
				Name:    "stevedore-gateway",
				Version: "1.0.0",
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	})
	if err != nil {
		// Close to reap the spawned process
		if closeErr := mcpClient.Close(); closeErr != nil {
			logging.Debug(clientSubsystem, "Error closing failed client for %s: %v", c.command, closeErr)
		}
		return fmt.Errorf("failed to initialize MCP protocol: %w", err)
	}

	c.client = mcpClient
	c.connected = true

	if initResult.Capabilities.Tools == nil {
		logging.Warn(clientSubsystem, "Server %s %v does not advertise tool support", c.command, c.args)
	}

	return nil
}

// Close shuts the client down and reaps the process. Safe on a client that
// never connected.
func (c *StdioClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.client == nil {
		return nil
	}

	err := c.client.Close()
	c.connected = false
	c.client = nil

	return err
}

// ListTools returns all tools the server advertises.
func (c *StdioClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.connected || c.client == nil {
		return nil, fmt.Errorf("client not connected")
	}

	result, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	return result.Tools, nil
}

// CallTool executes one tool by its original, unprefixed name.
func (c *StdioClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.connected || c.client == nil {
		return nil, fmt.Errorf("client not connected")
	}

	result, err := c.client.CallTool(ctx, mcp.CallToolRequest{
		Params: struct {
			Name      string    `json:"name"`
			Arguments any       `json:"arguments,omitempty"`
			Meta      *mcp.Meta `json:"_meta,omitempty"`
		}{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call tool: %w", err)
	}

	return result, nil
}

// envToStrings flattens an environment map into sorted KEY=VALUE pairs.
func envToStrings(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	pairs := make([]string, 0, len(env))
	for k, v := range env {
		pairs = append(pairs, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(pairs)
	return pairs
}
