package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"stevedore/internal/container"
	"stevedore/internal/store"
	"stevedore/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const gatewaySubsystem = "Gateway"

// Router exposes the merged tool catalog of every mounted server through a
// single MCP server. Each mounted server owns a stdio client; its tools are
// registered under the prefixed name {serverName}_{toolName} with handlers
// that forward tools/call to the owning client.
type Router struct {
	store *store.Store
	mcp   *server.MCPServer

	// newClient builds the stdio client for a mount. Swappable in tests.
	newClient func(spec container.StdioSpec) ToolClient

	mu       sync.Mutex
	backends map[string]*backend
}

// backend tracks one mounted server: its client and the prefixed tool names
// registered on its behalf.
type backend struct {
	serverID  string
	client    ToolClient
	toolNames []string
}

// NewRouter creates the router and its MCP server. The per-request tool
// filter consults the store on every tools/list.
func NewRouter(st *store.Store) *Router {
	r := &Router{
		store:    st,
		backends: make(map[string]*backend),
	}
	r.newClient = func(spec container.StdioSpec) ToolClient {
		return NewStdioClient(spec.Command, spec.Args, spec.Env)
	}
	r.mcp = server.NewMCPServer(
		"stevedore-gateway",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithToolFilter(newToolFilter(st)),
		server.WithRecovery(),
	)
	return r
}

// MCP returns the underlying MCP server for transport wiring.
func (r *Router) MCP() *server.MCPServer {
	return r.mcp
}

// AddServer attaches one server's stdio process and registers its tools.
// Tool discovery failure mounts the server with an empty catalog rather
// than failing; only spawn and handshake failures are errors. Discovered
// tools are persisted create-or-update by name, newly seen ones enabled.
func (r *Router) AddServer(ctx context.Context, srv *store.Server, spec container.StdioSpec) ([]*store.Tool, error) {
	cli := r.newClient(spec)
	if err := cli.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to attach server %s: %w", srv.Name, err)
	}

	discovered, err := cli.ListTools(ctx)
	if err != nil {
		logging.Warn(gatewaySubsystem, "Tool discovery for %s failed, mounting with no tools: %v", srv.Name, err)
		discovered = nil
	}

	var serverTools []server.ServerTool
	var rows []*store.Tool
	var names []string
	for _, tool := range discovered {
		prefixed := srv.Name + "_" + tool.Name

		registered := tool
		registered.Name = prefixed
		serverTools = append(serverTools, server.ServerTool{
			Tool:    registered,
			Handler: r.forwardHandler(cli, tool.Name),
		})
		names = append(names, prefixed)

		row := &store.Tool{
			ServerID:    srv.ID,
			Name:        prefixed,
			Description: tool.Description,
			InputSchema: marshalSchema(tool.InputSchema),
			Capability:  capabilityFor(tool),
			IsEnabled:   true,
		}
		// Catalog persistence is best effort; the tool still routes
		if err := r.store.UpsertTool(ctx, row); err != nil {
			logging.Warn(gatewaySubsystem, "Failed to persist tool %s: %v", prefixed, err)
		}
		rows = append(rows, row)
	}

	r.mu.Lock()
	if old, exists := r.backends[srv.Name]; exists {
		r.detachLocked(srv.Name, old)
	}
	r.backends[srv.Name] = &backend{serverID: srv.ID, client: cli, toolNames: names}
	r.mu.Unlock()

	if len(serverTools) > 0 {
		r.mcp.AddTools(serverTools...)
	}

	logging.Info(gatewaySubsystem, "Registered server %s with %d tools", srv.Name, len(rows))
	return rows, nil
}

// RemoveServer deregisters a mounted server's tools and closes its client.
// Unknown names are a no-op. The persisted catalog is left alone so admin
// decisions survive a remount.
func (r *Router) RemoveServer(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, exists := r.backends[name]
	if !exists {
		return
	}
	r.detachLocked(name, b)
	logging.Info(gatewaySubsystem, "Deregistered server %s", name)
}

// ServerNames returns the names of all currently mounted servers.
func (r *Router) ServerNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	return names
}

// Close detaches every mounted server.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, b := range r.backends {
		r.detachLocked(name, b)
	}
	return nil
}

func (r *Router) detachLocked(name string, b *backend) {
	if len(b.toolNames) > 0 {
		r.mcp.DeleteTools(b.toolNames...)
	}
	if err := b.client.Close(); err != nil {
		logging.Warn(gatewaySubsystem, "Error closing client for %s: %v", name, err)
	}
	delete(r.backends, name)
}

// forwardHandler wraps one backend tool call. Call failures come back as
// tool-result errors, never handler errors, so the protocol session stays
// healthy.
func (r *Router) forwardHandler(cli ToolClient, toolName string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := make(map[string]interface{})
		if req.Params.Arguments != nil {
			if argsMap, ok := req.Params.Arguments.(map[string]interface{}); ok {
				args = argsMap
			}
		}

		result, err := cli.CallTool(ctx, toolName, args)
		if err != nil {
			logging.Error(gatewaySubsystem, err, "Tool call %s failed", toolName)
			return mcp.NewToolResultError(fmt.Sprintf("tool call failed: %v", err)), nil
		}
		return result, nil
	}
}

// capabilityFor classifies a tool as read or write from its annotations.
// Absent hints mean write, the conservative reading.
func capabilityFor(tool mcp.Tool) string {
	if hint := tool.Annotations.ReadOnlyHint; hint != nil && *hint {
		return store.CapabilityRead
	}
	return store.CapabilityWrite
}

func marshalSchema(schema mcp.ToolInputSchema) string {
	data, err := json.Marshal(schema)
	if err != nil {
		return "{}"
	}
	return string(data)
}
