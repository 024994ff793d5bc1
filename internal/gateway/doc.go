// Package gateway exposes every mounted tool server through a single MCP
// endpoint.
//
// The Router owns one MCP server plus a registry of per-server stdio
// clients. Mounting a server spawns (or attaches to) its container process,
// discovers its tools, and registers each one under the prefixed name
// {serverName}_{toolName} with a handler that forwards the call to the
// owning client. The persisted catalog is updated on every mount; admin
// enable/disable decisions survive rediscovery.
//
// Three layers wrap the transport handler:
//
//   - IdentityMiddleware resolves the trusted identity header into a user
//     on the request context. No header, unknown users, and lookup failures
//     all mean anonymous.
//   - The tool filter hides globally disabled tools from everyone and
//     union-adds the authenticated user's deny-set. It fails open: store
//     errors serve the unfiltered list.
//   - Lifespan starts the gateway exactly once, on the first request or an
//     explicit warm start, with a bounded startup budget and a bounded,
//     idempotent shutdown drain.
//
// Supported transports are streamable-http (default), sse, and stdio.
package gateway
