// Package container manages the Docker-side lifecycle of MCP servers.
//
// Each server maps to one image (tagged {namespace}/server-{id}) and at
// most one container (named mcp-{id}). The Manager decides, per server and
// per reconciliation pass, whether the existing container is healthy
// enough to reuse or must be torn down and recreated:
//
//	absent            -> fresh container on next session
//	running, stale    -> stop (10s grace), force remove, fresh container
//	running, current  -> reuse, recorded in the reused set
//
// Health means the container exists, is running, and runs the image the
// server was built with. Cleanup always happens before a server is
// registered on the router, never after.
//
// The stdio launch specs built here are what actually create containers:
// a healthy container yields a "docker exec -i" spec, everything else a
// "docker run --rm -i" spec carrying env bindings, read-only secret
// mounts, and resource limits. The MCP stdio client owns the subprocess;
// the Manager only observes and reaps.
//
// BuildServer is the other half: npx and uvx servers get an image baked
// from a generated Dockerfile with their install command, docker servers
// adopt a referenced image. Build outcomes land in the store as
// pending -> building -> built | failed.
package container
