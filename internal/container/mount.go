package container

import (
	"context"
	"fmt"

	"stevedore/internal/store"
	"stevedore/pkg/logging"

	"golang.org/x/sync/errgroup"
)

// Mounter is the router-side contract the reconciliation pass drives.
// AddServer attaches one server's stdio process and returns the tools it
// advertised; RemoveServer detaches a previously mounted server.
type Mounter interface {
	AddServer(ctx context.Context, server *store.Server, spec StdioSpec) ([]*store.Tool, error)
	RemoveServer(serverName string)
}

// MountResult summarizes one server's outcome in a reconciliation pass
type MountResult struct {
	ServerID   string
	ServerName string
	Reused     bool
	Tools      int
	Err        error
}

// MountBuiltServers runs one reconciliation pass: every active server
// with a built image is health-checked, cleaned up when its container is
// stale, and mounted onto the router. Servers are processed with bounded
// concurrency and one server's failure never blocks its siblings; the
// per-server outcomes are returned for reporting.
func (m *Manager) MountBuiltServers(ctx context.Context, mounter Mounter) ([]MountResult, error) {
	servers, err := m.store.ListBuiltServers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list built servers: %w", err)
	}
	if len(servers) == 0 {
		logging.Info(managerSubsystem, "No built servers to mount")
		return nil, nil
	}

	limit := m.cfg.Gateway.MountConcurrency
	if limit <= 0 {
		limit = 1
	}

	results := make([]MountResult, len(servers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, server := range servers {
		g.Go(func() error {
			results[i] = m.mountOne(gctx, mounter, server)
			return nil
		})
	}

	// Workers never return errors; failures live in the results
	_ = g.Wait()

	return results, nil
}

// mountOne reconciles a single server. Cleanup decisions happen strictly
// before the router registration.
func (m *Manager) mountOne(ctx context.Context, mounter Mounter, server *store.Server) MountResult {
	res := MountResult{ServerID: server.ID, ServerName: server.Name}
	name := m.ContainerName(server.ID)

	if m.IsHealthy(ctx, server) {
		m.markReused(name)
		res.Reused = true
		logging.Info(managerSubsystem, "Reusing healthy container %s for server %s", name, server.Name)
	} else if err := m.CleanupExisting(ctx, name); err != nil {
		// The fresh container may collide with the leftover name; the
		// mount attempt below will surface that.
		logging.Warn(managerSubsystem, "Cleanup of %s failed: %v", name, err)
	}

	spec, err := m.BuildMCPConfig(ctx, server)
	if err != nil {
		res.Err = err
		logging.Warn(managerSubsystem, "Skipping server %s: %v", server.Name, err)
		return res
	}

	tools, err := mounter.AddServer(ctx, server, spec)
	if err != nil {
		res.Err = fmt.Errorf("failed to mount server %s: %w", server.Name, err)
		logging.Error(managerSubsystem, err, "Failed to mount server %s", server.Name)
		// Reap whatever the failed attempt left behind
		m.CleanupStopped(ctx, name)
		return res
	}

	res.Tools = len(tools)
	logging.Info(managerSubsystem, "Mounted server %s with %d tools", server.Name, len(tools))
	return res
}

// UnmountServer detaches a server from the router and tears down its
// container. Used when a server is deleted or deactivated at runtime.
func (m *Manager) UnmountServer(ctx context.Context, mounter Mounter, server *store.Server) {
	mounter.RemoveServer(server.Name)
	if err := m.CleanupExisting(ctx, m.ContainerName(server.ID)); err != nil {
		logging.Warn(managerSubsystem, "Cleanup after unmounting %s failed: %v", server.Name, err)
	}
}
