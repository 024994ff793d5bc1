package container

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"stevedore/internal/config"
	"stevedore/internal/engine"
	"stevedore/internal/secrets"
	"stevedore/internal/store"
	"stevedore/pkg/logging"
)

const managerSubsystem = "ContainerManager"

const (
	// containerNamePrefix keys a server's container by its ID
	containerNamePrefix = "mcp-"

	// cleanupStopTimeout bounds the graceful stop before force removal
	cleanupStopTimeout = 10
)

// Manager owns the container lifecycle for MCP servers: health verdicts,
// cleanup, image builds, and the reconciliation pass that mounts every
// built server onto the gateway router.
type Manager struct {
	engine  engine.Runtime
	store   *store.Store
	secrets *secrets.Manager
	cfg     *config.Config

	// verifyDelay is how long a verification container gets to settle
	// before its state is checked
	verifyDelay time.Duration

	mu     sync.Mutex
	reused map[string]bool
}

// NewManager creates a container manager
func NewManager(eng engine.Runtime, st *store.Store, sec *secrets.Manager, cfg *config.Config) *Manager {
	return &Manager{
		engine:      eng,
		store:       st,
		secrets:     sec,
		cfg:         cfg,
		verifyDelay: time.Second,
		reused:      make(map[string]bool),
	}
}

// IsDockerRunning reports whether the container engine daemon is
// reachable. Daemon unavailability is a degraded state, never fatal.
func (m *Manager) IsDockerRunning(ctx context.Context) bool {
	return m.engine.Ping(ctx)
}

// ImageTag returns the image tag stevedore builds for a server
func (m *Manager) ImageTag(server *store.Server) string {
	return fmt.Sprintf("%s/server-%s", m.cfg.Docker.Namespace, server.ID)
}

// ContainerName returns the container name for a server ID
func (m *Manager) ContainerName(serverID string) string {
	return containerNamePrefix + serverID
}

// effectiveImage is the image a server's container must run: the tag
// recorded at build time when present (docker-kind servers adopt their
// referenced image there), otherwise the computed tag.
func (m *Manager) effectiveImage(server *store.Server) string {
	if server.ImageTag != "" {
		return server.ImageTag
	}
	return m.ImageTag(server)
}

// IsHealthy reports whether a server's container exists, is running, and
// runs the expected image. Any runtime error counts as unhealthy.
func (m *Manager) IsHealthy(ctx context.Context, server *store.Server) bool {
	name := m.ContainerName(server.ID)

	info, err := m.engine.Inspect(ctx, name)
	if err != nil {
		if !engine.IsNotFound(err) {
			logging.Debug(managerSubsystem, "Health check for %s failed: %v", name, err)
		}
		return false
	}
	if !info.Running {
		return false
	}
	if info.Image != m.effectiveImage(server) {
		logging.Info(managerSubsystem, "Container %s runs stale image %s, expected %s", name, info.Image, m.effectiveImage(server))
		return false
	}
	return true
}

// CleanupStopped reaps a container that has already exited so its name
// frees up. Running containers are left alone. Best effort: failures are
// logged, never propagated.
func (m *Manager) CleanupStopped(ctx context.Context, name string) {
	info, err := m.engine.Inspect(ctx, name)
	if err != nil {
		if !engine.IsNotFound(err) {
			logging.Debug(managerSubsystem, "Inspect of %s during reap failed: %v", name, err)
		}
		return
	}
	if info.Running {
		return
	}
	if err := m.engine.Remove(ctx, name, true); err != nil {
		logging.Warn(managerSubsystem, "Failed to remove stopped container %s: %v", name, err)
		return
	}
	logging.Debug(managerSubsystem, "Removed stopped container %s", name)
}

// CleanupExisting stops and removes a container no matter its state. A
// missing container is a no-op; the removal is forced regardless of the
// stop outcome, so the call is idempotent.
func (m *Manager) CleanupExisting(ctx context.Context, name string) error {
	_, err := m.engine.Inspect(ctx, name)
	if err != nil {
		if engine.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to inspect container %s before cleanup: %w", name, err)
	}

	if err := m.engine.Stop(ctx, name, cleanupStopTimeout); err != nil {
		logging.Warn(managerSubsystem, "Graceful stop of %s failed, removing anyway: %v", name, err)
	}
	if err := m.engine.Remove(ctx, name, true); err != nil {
		if engine.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to remove container %s: %w", name, err)
	}

	logging.Info(managerSubsystem, "Cleaned up container %s", name)
	return nil
}

// Restart restarts a server's container in place. False means the caller
// should fall back to full recreation on the next mount pass.
func (m *Manager) Restart(ctx context.Context, serverID string) bool {
	name := m.ContainerName(serverID)
	if err := m.engine.Restart(ctx, name); err != nil {
		logging.Warn(managerSubsystem, "Failed to restart container %s: %v", name, err)
		return false
	}
	logging.Info(managerSubsystem, "Restarted container %s", name)
	return true
}

// ErrorLogs returns the log tail for a server's container, or the empty
// string when the container is missing or the engine errors. Diagnostics
// must never fail the caller.
func (m *Manager) ErrorLogs(ctx context.Context, serverID string, tail int) string {
	if tail <= 0 {
		tail = m.cfg.Docker.LogTail
	}
	out, err := m.engine.Logs(ctx, m.ContainerName(serverID), tail)
	if err != nil {
		logging.Debug(managerSubsystem, "Could not read logs for server %s: %v", serverID, err)
		return ""
	}
	return out
}

// EnsureImageExists checks for a local image and pulls it when absent.
// A failed pull propagates: a server whose image cannot be fetched must
// fail loudly, not limp along.
func (m *Manager) EnsureImageExists(ctx context.Context, ref string) error {
	if m.engine.ImageExists(ctx, ref) {
		logging.Debug(managerSubsystem, "Image %s already exists locally", ref)
		return nil
	}
	return m.engine.PullImage(ctx, ref)
}

// markReused records that a healthy container was kept across a mount
// pass instead of being recreated.
func (m *Manager) markReused(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reused[name] = true
}

// WasReused reports whether a container survived a mount pass
func (m *Manager) WasReused(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reused[name]
}

// ReusedContainers returns the names of all containers kept across mount
// passes, sorted for stable output.
func (m *Manager) ReusedContainers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.reused))
	for name := range m.reused {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
