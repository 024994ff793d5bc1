package container

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stevedore/internal/engine"
	"stevedore/internal/store"
	"stevedore/pkg/logging"
)

const (
	verifyMemoryLimit = 256 * 1024 * 1024
	verifyNanoCPUs    = 500_000_000
	verifyLogTail     = 20
	verifyLogPreview  = 200
)

// BuildServer runs the image build pipeline for a server and records the
// outcome. npx and uvx servers get an image baked from a generated
// Dockerfile under the computed tag; docker servers skip the build and
// adopt their referenced image once it is present locally.
func (m *Manager) BuildServer(ctx context.Context, server *store.Server) error {
	if server.Runtime == store.RuntimeDocker {
		return m.adoptDockerImage(ctx, server)
	}

	tag := m.ImageTag(server)
	if err := m.store.SetBuildStatus(ctx, server.ID, store.BuildStatusBuilding); err != nil {
		return fmt.Errorf("failed to mark server %s as building: %w", server.Name, err)
	}

	logging.Info(managerSubsystem, "Building image %s for server %s (%s)", tag, server.Name, server.Runtime)

	dockerfile, err := m.GenerateDockerfile(server)
	if err != nil {
		m.recordBuildFailure(ctx, server, err, "")
		return err
	}

	if err := m.engine.BuildImage(ctx, tag, dockerfile); err != nil {
		m.recordBuildFailure(ctx, server, err, "")
		return err
	}

	if err := m.store.SetBuildResult(ctx, server.ID, store.BuildStatusBuilt, "", tag); err != nil {
		return fmt.Errorf("failed to record build result for server %s: %w", server.Name, err)
	}

	logging.Info(managerSubsystem, "Server %s built as %s", server.Name, tag)
	return nil
}

// adoptDockerImage handles the docker runtime kind: nothing to build,
// but the referenced image must exist locally before the server counts
// as built.
func (m *Manager) adoptDockerImage(ctx context.Context, server *store.Server) error {
	ref := strings.TrimSpace(server.ImageTag)
	if ref == "" {
		err := fmt.Errorf("server %s has runtime docker but no image reference", server.Name)
		m.recordBuildFailure(ctx, server, err, "")
		return err
	}

	// Keep the image reference on failure so a retry can pull again
	if err := m.EnsureImageExists(ctx, ref); err != nil {
		m.recordBuildFailure(ctx, server, err, ref)
		return err
	}

	if err := m.store.SetBuildResult(ctx, server.ID, store.BuildStatusBuilt, "", ref); err != nil {
		return fmt.Errorf("failed to record build result for server %s: %w", server.Name, err)
	}

	logging.Info(managerSubsystem, "Server %s adopted image %s", server.Name, ref)
	return nil
}

func (m *Manager) recordBuildFailure(ctx context.Context, server *store.Server, cause error, keepTag string) {
	if err := m.store.SetBuildResult(ctx, server.ID, store.BuildStatusFailed, cause.Error(), keepTag); err != nil {
		logging.Error(managerSubsystem, err, "Failed to record build failure for server %s", server.Name)
	}
}

// GenerateDockerfile produces the build recipe for an npx or uvx server:
// the configured base image for the runtime kind, plus a RUN layer for
// the normalized install command when one is configured.
func (m *Manager) GenerateDockerfile(server *store.Server) ([]byte, error) {
	var base string
	switch server.Runtime {
	case store.RuntimeNPX:
		base = m.cfg.Docker.NodeImage
	case store.RuntimeUVX:
		base = m.cfg.Docker.PythonImage
	default:
		return nil, fmt.Errorf("runtime %s does not use a generated Dockerfile", server.Runtime)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "FROM %s\n", base)
	if server.Runtime == store.RuntimeUVX {
		// uvx ships with uv, which the slim python images lack
		b.WriteString("RUN pip install --no-cache-dir uv\n")
	}
	b.WriteString("WORKDIR /app\n")
	if install := m.ParseInstallCommand(server); install != "" {
		fmt.Fprintf(&b, "RUN %s\n", install)
	}
	return []byte(b.String()), nil
}

// VerifyServer smoke-tests a built server: it starts a throwaway
// container with the server's real start command and checks that the
// process survives a settle period instead of crashing on boot. The
// container is always removed, the outcome is informational.
func (m *Manager) VerifyServer(ctx context.Context, server *store.Server) error {
	image := m.effectiveImage(server)
	if !m.engine.ImageExists(ctx, image) {
		return fmt.Errorf("image %s not found, build the server first", image)
	}

	startCmd := m.ParseStartCommand(server)
	if len(startCmd) == 0 {
		return fmt.Errorf("no start command configured for server %s", server.Name)
	}

	id, err := m.engine.CreateAndStart(ctx, engine.ContainerSpec{
		Image:    image,
		Cmd:      startCmd,
		Env:      m.EnvVars(ctx, server),
		Memory:   verifyMemoryLimit,
		NanoCPUs: verifyNanoCPUs,
	})
	if err != nil {
		return fmt.Errorf("failed to start verification container for server %s: %w", server.Name, err)
	}
	defer func() {
		if err := m.engine.Remove(context.WithoutCancel(ctx), id, true); err != nil {
			logging.Warn(managerSubsystem, "Failed to remove verification container %s: %v", id, err)
		}
	}()

	// MCP servers block on stdin; an immediate exit means a broken image
	time.Sleep(m.verifyDelay)

	info, err := m.engine.Inspect(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to inspect verification container for server %s: %w", server.Name, err)
	}
	if !info.Running {
		preview := m.verifyLogPreview(ctx, id)
		return fmt.Errorf("server %s exited immediately (exit code %d): %s", server.Name, info.ExitCode, preview)
	}

	if err := m.engine.Stop(ctx, id, 2); err != nil {
		logging.Debug(managerSubsystem, "Stop of verification container %s failed: %v", id, err)
	}

	logging.Info(managerSubsystem, "Server %s verified", server.Name)
	return nil
}

func (m *Manager) verifyLogPreview(ctx context.Context, id string) string {
	logs, err := m.engine.Logs(ctx, id, verifyLogTail)
	if err != nil || logs == "" {
		return "no logs"
	}
	if len(logs) > verifyLogPreview {
		return logs[:verifyLogPreview]
	}
	return logs
}
