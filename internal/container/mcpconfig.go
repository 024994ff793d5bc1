package container

import (
	"context"
	"fmt"
	"sort"

	"stevedore/internal/store"
	"stevedore/pkg/logging"
)

const (
	// runMemoryLimit and runCPULimit bound every server container
	runMemoryLimit = "512m"
	runCPULimit    = "0.5"
)

// SpecKind distinguishes how a stdio spec reaches its server process
type SpecKind string

const (
	// SpecExisting attaches to an already-running container via exec
	SpecExisting SpecKind = "existing"

	// SpecNew creates a fresh container for the session via run
	SpecNew SpecKind = "new"
)

// StdioSpec describes the subprocess a stdio MCP client launches to talk
// to one server. Command is always the docker binary; the args decide
// whether a new container is created or an existing one is joined.
type StdioSpec struct {
	Kind    SpecKind
	Command string
	Args    []string
	Env     map[string]string
}

// BuildMCPConfig produces the stdio launch spec for a server. A healthy
// container yields an exec spec that joins it; otherwise a run spec
// creates a fresh container carrying the server's environment, secret
// mounts, and resource limits. The two branches are mutually exclusive.
func (m *Manager) BuildMCPConfig(ctx context.Context, server *store.Server) (StdioSpec, error) {
	startCmd := m.ParseStartCommand(server)
	if len(startCmd) == 0 {
		return StdioSpec{}, fmt.Errorf("no start command for server %s", server.Name)
	}

	name := m.ContainerName(server.ID)

	if m.IsHealthy(ctx, server) {
		args := append([]string{"exec", "-i", name}, startCmd...)
		logging.Debug(managerSubsystem, "Server %s joins existing container %s", server.Name, name)
		return StdioSpec{
			Kind:    SpecExisting,
			Command: "docker",
			Args:    args,
			Env:     map[string]string{},
		}, nil
	}

	args := []string{
		"run", "--rm", "-i",
		"--name", name,
		"--memory", runMemoryLimit,
		"--cpus", runCPULimit,
	}

	env := m.EnvVars(ctx, server)
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", k+"="+env[k])
	}

	if files, err := m.store.ListSecretFiles(ctx, server.ID, true); err == nil {
		mounts := m.secrets.PrepareMounts(server.ID, files)
		hosts := make([]string, 0, len(mounts))
		for host := range mounts {
			hosts = append(hosts, host)
		}
		sort.Strings(hosts)
		for _, host := range hosts {
			args = append(args, "-v", host+":"+mounts[host]+":ro")
		}
	} else {
		logging.Warn(managerSubsystem, "Could not resolve secret mounts for server %s: %v", server.Name, err)
	}

	args = append(args, m.effectiveImage(server))
	args = append(args, startCmd...)

	logging.Debug(managerSubsystem, "Server %s starts a fresh container %s", server.Name, name)
	return StdioSpec{
		Kind:    SpecNew,
		Command: "docker",
		Args:    args,
		Env:     map[string]string{},
	}, nil
}
