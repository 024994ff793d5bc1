package container

import (
	"context"
	"strings"
	"testing"

	"stevedore/internal/engine"
	"stevedore/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMCPConfigExistingContainer(t *testing.T) {
	rt := newFakeRuntime()
	m, st := newTestManager(t, rt)
	server := builtServer(t, st, "github", store.RuntimeNPX)

	name := m.ContainerName(server.ID)
	rt.containers[name] = &engine.Container{Running: true, Image: server.ImageTag}

	spec, err := m.BuildMCPConfig(context.Background(), server)
	require.NoError(t, err)

	assert.Equal(t, SpecExisting, spec.Kind)
	assert.Equal(t, "docker", spec.Command)
	assert.Equal(t, []string{"exec", "-i", name, "npx", "some-server", "stdio"}, spec.Args)
	assert.Empty(t, spec.Env)
}

func TestBuildMCPConfigNewContainer(t *testing.T) {
	rt := newFakeRuntime()
	m, st := newTestManager(t, rt)
	ctx := context.Background()

	server := &store.Server{
		Name:         "github",
		Runtime:      store.RuntimeNPX,
		StartCommand: "npx server",
		Env: store.EnvVars{
			{Key: "B_TOKEN", Value: "2"},
			{Key: "A_TOKEN", Value: "1"},
		},
		IsActive: true,
	}
	require.NoError(t, st.CreateServer(ctx, server))
	tag := m.ImageTag(server)
	require.NoError(t, st.SetBuildResult(ctx, server.ID, store.BuildStatusBuilt, "", tag))
	server.ImageTag = tag

	spec, err := m.BuildMCPConfig(ctx, server)
	require.NoError(t, err)

	assert.Equal(t, SpecNew, spec.Kind)
	assert.Equal(t, "docker", spec.Command)
	assert.Equal(t, []string{
		"run", "--rm", "-i",
		"--name", "mcp-" + server.ID,
		"--memory", "512m",
		"--cpus", "0.5",
		"-e", "A_TOKEN=1",
		"-e", "B_TOKEN=2",
		tag,
		"npx", "server", "stdio",
	}, spec.Args)
}

func TestBuildMCPConfigBranchesAreExclusive(t *testing.T) {
	rt := newFakeRuntime()
	m, st := newTestManager(t, rt)
	server := builtServer(t, st, "github", store.RuntimeNPX)
	name := m.ContainerName(server.ID)

	// Stopped container: must take the run branch
	rt.containers[name] = &engine.Container{Running: false, Image: server.ImageTag}
	spec, err := m.BuildMCPConfig(context.Background(), server)
	require.NoError(t, err)
	assert.Equal(t, SpecNew, spec.Kind)
	assert.Equal(t, "run", spec.Args[0])

	// Same container now running: must take the exec branch
	rt.containers[name].Running = true
	spec, err = m.BuildMCPConfig(context.Background(), server)
	require.NoError(t, err)
	assert.Equal(t, SpecExisting, spec.Kind)
	assert.Equal(t, "exec", spec.Args[0])
}

func TestBuildMCPConfigNoStartCommand(t *testing.T) {
	m, st := newTestManager(t, newFakeRuntime())
	ctx := context.Background()

	server := &store.Server{Name: "mute", Runtime: store.RuntimeNPX, IsActive: true}
	require.NoError(t, st.CreateServer(ctx, server))

	_, err := m.BuildMCPConfig(ctx, server)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no start command")
}

func TestBuildMCPConfigMountsSecretsReadOnly(t *testing.T) {
	rt := newFakeRuntime()
	m, st := newTestManager(t, rt)
	ctx := context.Background()

	server := builtServer(t, st, "withsecrets", store.RuntimeUVX)

	storedName, err := m.secrets.Store(server.ID, "ca.pem", strings.NewReader("----"))
	require.NoError(t, err)
	require.NoError(t, st.CreateSecretFile(ctx, &store.SecretFile{
		ServerID:     server.ID,
		OriginalName: "ca.pem",
		StoredName:   storedName,
		EnvVar:       "CA_CERT_PATH",
		IsActive:     true,
	}))

	spec, err := m.BuildMCPConfig(ctx, server)
	require.NoError(t, err)
	require.Equal(t, SpecNew, spec.Kind)

	joined := strings.Join(spec.Args, " ")
	assert.Contains(t, joined, "-e CA_CERT_PATH=/secrets/ca.pem")
	assert.Contains(t, joined, ":/secrets/ca.pem:ro")
	assert.Contains(t, joined, "-v "+m.secrets.FilePath(server.ID, storedName))
}
