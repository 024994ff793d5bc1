package container

import (
	"context"
	"errors"
	"strings"
	"testing"

	"stevedore/internal/engine"
	"stevedore/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildServerSuccess(t *testing.T) {
	rt := newFakeRuntime()
	m, st := newTestManager(t, rt)
	ctx := context.Background()

	server := &store.Server{
		Name:           "github",
		Runtime:        store.RuntimeNPX,
		InstallCommand: "npx @scope/server",
		StartCommand:   "npx @scope/server",
		IsActive:       true,
	}
	require.NoError(t, st.CreateServer(ctx, server))

	require.NoError(t, m.BuildServer(ctx, server))

	stored, err := st.GetServer(ctx, server.ID)
	require.NoError(t, err)
	assert.Equal(t, store.BuildStatusBuilt, stored.BuildStatus)
	assert.Equal(t, "stevedore/server-"+server.ID, stored.ImageTag)
	assert.Empty(t, stored.BuildError)

	dockerfile := string(rt.builtDockerfiles[stored.ImageTag])
	assert.Contains(t, dockerfile, "FROM node:20-slim")
	assert.Contains(t, dockerfile, "RUN npm install -g --no-audit @scope/server")
}

func TestBuildServerFailure(t *testing.T) {
	rt := newFakeRuntime()
	rt.buildErr = errors.New("npm exited 1")
	m, st := newTestManager(t, rt)
	ctx := context.Background()

	server := &store.Server{
		Name:           "broken",
		Runtime:        store.RuntimeNPX,
		InstallCommand: "npx broken-pkg",
		IsActive:       true,
	}
	require.NoError(t, st.CreateServer(ctx, server))

	err := m.BuildServer(ctx, server)
	require.Error(t, err)

	stored, getErr := st.GetServer(ctx, server.ID)
	require.NoError(t, getErr)
	assert.Equal(t, store.BuildStatusFailed, stored.BuildStatus)
	assert.Contains(t, stored.BuildError, "npm exited 1")
	assert.Empty(t, stored.ImageTag)
}

func TestBuildServerMarksBuildingFirst(t *testing.T) {
	rt := newFakeRuntime()
	m, st := newTestManager(t, rt)
	ctx := context.Background()

	server := &store.Server{Name: "slow", Runtime: store.RuntimeUVX, IsActive: true}
	require.NoError(t, st.CreateServer(ctx, server))

	var statusDuringBuild string
	rt.buildHook = func() {
		if s, err := st.GetServer(ctx, server.ID); err == nil {
			statusDuringBuild = s.BuildStatus
		}
	}

	require.NoError(t, m.BuildServer(ctx, server))
	assert.Equal(t, store.BuildStatusBuilding, statusDuringBuild)
}

func TestBuildServerDockerKindAdoptsImage(t *testing.T) {
	rt := newFakeRuntime()
	m, st := newTestManager(t, rt)
	ctx := context.Background()

	server := &store.Server{
		Name:         "external",
		Runtime:      store.RuntimeDocker,
		StartCommand: "/app/server",
		ImageTag:     "ghcr.io/example/mcp:1.2",
		IsActive:     true,
	}
	require.NoError(t, st.CreateServer(ctx, server))

	require.NoError(t, m.BuildServer(ctx, server))

	stored, err := st.GetServer(ctx, server.ID)
	require.NoError(t, err)
	assert.Equal(t, store.BuildStatusBuilt, stored.BuildStatus)
	assert.Equal(t, "ghcr.io/example/mcp:1.2", stored.ImageTag)
	assert.Contains(t, rt.callLog(), "pull ghcr.io/example/mcp:1.2")
	assert.NotContains(t, rt.callLog(), "build ghcr.io/example/mcp:1.2")
}

func TestBuildServerDockerKindKeepsImageRefOnPullFailure(t *testing.T) {
	rt := newFakeRuntime()
	rt.pullErr = errors.New("registry unreachable")
	m, st := newTestManager(t, rt)
	ctx := context.Background()

	server := &store.Server{
		Name:     "external",
		Runtime:  store.RuntimeDocker,
		ImageTag: "ghcr.io/example/mcp:1.2",
		IsActive: true,
	}
	require.NoError(t, st.CreateServer(ctx, server))

	require.Error(t, m.BuildServer(ctx, server))

	stored, err := st.GetServer(ctx, server.ID)
	require.NoError(t, err)
	assert.Equal(t, store.BuildStatusFailed, stored.BuildStatus)
	assert.Equal(t, "ghcr.io/example/mcp:1.2", stored.ImageTag)
}

func TestBuildServerDockerKindWithoutImage(t *testing.T) {
	rt := newFakeRuntime()
	m, st := newTestManager(t, rt)
	ctx := context.Background()

	server := &store.Server{Name: "incomplete", Runtime: store.RuntimeDocker, IsActive: true}
	require.NoError(t, st.CreateServer(ctx, server))

	err := m.BuildServer(ctx, server)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no image reference")

	stored, getErr := st.GetServer(ctx, server.ID)
	require.NoError(t, getErr)
	assert.Equal(t, store.BuildStatusFailed, stored.BuildStatus)
}

func TestVerifyServer(t *testing.T) {
	t.Run("healthy server passes", func(t *testing.T) {
		rt := newFakeRuntime()
		m, st := newTestManager(t, rt)
		server := builtServer(t, st, "good", store.RuntimeNPX)
		rt.images[server.ImageTag] = true

		require.NoError(t, m.VerifyServer(context.Background(), server))

		require.Len(t, rt.startedSpecs, 1)
		spec := rt.startedSpecs[0]
		assert.Equal(t, server.ImageTag, spec.Image)
		assert.Equal(t, []string{"npx", "some-server", "stdio"}, spec.Cmd)
		assert.Equal(t, int64(256*1024*1024), spec.Memory)
		assert.Equal(t, int64(500_000_000), spec.NanoCPUs)

		// The throwaway container is always removed
		assert.Empty(t, rt.containers)
	})

	t.Run("crashing server reports logs", func(t *testing.T) {
		rt := newFakeRuntime()
		rt.createState = &engine.Container{Running: false, Status: "exited", ExitCode: 127}
		rt.logsOut = "Error: command not found\n"
		m, st := newTestManager(t, rt)
		server := builtServer(t, st, "crashy", store.RuntimeNPX)
		rt.images[server.ImageTag] = true

		err := m.VerifyServer(context.Background(), server)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exit code 127")
		assert.Contains(t, err.Error(), "command not found")
		assert.Empty(t, rt.containers)
	})

	t.Run("missing image fails fast", func(t *testing.T) {
		rt := newFakeRuntime()
		m, st := newTestManager(t, rt)
		server := builtServer(t, st, "unbuilt", store.RuntimeNPX)

		err := m.VerifyServer(context.Background(), server)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "build the server first")
		assert.Empty(t, rt.startedSpecs)
	})

	t.Run("long crash logs are truncated", func(t *testing.T) {
		rt := newFakeRuntime()
		rt.createState = &engine.Container{Running: false, ExitCode: 1}
		rt.logsOut = strings.Repeat("x", 1000)
		m, st := newTestManager(t, rt)
		server := builtServer(t, st, "noisy", store.RuntimeNPX)
		rt.images[server.ImageTag] = true

		err := m.VerifyServer(context.Background(), server)
		require.Error(t, err)
		assert.Less(t, len(err.Error()), 400)
	})
}
