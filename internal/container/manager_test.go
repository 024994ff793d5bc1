package container

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"stevedore/internal/config"
	"stevedore/internal/engine"
	"stevedore/internal/secrets"
	"stevedore/internal/store"

	"github.com/docker/docker/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRuntime implements engine.Runtime against in-memory state and
// records every call in order.
type fakeRuntime struct {
	mu    sync.Mutex
	calls []string

	pingResult bool
	containers map[string]*engine.Container
	images     map[string]bool

	logsOut string
	logsErr error

	inspectErr error
	stopErr    error
	removeErr  error
	restartErr error
	pullErr    error
	buildErr   error
	createErr  error

	// buildHook runs in the middle of BuildImage, before the result is
	// recorded
	buildHook func()

	createState      *engine.Container
	startedSpecs     []engine.ContainerSpec
	builtDockerfiles map[string][]byte
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		pingResult:       true,
		containers:       make(map[string]*engine.Container),
		images:           make(map[string]bool),
		builtDockerfiles: make(map[string][]byte),
	}
}

func (f *fakeRuntime) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeRuntime) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRuntime) Ping(ctx context.Context) bool {
	f.record("ping")
	return f.pingResult
}

func (f *fakeRuntime) Inspect(ctx context.Context, name string) (*engine.Container, error) {
	f.record("inspect %s", name)
	if f.inspectErr != nil {
		return nil, f.inspectErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[name]
	if !ok {
		return nil, errdefs.NotFound(fmt.Errorf("no such container: %s", name))
	}
	copied := *c
	return &copied, nil
}

func (f *fakeRuntime) CreateAndStart(ctx context.Context, spec engine.ContainerSpec) (string, error) {
	f.record("create %s", spec.Image)
	if f.createErr != nil {
		return "", f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startedSpecs = append(f.startedSpecs, spec)
	id := fmt.Sprintf("cid-%d", len(f.startedSpecs))
	state := f.createState
	if state == nil {
		state = &engine.Container{Running: true, Status: "running"}
	}
	copied := *state
	copied.ID = id
	copied.Image = spec.Image
	f.containers[id] = &copied
	return id, nil
}

func (f *fakeRuntime) Stop(ctx context.Context, name string, timeoutSeconds int) error {
	f.record("stop %s %d", name, timeoutSeconds)
	if f.stopErr != nil {
		return f.stopErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.containers[name]; ok {
		c.Running = false
		c.Status = "exited"
	}
	return nil
}

func (f *fakeRuntime) Remove(ctx context.Context, name string, force bool) error {
	f.record("remove %s force=%t", name, force)
	if f.removeErr != nil {
		return f.removeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.containers[name]; !ok {
		return errdefs.NotFound(fmt.Errorf("no such container: %s", name))
	}
	delete(f.containers, name)
	return nil
}

func (f *fakeRuntime) Restart(ctx context.Context, name string) error {
	f.record("restart %s", name)
	if f.restartErr != nil {
		return f.restartErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.containers[name]; !ok {
		return errdefs.NotFound(fmt.Errorf("no such container: %s", name))
	}
	return nil
}

func (f *fakeRuntime) Logs(ctx context.Context, name string, tail int) (string, error) {
	f.record("logs %s %d", name, tail)
	return f.logsOut, f.logsErr
}

func (f *fakeRuntime) ImageExists(ctx context.Context, ref string) bool {
	f.record("image-exists %s", ref)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.images[ref]
}

func (f *fakeRuntime) PullImage(ctx context.Context, ref string) error {
	f.record("pull %s", ref)
	if f.pullErr != nil {
		return f.pullErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images[ref] = true
	return nil
}

func (f *fakeRuntime) BuildImage(ctx context.Context, ref string, dockerfile []byte) error {
	f.record("build %s", ref)
	if f.buildHook != nil {
		f.buildHook()
	}
	if f.buildErr != nil {
		return f.buildErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builtDockerfiles[ref] = dockerfile
	f.images[ref] = true
	return nil
}

func (f *fakeRuntime) Close() error { return nil }

func newTestManager(t *testing.T, rt engine.Runtime) (*Manager, *store.Store) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "stevedore.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := config.GetDefaultConfig()
	m := NewManager(rt, st, secrets.NewManager(t.TempDir()), &cfg)
	m.verifyDelay = 0
	return m, st
}

func builtServer(t *testing.T, st *store.Store, name, runtime string) *store.Server {
	t.Helper()

	server := &store.Server{
		Name:         name,
		GithubURL:    "https://github.com/example/" + name,
		Runtime:      runtime,
		StartCommand: "npx some-server",
		IsActive:     true,
	}
	if runtime == store.RuntimeUVX {
		server.StartCommand = "uvx some-server"
	}
	require.NoError(t, st.CreateServer(context.Background(), server))
	tag := "stevedore/server-" + server.ID
	require.NoError(t, st.SetBuildResult(context.Background(), server.ID, store.BuildStatusBuilt, "", tag))
	server.BuildStatus = store.BuildStatusBuilt
	server.ImageTag = tag
	return server
}

func TestImageTagAndContainerName(t *testing.T) {
	m, st := newTestManager(t, newFakeRuntime())
	server := builtServer(t, st, "github", store.RuntimeNPX)

	tag := m.ImageTag(server)
	assert.Equal(t, "stevedore/server-"+server.ID, tag)
	assert.Equal(t, "mcp-"+server.ID, m.ContainerName(server.ID))

	// Pure functions of the ID: identical inputs, identical outputs
	assert.Equal(t, tag, m.ImageTag(server))
}

func TestIsDockerRunning(t *testing.T) {
	rt := newFakeRuntime()
	m, _ := newTestManager(t, rt)

	assert.True(t, m.IsDockerRunning(context.Background()))

	rt.pingResult = false
	assert.False(t, m.IsDockerRunning(context.Background()))
}

func TestIsHealthy(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(rt *fakeRuntime, server *store.Server, containerName string)
		expected bool
	}{
		{
			name:     "container absent",
			setup:    func(rt *fakeRuntime, server *store.Server, containerName string) {},
			expected: false,
		},
		{
			name: "container stopped",
			setup: func(rt *fakeRuntime, server *store.Server, containerName string) {
				rt.containers[containerName] = &engine.Container{Running: false, Image: server.ImageTag}
			},
			expected: false,
		},
		{
			name: "container runs stale image",
			setup: func(rt *fakeRuntime, server *store.Server, containerName string) {
				rt.containers[containerName] = &engine.Container{Running: true, Image: "stevedore/server-old"}
			},
			expected: false,
		},
		{
			name: "inspect error",
			setup: func(rt *fakeRuntime, server *store.Server, containerName string) {
				rt.inspectErr = errors.New("daemon hiccup")
			},
			expected: false,
		},
		{
			name: "running with current image",
			setup: func(rt *fakeRuntime, server *store.Server, containerName string) {
				rt.containers[containerName] = &engine.Container{Running: true, Image: server.ImageTag}
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newFakeRuntime()
			m, st := newTestManager(t, rt)
			server := builtServer(t, st, "srv", store.RuntimeNPX)

			tt.setup(rt, server, m.ContainerName(server.ID))
			assert.Equal(t, tt.expected, m.IsHealthy(context.Background(), server))
		})
	}
}

func TestCleanupStopped(t *testing.T) {
	t.Run("removes exited container", func(t *testing.T) {
		rt := newFakeRuntime()
		rt.containers["mcp-x"] = &engine.Container{Running: false}
		m, _ := newTestManager(t, rt)

		m.CleanupStopped(context.Background(), "mcp-x")
		_, exists := rt.containers["mcp-x"]
		assert.False(t, exists)
	})

	t.Run("leaves running container alone", func(t *testing.T) {
		rt := newFakeRuntime()
		rt.containers["mcp-x"] = &engine.Container{Running: true}
		m, _ := newTestManager(t, rt)

		m.CleanupStopped(context.Background(), "mcp-x")
		_, exists := rt.containers["mcp-x"]
		assert.True(t, exists)
		assert.NotContains(t, rt.callLog(), "remove mcp-x force=true")
	})

	t.Run("missing container is a no-op", func(t *testing.T) {
		rt := newFakeRuntime()
		m, _ := newTestManager(t, rt)

		m.CleanupStopped(context.Background(), "mcp-x")
		assert.Equal(t, []string{"inspect mcp-x"}, rt.callLog())
	})

	t.Run("remove failure is swallowed", func(t *testing.T) {
		rt := newFakeRuntime()
		rt.containers["mcp-x"] = &engine.Container{Running: false}
		rt.removeErr = errors.New("device busy")
		m, _ := newTestManager(t, rt)

		m.CleanupStopped(context.Background(), "mcp-x")
	})
}

func TestCleanupExisting(t *testing.T) {
	t.Run("stops then force removes", func(t *testing.T) {
		rt := newFakeRuntime()
		rt.containers["mcp-x"] = &engine.Container{Running: true}
		m, _ := newTestManager(t, rt)

		require.NoError(t, m.CleanupExisting(context.Background(), "mcp-x"))
		assert.Equal(t, []string{"inspect mcp-x", "stop mcp-x 10", "remove mcp-x force=true"}, rt.callLog())
	})

	t.Run("missing container is a no-op", func(t *testing.T) {
		rt := newFakeRuntime()
		m, _ := newTestManager(t, rt)

		require.NoError(t, m.CleanupExisting(context.Background(), "mcp-x"))
		assert.Equal(t, []string{"inspect mcp-x"}, rt.callLog())
	})

	t.Run("idempotent after removal", func(t *testing.T) {
		rt := newFakeRuntime()
		rt.containers["mcp-x"] = &engine.Container{Running: true}
		m, _ := newTestManager(t, rt)

		require.NoError(t, m.CleanupExisting(context.Background(), "mcp-x"))
		require.NoError(t, m.CleanupExisting(context.Background(), "mcp-x"))
	})

	t.Run("stop failure still removes", func(t *testing.T) {
		rt := newFakeRuntime()
		rt.containers["mcp-x"] = &engine.Container{Running: true}
		rt.stopErr = errors.New("timeout")
		m, _ := newTestManager(t, rt)

		require.NoError(t, m.CleanupExisting(context.Background(), "mcp-x"))
		assert.Contains(t, rt.callLog(), "remove mcp-x force=true")
	})
}

func TestRestart(t *testing.T) {
	t.Run("running container restarts", func(t *testing.T) {
		rt := newFakeRuntime()
		m, st := newTestManager(t, rt)
		server := builtServer(t, st, "srv", store.RuntimeNPX)
		rt.containers[m.ContainerName(server.ID)] = &engine.Container{Running: true}

		assert.True(t, m.Restart(context.Background(), server.ID))
	})

	t.Run("missing container reports false", func(t *testing.T) {
		rt := newFakeRuntime()
		m, _ := newTestManager(t, rt)

		assert.False(t, m.Restart(context.Background(), "gone1234"))
	})

	t.Run("engine error reports false", func(t *testing.T) {
		rt := newFakeRuntime()
		rt.restartErr = errors.New("daemon down")
		m, _ := newTestManager(t, rt)

		assert.False(t, m.Restart(context.Background(), "abc12345"))
	})
}

func TestErrorLogs(t *testing.T) {
	t.Run("returns log tail", func(t *testing.T) {
		rt := newFakeRuntime()
		rt.logsOut = "boom: connection refused\n"
		m, _ := newTestManager(t, rt)

		assert.Equal(t, "boom: connection refused\n", m.ErrorLogs(context.Background(), "abc12345", 50))
		assert.Contains(t, rt.callLog(), "logs mcp-abc12345 50")
	})

	t.Run("default tail from config", func(t *testing.T) {
		rt := newFakeRuntime()
		m, _ := newTestManager(t, rt)

		m.ErrorLogs(context.Background(), "abc12345", 0)
		assert.Contains(t, rt.callLog(), "logs mcp-abc12345 100")
	})

	t.Run("engine error yields empty string", func(t *testing.T) {
		rt := newFakeRuntime()
		rt.logsErr = errors.New("no such container")
		m, _ := newTestManager(t, rt)

		assert.Equal(t, "", m.ErrorLogs(context.Background(), "abc12345", 10))
	})
}

func TestEnsureImageExists(t *testing.T) {
	t.Run("present image is not pulled", func(t *testing.T) {
		rt := newFakeRuntime()
		rt.images["python:3.11-slim"] = true
		m, _ := newTestManager(t, rt)

		require.NoError(t, m.EnsureImageExists(context.Background(), "python:3.11-slim"))
		assert.NotContains(t, rt.callLog(), "pull python:3.11-slim")
	})

	t.Run("absent image is pulled", func(t *testing.T) {
		rt := newFakeRuntime()
		m, _ := newTestManager(t, rt)

		require.NoError(t, m.EnsureImageExists(context.Background(), "node:20-slim"))
		assert.Contains(t, rt.callLog(), "pull node:20-slim")
	})

	t.Run("pull failure propagates", func(t *testing.T) {
		rt := newFakeRuntime()
		rt.pullErr = errors.New("registry unreachable")
		m, _ := newTestManager(t, rt)

		err := m.EnsureImageExists(context.Background(), "node:20-slim")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "registry unreachable")
	})
}

func TestReusedContainerSet(t *testing.T) {
	m, _ := newTestManager(t, newFakeRuntime())

	assert.False(t, m.WasReused("mcp-a"))
	m.markReused("mcp-b")
	m.markReused("mcp-a")
	m.markReused("mcp-a")

	assert.True(t, m.WasReused("mcp-a"))
	assert.True(t, m.WasReused("mcp-b"))
	assert.Equal(t, []string{"mcp-a", "mcp-b"}, m.ReusedContainers())
}
