package container

import (
	"context"
	"errors"
	"sync"
	"testing"

	"stevedore/internal/engine"
	"stevedore/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMounter implements Mounter and lets each AddServer call run an
// assertion hook at mount time.
type fakeMounter struct {
	mu      sync.Mutex
	added   []string
	specs   map[string]StdioSpec
	removed []string

	failFor  map[string]error
	toolsFor map[string]int
	onAdd    func(serverName string, spec StdioSpec)
}

func newFakeMounter() *fakeMounter {
	return &fakeMounter{
		specs:    make(map[string]StdioSpec),
		failFor:  make(map[string]error),
		toolsFor: make(map[string]int),
	}
}

func (f *fakeMounter) AddServer(ctx context.Context, server *store.Server, spec StdioSpec) ([]*store.Tool, error) {
	f.mu.Lock()
	f.added = append(f.added, server.Name)
	f.specs[server.Name] = spec
	f.mu.Unlock()

	if f.onAdd != nil {
		f.onAdd(server.Name, spec)
	}
	if err := f.failFor[server.Name]; err != nil {
		return nil, err
	}

	n := f.toolsFor[server.Name]
	tools := make([]*store.Tool, n)
	for i := range tools {
		tools[i] = &store.Tool{ServerID: server.ID, Name: server.Name + "_tool"}
	}
	return tools, nil
}

func (f *fakeMounter) RemoveServer(serverName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, serverName)
}

func resultFor(t *testing.T, results []MountResult, name string) MountResult {
	t.Helper()
	for _, r := range results {
		if r.ServerName == name {
			return r
		}
	}
	t.Fatalf("no mount result for server %q", name)
	return MountResult{}
}

func TestMountBuiltServersMountsAll(t *testing.T) {
	rt := newFakeRuntime()
	m, st := newTestManager(t, rt)
	builtServer(t, st, "alpha", store.RuntimeNPX)
	builtServer(t, st, "beta", store.RuntimeUVX)

	mounter := newFakeMounter()
	mounter.toolsFor["alpha"] = 3
	mounter.toolsFor["beta"] = 1

	results, err := m.MountBuiltServers(context.Background(), mounter)
	require.NoError(t, err)
	require.Len(t, results, 2)

	alpha := resultFor(t, results, "alpha")
	assert.NoError(t, alpha.Err)
	assert.Equal(t, 3, alpha.Tools)
	assert.False(t, alpha.Reused)

	beta := resultFor(t, results, "beta")
	assert.NoError(t, beta.Err)
	assert.Equal(t, 1, beta.Tools)
}

func TestMountBuiltServersIsolatesFailures(t *testing.T) {
	rt := newFakeRuntime()
	m, st := newTestManager(t, rt)
	builtServer(t, st, "broken", store.RuntimeNPX)
	builtServer(t, st, "fine", store.RuntimeNPX)

	mounter := newFakeMounter()
	mounter.failFor["broken"] = errors.New("initialize timed out")
	mounter.toolsFor["fine"] = 2

	results, err := m.MountBuiltServers(context.Background(), mounter)
	require.NoError(t, err)
	require.Len(t, results, 2)

	broken := resultFor(t, results, "broken")
	require.Error(t, broken.Err)
	assert.Contains(t, broken.Err.Error(), "broken")

	fine := resultFor(t, results, "fine")
	assert.NoError(t, fine.Err)
	assert.Equal(t, 2, fine.Tools)
	assert.Contains(t, mounter.added, "fine")
}

func TestMountBuiltServersSkipsUnbuilt(t *testing.T) {
	rt := newFakeRuntime()
	m, st := newTestManager(t, rt)
	ctx := context.Background()

	pending := &store.Server{Name: "pending", Runtime: store.RuntimeNPX, StartCommand: "npx x", IsActive: true}
	require.NoError(t, st.CreateServer(ctx, pending))

	inactive := &store.Server{Name: "inactive", Runtime: store.RuntimeNPX, StartCommand: "npx x", IsActive: false}
	require.NoError(t, st.CreateServer(ctx, inactive))
	require.NoError(t, st.SetBuildResult(ctx, inactive.ID, store.BuildStatusBuilt, "", "tag"))

	results, err := m.MountBuiltServers(ctx, newFakeMounter())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMountReusesHealthyContainer(t *testing.T) {
	rt := newFakeRuntime()
	m, st := newTestManager(t, rt)
	server := builtServer(t, st, "steady", store.RuntimeNPX)
	name := m.ContainerName(server.ID)
	rt.containers[name] = &engine.Container{Running: true, Image: server.ImageTag}

	mounter := newFakeMounter()
	mounter.onAdd = func(serverName string, spec StdioSpec) {
		// The healthy container must still be there at registration time
		info, err := rt.Inspect(context.Background(), name)
		require.NoError(t, err)
		assert.True(t, info.Running)
		assert.Equal(t, SpecExisting, spec.Kind)
	}

	results, err := m.MountBuiltServers(context.Background(), mounter)
	require.NoError(t, err)

	res := resultFor(t, results, "steady")
	assert.True(t, res.Reused)
	assert.True(t, m.WasReused(name))
	assert.NotContains(t, rt.callLog(), "stop "+name+" 10")
}

func TestMountCleansUpStaleContainerFirst(t *testing.T) {
	rt := newFakeRuntime()
	m, st := newTestManager(t, rt)
	server := builtServer(t, st, "stale", store.RuntimeNPX)
	name := m.ContainerName(server.ID)
	rt.containers[name] = &engine.Container{Running: true, Image: "stevedore/server-old"}

	mounter := newFakeMounter()
	mounter.onAdd = func(serverName string, spec StdioSpec) {
		// Cleanup happens strictly before registration
		_, err := rt.Inspect(context.Background(), name)
		assert.True(t, engine.IsNotFound(err), "stale container should be gone before AddServer")
		assert.Equal(t, SpecNew, spec.Kind)
	}

	results, err := m.MountBuiltServers(context.Background(), mounter)
	require.NoError(t, err)

	res := resultFor(t, results, "stale")
	assert.NoError(t, res.Err)
	assert.False(t, res.Reused)
	assert.False(t, m.WasReused(name))
}

func TestMountReapsContainerAfterFailedRegistration(t *testing.T) {
	rt := newFakeRuntime()
	m, st := newTestManager(t, rt)
	server := builtServer(t, st, "crashy", store.RuntimeNPX)
	name := m.ContainerName(server.ID)

	mounter := newFakeMounter()
	mounter.failFor["crashy"] = errors.New("proto error")
	mounter.onAdd = func(serverName string, spec StdioSpec) {
		// Simulate the stdio subprocess dying right after creation
		rt.mu.Lock()
		rt.containers[name] = &engine.Container{Running: false, Status: "exited", ExitCode: 1}
		rt.mu.Unlock()
	}

	results, err := m.MountBuiltServers(context.Background(), mounter)
	require.NoError(t, err)
	require.Error(t, resultFor(t, results, "crashy").Err)

	_, exists := rt.containers[name]
	assert.False(t, exists, "exited container should be reaped after a failed mount")
}

func TestMountBuiltServersStoreFailure(t *testing.T) {
	rt := newFakeRuntime()
	m, st := newTestManager(t, rt)
	require.NoError(t, st.Close())

	_, err := m.MountBuiltServers(context.Background(), newFakeMounter())
	assert.Error(t, err)
}

func TestUnmountServer(t *testing.T) {
	rt := newFakeRuntime()
	m, st := newTestManager(t, rt)
	server := builtServer(t, st, "leaving", store.RuntimeNPX)
	name := m.ContainerName(server.ID)
	rt.containers[name] = &engine.Container{Running: true, Image: server.ImageTag}

	mounter := newFakeMounter()
	m.UnmountServer(context.Background(), mounter, server)

	assert.Equal(t, []string{"leaving"}, mounter.removed)
	_, exists := rt.containers[name]
	assert.False(t, exists)
}
