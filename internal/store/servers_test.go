package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGetServer(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	server := &Server{
		Name:           "github",
		GithubURL:      "https://github.com/example/mcp-github",
		Description:    "GitHub tools",
		Runtime:        RuntimeNPX,
		InstallCommand: "npx -y @example/mcp-github",
		StartCommand:   "npx @example/mcp-github",
		Env: EnvVars{
			{Key: "GITHUB_TOKEN", Value: "tok", Required: true},
			{Key: "GITHUB_ORG", Value: "example"},
		},
		IsActive: true,
	}
	require.NoError(t, s.CreateServer(ctx, server))
	require.Len(t, server.ID, 8, "id should be assigned on create")

	got, err := s.GetServer(ctx, server.ID)
	require.NoError(t, err)
	assert.Equal(t, "github", got.Name)
	assert.Equal(t, RuntimeNPX, got.Runtime)
	assert.Equal(t, BuildStatusPending, got.BuildStatus, "new servers default to pending")
	require.Len(t, got.Env, 2, "env bindings should round-trip")
	assert.Equal(t, "GITHUB_TOKEN", got.Env[0].Key)
	assert.True(t, got.Env[0].Required)
	assert.False(t, got.Env[1].Required)
}

func TestCreateServerDuplicateName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createTestServer(t, s, "dupe")

	err := s.CreateServer(ctx, &Server{Name: "dupe", Runtime: RuntimeUVX})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict), "duplicate name should map to ErrConflict, got %v", err)
}

func TestGetServerNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetServer(context.Background(), "missing1")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = s.GetServerByName(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListBuiltServers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	built := createTestServer(t, s, "built-one")

	pending := &Server{Name: "pending-one", Runtime: RuntimeUVX, IsActive: true}
	require.NoError(t, s.CreateServer(ctx, pending))

	inactive := &Server{Name: "inactive-one", Runtime: RuntimeNPX, BuildStatus: BuildStatusBuilt, IsActive: false}
	require.NoError(t, s.CreateServer(ctx, inactive))

	servers, err := s.ListBuiltServers(ctx)
	require.NoError(t, err)
	require.Len(t, servers, 1, "only active built servers are mountable")
	assert.Equal(t, built.ID, servers[0].ID)
}

func TestBuildStatusTransitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	server := &Server{Name: "transitions", Runtime: RuntimeUVX, IsActive: true}
	require.NoError(t, s.CreateServer(ctx, server))

	require.NoError(t, s.SetBuildStatus(ctx, server.ID, BuildStatusBuilding))
	got, err := s.GetServer(ctx, server.ID)
	require.NoError(t, err)
	assert.Equal(t, BuildStatusBuilding, got.BuildStatus)

	require.NoError(t, s.SetBuildResult(ctx, server.ID, BuildStatusBuilt, "", "stevedore/server-"+server.ID))
	got, err = s.GetServer(ctx, server.ID)
	require.NoError(t, err)
	assert.Equal(t, BuildStatusBuilt, got.BuildStatus)
	assert.Equal(t, "stevedore/server-"+server.ID, got.ImageTag)
	assert.Empty(t, got.BuildError)

	require.NoError(t, s.SetBuildResult(ctx, server.ID, BuildStatusFailed, "npm install exploded", ""))
	got, err = s.GetServer(ctx, server.ID)
	require.NoError(t, err)
	assert.Equal(t, BuildStatusFailed, got.BuildStatus)
	assert.Equal(t, "npm install exploded", got.BuildError)
}

func TestUpdateServer(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	server := createTestServer(t, s, "before")
	server.Name = "after"
	server.Description = "updated"
	server.Env = EnvVars{{Key: "K", Value: "V"}}
	require.NoError(t, s.UpdateServer(ctx, server))

	got, err := s.GetServer(ctx, server.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Name)
	assert.Equal(t, "updated", got.Description)
	require.Len(t, got.Env, 1)

	err = s.UpdateServer(ctx, &Server{ID: "missing1", Name: "x", Runtime: RuntimeNPX})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDeleteServerNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.DeleteServer(context.Background(), "missing1")
	assert.True(t, errors.Is(err, ErrNotFound))
}
