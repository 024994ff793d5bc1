package store

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// CreateServer inserts a new server row. ID and CreatedAt are assigned when
// empty. A duplicate name returns ErrConflict.
func (s *Store) CreateServer(ctx context.Context, server *Server) error {
	if server.ID == "" {
		server.ID = NewID()
	}
	if server.CreatedAt.IsZero() {
		server.CreatedAt = time.Now().UTC()
	}
	if server.BuildStatus == "" {
		server.BuildStatus = BuildStatusPending
	}

	_, err := s.execBuilder(ctx, s.builder.
		Insert("servers").
		Columns("id", "name", "github_url", "description", "runtime",
			"install_command", "start_command", "env_vars", "is_active",
			"build_status", "build_error", "image_tag", "created_at").
		Values(server.ID, server.Name, server.GithubURL, server.Description,
			server.Runtime, server.InstallCommand, server.StartCommand,
			server.Env, server.IsActive, server.BuildStatus,
			server.BuildError, server.ImageTag, server.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create server %q: %w", server.Name, wrapConflict(err))
	}
	return nil
}

// GetServer fetches one server by id.
func (s *Store) GetServer(ctx context.Context, id string) (*Server, error) {
	var server Server
	err := s.doGet(ctx, &server, s.builder.
		Select("*").
		From("servers").
		Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	return &server, nil
}

// GetServerByName fetches one server by its unique display name.
func (s *Store) GetServerByName(ctx context.Context, name string) (*Server, error) {
	var server Server
	err := s.doGet(ctx, &server, s.builder.
		Select("*").
		From("servers").
		Where(sq.Eq{"name": name}))
	if err != nil {
		return nil, err
	}
	return &server, nil
}

// ListServers returns all servers ordered by name.
func (s *Store) ListServers(ctx context.Context) ([]*Server, error) {
	var servers []*Server
	err := s.doSelect(ctx, &servers, s.builder.
		Select("*").
		From("servers").
		OrderBy("name"))
	if err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}
	return servers, nil
}

// ListBuiltServers returns all active servers whose image build has
// completed. These are the servers the mount pass reconciles.
func (s *Store) ListBuiltServers(ctx context.Context) ([]*Server, error) {
	var servers []*Server
	err := s.doSelect(ctx, &servers, s.builder.
		Select("*").
		From("servers").
		Where(sq.Eq{"build_status": BuildStatusBuilt, "is_active": true}).
		OrderBy("name"))
	if err != nil {
		return nil, fmt.Errorf("failed to list built servers: %w", err)
	}
	return servers, nil
}

// UpdateServer rewrites the mutable fields of a server row.
func (s *Store) UpdateServer(ctx context.Context, server *Server) error {
	res, err := s.execBuilder(ctx, s.builder.
		Update("servers").
		Set("name", server.Name).
		Set("github_url", server.GithubURL).
		Set("description", server.Description).
		Set("runtime", server.Runtime).
		Set("install_command", server.InstallCommand).
		Set("start_command", server.StartCommand).
		Set("env_vars", server.Env).
		Set("is_active", server.IsActive).
		Where(sq.Eq{"id": server.ID}))
	if err != nil {
		return fmt.Errorf("failed to update server %s: %w", server.ID, wrapConflict(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteServer removes a server. Its tools, secret files, and any permission
// overrides on those tools go with it via schema cascades.
func (s *Store) DeleteServer(ctx context.Context, id string) error {
	res, err := s.execBuilder(ctx, s.builder.
		Delete("servers").
		Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("failed to delete server %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetBuildStatus updates only the build status of a server. Used when a
// build starts (pending -> building).
func (s *Store) SetBuildStatus(ctx context.Context, id, status string) error {
	res, err := s.execBuilder(ctx, s.builder.
		Update("servers").
		Set("build_status", status).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("failed to set build status for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetBuildResult records the outcome of a build: built with its image tag,
// or failed with the build error text.
func (s *Store) SetBuildResult(ctx context.Context, id, status, buildError, imageTag string) error {
	res, err := s.execBuilder(ctx, s.builder.
		Update("servers").
		Set("build_status", status).
		Set("build_error", buildError).
		Set("image_tag", imageTag).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("failed to set build result for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
