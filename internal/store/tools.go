package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// UpsertTool creates or updates a tool by its catalog-unique name.
// Description, schema, capability, and owning server follow the discovered
// state; the enabled flag is an admin decision and survives rediscovery.
func (s *Store) UpsertTool(ctx context.Context, tool *Tool) error {
	if tool.ID == "" {
		tool.ID = NewID()
	}
	if tool.CreatedAt.IsZero() {
		tool.CreatedAt = time.Now().UTC()
	}
	if tool.InputSchema == "" {
		tool.InputSchema = "{}"
	}

	existing, err := s.GetToolByName(ctx, tool.Name)
	if err == nil {
		tool.ID = existing.ID
		tool.IsEnabled = existing.IsEnabled
		tool.CreatedAt = existing.CreatedAt
		_, err = s.execBuilder(ctx, s.builder.
			Update("tools").
			Set("server_id", tool.ServerID).
			Set("description", tool.Description).
			Set("input_schema", tool.InputSchema).
			Set("capability", tool.Capability).
			Where(sq.Eq{"id": existing.ID}))
		if err != nil {
			return fmt.Errorf("failed to update tool %q: %w", tool.Name, err)
		}
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to look up tool %q: %w", tool.Name, err)
	}

	_, err = s.execBuilder(ctx, s.builder.
		Insert("tools").
		Columns("id", "server_id", "name", "description", "input_schema",
			"capability", "is_enabled", "created_at").
		Values(tool.ID, tool.ServerID, tool.Name, tool.Description,
			tool.InputSchema, tool.Capability, tool.IsEnabled, tool.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create tool %q: %w", tool.Name, wrapConflict(err))
	}
	return nil
}

// GetToolByName fetches one tool by its unique name.
func (s *Store) GetToolByName(ctx context.Context, name string) (*Tool, error) {
	var tool Tool
	err := s.doGet(ctx, &tool, s.builder.
		Select("*").
		From("tools").
		Where(sq.Eq{"name": name}))
	if err != nil {
		return nil, err
	}
	return &tool, nil
}

// ListTools returns every tool in the catalog ordered by name.
func (s *Store) ListTools(ctx context.Context) ([]*Tool, error) {
	var tools []*Tool
	err := s.doSelect(ctx, &tools, s.builder.
		Select("*").
		From("tools").
		OrderBy("name"))
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	return tools, nil
}

// ListToolsByServer returns the tools owned by one server.
func (s *Store) ListToolsByServer(ctx context.Context, serverID string) ([]*Tool, error) {
	var tools []*Tool
	err := s.doSelect(ctx, &tools, s.builder.
		Select("*").
		From("tools").
		Where(sq.Eq{"server_id": serverID}).
		OrderBy("name"))
	if err != nil {
		return nil, fmt.Errorf("failed to list tools for server %s: %w", serverID, err)
	}
	return tools, nil
}

// SetToolEnabled flips the admin enable/disable flag for a tool name.
func (s *Store) SetToolEnabled(ctx context.Context, name string, enabled bool) error {
	res, err := s.execBuilder(ctx, s.builder.
		Update("tools").
		Set("is_enabled", enabled).
		Where(sq.Eq{"name": name}))
	if err != nil {
		return fmt.Errorf("failed to set enabled for tool %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTool removes one tool. Permission overrides referencing it go with
// it via schema cascade; users are untouched.
func (s *Store) DeleteTool(ctx context.Context, id string) error {
	res, err := s.execBuilder(ctx, s.builder.
		Delete("tools").
		Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("failed to delete tool %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DisabledToolNames returns the names of all globally disabled tools. The
// tool filter consults this set on every tools/list request.
func (s *Store) DisabledToolNames(ctx context.Context) ([]string, error) {
	var names []string
	err := s.doSelect(ctx, &names, s.builder.
		Select("name").
		From("tools").
		Where(sq.Eq{"is_enabled": false}))
	if err != nil {
		return nil, fmt.Errorf("failed to list disabled tools: %w", err)
	}
	return names, nil
}
