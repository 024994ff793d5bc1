package store

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// CreatePermission inserts a new override row. A second insert for the same
// (user, tool) pair fails with ErrConflict and leaves the first row intact.
func (s *Store) CreatePermission(ctx context.Context, p *PermissionOverride) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err := s.execBuilder(ctx, s.builder.
		Insert("permission_overrides").
		Columns("user_id", "tool_id", "decision", "created_at", "updated_at").
		Values(p.UserID, p.ToolID, p.Decision, p.CreatedAt, p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create permission override: %w", wrapConflict(err))
	}
	return nil
}

// SetPermission is the toggle operation: it updates the existing override
// for (user, tool) or creates one when none exists.
func (s *Store) SetPermission(ctx context.Context, userID, toolID, decision string) error {
	res, err := s.execBuilder(ctx, s.builder.
		Update("permission_overrides").
		Set("decision", decision).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"user_id": userID, "tool_id": toolID}))
	if err != nil {
		return fmt.Errorf("failed to update permission override: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	return s.CreatePermission(ctx, &PermissionOverride{
		UserID:   userID,
		ToolID:   toolID,
		Decision: decision,
	})
}

// GetPermission fetches the override for one (user, tool) pair.
func (s *Store) GetPermission(ctx context.Context, userID, toolID string) (*PermissionOverride, error) {
	var p PermissionOverride
	err := s.doGet(ctx, &p, s.builder.
		Select("*").
		From("permission_overrides").
		Where(sq.Eq{"user_id": userID, "tool_id": toolID}))
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// DeletePermission removes the override for one (user, tool) pair,
// returning the pair to the implicit default (allow).
func (s *Store) DeletePermission(ctx context.Context, userID, toolID string) error {
	res, err := s.execBuilder(ctx, s.builder.
		Delete("permission_overrides").
		Where(sq.Eq{"user_id": userID, "tool_id": toolID}))
	if err != nil {
		return fmt.Errorf("failed to delete permission override: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPermissionsByUser returns all overrides for one user.
func (s *Store) ListPermissionsByUser(ctx context.Context, userID string) ([]*PermissionOverride, error) {
	var overrides []*PermissionOverride
	err := s.doSelect(ctx, &overrides, s.builder.
		Select("*").
		From("permission_overrides").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("tool_id"))
	if err != nil {
		return nil, fmt.Errorf("failed to list permission overrides: %w", err)
	}
	return overrides, nil
}

// DeniedToolNames returns the names of tools this user has an explicit deny
// override for. Tools without an override are implicitly allowed.
func (s *Store) DeniedToolNames(ctx context.Context, userID string) ([]string, error) {
	var names []string
	err := s.doSelect(ctx, &names, s.builder.
		Select("tools.name").
		From("permission_overrides").
		Join("tools ON tools.id = permission_overrides.tool_id").
		Where(sq.Eq{
			"permission_overrides.user_id":  userID,
			"permission_overrides.decision": DecisionDeny,
		}))
	if err != nil {
		return nil, fmt.Errorf("failed to list denied tools for user %s: %w", userID, err)
	}
	return names, nil
}
