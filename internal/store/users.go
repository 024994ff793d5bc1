package store

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// CreateUser inserts a new user. A duplicate username returns ErrConflict.
func (s *Store) CreateUser(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = NewID()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.execBuilder(ctx, s.builder.
		Insert("users").
		Columns("id", "username", "created_at").
		Values(user.ID, user.Username, user.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create user %q: %w", user.Username, wrapConflict(err))
	}
	return nil
}

// GetUser fetches one user by id.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	var user User
	err := s.doGet(ctx, &user, s.builder.
		Select("*").
		From("users").
		Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByUsername fetches one user by username. The identity middleware
// resolves the trusted header through this lookup.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	err := s.doGet(ctx, &user, s.builder.
		Select("*").
		From("users").
		Where(sq.Eq{"username": username}))
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsers returns all users ordered by username.
func (s *Store) ListUsers(ctx context.Context) ([]*User, error) {
	var users []*User
	err := s.doSelect(ctx, &users, s.builder.
		Select("*").
		From("users").
		OrderBy("username"))
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// DeleteUser removes a user. Their permission overrides go with them via
// schema cascade; tools are untouched.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.execBuilder(ctx, s.builder.
		Delete("users").
		Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("failed to delete user %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
