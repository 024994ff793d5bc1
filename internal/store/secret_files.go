package store

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// CreateSecretFile records one staged secret file for a server.
func (s *Store) CreateSecretFile(ctx context.Context, f *SecretFile) error {
	if f.ID == "" {
		f.ID = NewID()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}

	_, err := s.execBuilder(ctx, s.builder.
		Insert("secret_files").
		Columns("id", "server_id", "original_name", "stored_name", "env_var",
			"is_active", "created_at").
		Values(f.ID, f.ServerID, f.OriginalName, f.StoredName, f.EnvVar,
			f.IsActive, f.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create secret file record: %w", err)
	}
	return nil
}

// ListSecretFiles returns all secret-file records for a server. When
// activeOnly is set, inactive descriptors are skipped; those are the ones
// excluded from container mounts.
func (s *Store) ListSecretFiles(ctx context.Context, serverID string, activeOnly bool) ([]*SecretFile, error) {
	q := s.builder.
		Select("*").
		From("secret_files").
		Where(sq.Eq{"server_id": serverID}).
		OrderBy("original_name")
	if activeOnly {
		q = q.Where(sq.Eq{"is_active": true})
	}

	var files []*SecretFile
	if err := s.doSelect(ctx, &files, q); err != nil {
		return nil, fmt.Errorf("failed to list secret files for server %s: %w", serverID, err)
	}
	return files, nil
}

// DeleteSecretFile removes one secret-file record.
func (s *Store) DeleteSecretFile(ctx context.Context, id string) error {
	res, err := s.execBuilder(ctx, s.builder.
		Delete("secret_files").
		Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("failed to delete secret file %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
