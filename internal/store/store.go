package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"stevedore/pkg/logging"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert violates a uniqueness constraint.
// The pre-existing row is never modified by the failed attempt.
var ErrConflict = errors.New("already exists")

// Store provides SQLite-backed persistence for servers, tools, users,
// permission overrides, and secret-file descriptors. All methods take a
// context and use short-lived statements; no transaction is ever held across
// a call into the container runtime.
type Store struct {
	db      *sqlx.DB
	builder sq.StatementBuilderType
}

// builder is satisfied by all squirrel statement builders.
type builder interface {
	ToSql() (string, []interface{}, error)
}

// Open opens (or creates) the database at the given path and ensures the
// schema exists. Parent directories are created if needed. WAL mode and
// foreign-key enforcement are applied to every pooled connection via DSN
// pragmas.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &Store{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logging.Info("Store", "Database initialized at %s", path)
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// createSchema creates the database tables if they don't exist.
func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS servers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			github_url TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			runtime TEXT NOT NULL CHECK (runtime IN ('npx', 'uvx', 'docker')),
			install_command TEXT NOT NULL DEFAULT '',
			start_command TEXT NOT NULL DEFAULT '',
			env_vars TEXT NOT NULL DEFAULT '[]',
			is_active INTEGER NOT NULL DEFAULT 1,
			build_status TEXT NOT NULL DEFAULT 'pending'
				CHECK (build_status IN ('pending', 'building', 'built', 'failed')),
			build_error TEXT NOT NULL DEFAULT '',
			image_tag TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS tools (
			id TEXT PRIMARY KEY,
			server_id TEXT NOT NULL REFERENCES servers(id) ON DELETE CASCADE,
			name TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			input_schema TEXT NOT NULL DEFAULT '{}',
			capability TEXT NOT NULL DEFAULT '',
			is_enabled INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tools_server_id ON tools(server_id);

		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS permission_overrides (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			tool_id TEXT NOT NULL REFERENCES tools(id) ON DELETE CASCADE,
			decision TEXT NOT NULL CHECK (decision IN ('allow', 'deny')),
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE (user_id, tool_id)
		);

		CREATE INDEX IF NOT EXISTS idx_permission_overrides_user_id ON permission_overrides(user_id);
		CREATE INDEX IF NOT EXISTS idx_permission_overrides_tool_id ON permission_overrides(tool_id);

		CREATE TABLE IF NOT EXISTS secret_files (
			id TEXT PRIMARY KEY,
			server_id TEXT NOT NULL REFERENCES servers(id) ON DELETE CASCADE,
			original_name TEXT NOT NULL,
			stored_name TEXT NOT NULL,
			env_var TEXT NOT NULL DEFAULT '',
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_secret_files_server_id ON secret_files(server_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// doSelect builds and runs a query, scanning all rows into dest.
func (s *Store) doSelect(ctx context.Context, dest interface{}, b builder) error {
	sqlString, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	return sqlx.SelectContext(ctx, s.db, dest, sqlString, args...)
}

// doGet builds and runs a query, scanning a single row into dest.
// sql.ErrNoRows is mapped to ErrNotFound.
func (s *Store) doGet(ctx context.Context, dest interface{}, b builder) error {
	sqlString, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	if err := sqlx.GetContext(ctx, s.db, dest, sqlString, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// execBuilder builds and executes a statement.
func (s *Store) execBuilder(ctx context.Context, b builder) (sql.Result, error) {
	sqlString, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build statement: %w", err)
	}
	return s.db.ExecContext(ctx, sqlString, args...)
}

// wrapConflict maps uniqueness violations onto ErrConflict so callers can
// branch with errors.Is without depending on driver error types.
func wrapConflict(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
