package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Runtime kinds for managed servers.
const (
	// RuntimeNPX runs node package servers via npx.
	RuntimeNPX = "npx"
	// RuntimeUVX runs python tool servers via uvx.
	RuntimeUVX = "uvx"
	// RuntimeDocker runs servers from a prebuilt container image.
	RuntimeDocker = "docker"
)

// Build statuses for a server image.
const (
	BuildStatusPending  = "pending"
	BuildStatusBuilding = "building"
	BuildStatusBuilt    = "built"
	BuildStatusFailed   = "failed"
)

// Permission decisions.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// Tool capabilities, derived from the tool's annotations at discovery time.
const (
	CapabilityRead  = "read"
	CapabilityWrite = "write"
)

// NewID returns a short stable identifier: the first 8 hex characters of a
// random UUID. Collisions are guarded by primary key constraints.
func NewID() string {
	return uuid.New().String()[:8]
}

// EnvVar is a single environment-variable binding declared for a server.
type EnvVar struct {
	Key      string `json:"key" yaml:"key"`
	Value    string `json:"value" yaml:"value"`
	Required bool   `json:"required,omitempty" yaml:"required,omitempty"`
}

// EnvVars is stored as a JSON array in a single column.
type EnvVars []EnvVar

// Value implements driver.Valuer.
func (e EnvVars) Value() (driver.Value, error) {
	if len(e) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal env vars: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (e *EnvVars) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*e = nil
		return nil
	case string:
		if v == "" {
			*e = nil
			return nil
		}
		return json.Unmarshal([]byte(v), e)
	case []byte:
		if len(v) == 0 {
			*e = nil
			return nil
		}
		return json.Unmarshal(v, e)
	default:
		return fmt.Errorf("cannot scan env vars from %T", src)
	}
}

// Server is one managed tool-provider backed by a container.
type Server struct {
	ID             string    `db:"id"`
	Name           string    `db:"name"`
	GithubURL      string    `db:"github_url"`
	Description    string    `db:"description"`
	Runtime        string    `db:"runtime"`
	InstallCommand string    `db:"install_command"`
	StartCommand   string    `db:"start_command"`
	Env            EnvVars   `db:"env_vars"`
	IsActive       bool      `db:"is_active"`
	BuildStatus    string    `db:"build_status"`
	BuildError     string    `db:"build_error"`
	ImageTag       string    `db:"image_tag"`
	CreatedAt      time.Time `db:"created_at"`
}

// Tool is one capability exposed by a server. Name is unique across the
// merged catalog. Capability is informational (read vs write), derived from
// the tool's annotations at discovery time and never enforced.
type Tool struct {
	ID          string    `db:"id"`
	ServerID    string    `db:"server_id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	InputSchema string    `db:"input_schema"`
	Capability  string    `db:"capability"`
	IsEnabled   bool      `db:"is_enabled"`
	CreatedAt   time.Time `db:"created_at"`
}

// User is an identity referenced by permission overrides. Credentials live
// in the fronting authenticator, not here.
type User struct {
	ID        string    `db:"id"`
	Username  string    `db:"username"`
	CreatedAt time.Time `db:"created_at"`
}

// PermissionOverride is one user's explicit allow/deny decision for one
// tool. At most one row exists per (user, tool) pair.
type PermissionOverride struct {
	ID        int64     `db:"id"`
	UserID    string    `db:"user_id"`
	ToolID    string    `db:"tool_id"`
	Decision  string    `db:"decision"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// SecretFile describes one staged secret file owned by a server. StoredName
// is the randomized on-disk name; OriginalName is what the container sees
// under /secrets/.
type SecretFile struct {
	ID           string    `db:"id"`
	ServerID     string    `db:"server_id"`
	OriginalName string    `db:"original_name"`
	StoredName   string    `db:"stored_name"`
	EnvVar       string    `db:"env_var"`
	IsActive     bool      `db:"is_active"`
	CreatedAt    time.Time `db:"created_at"`
}
