package engine

import (
	"context"
)

// Runtime defines the interface for container engine operations
type Runtime interface {
	// Ping reports whether the engine daemon is reachable
	Ping(ctx context.Context) bool

	// Inspect looks up a container by name or ID. Absence is reported
	// through an error recognized by IsNotFound.
	Inspect(ctx context.Context, name string) (*Container, error)

	// CreateAndStart creates a container from the spec and starts it,
	// returning the container ID
	CreateAndStart(ctx context.Context, spec ContainerSpec) (string, error)

	// Stop gracefully stops a container, escalating after timeoutSeconds
	Stop(ctx context.Context, name string, timeoutSeconds int) error

	// Remove deletes a container
	Remove(ctx context.Context, name string, force bool) error

	// Restart restarts a container in place
	Restart(ctx context.Context, name string) error

	// Logs returns the decoded tail of a container's output
	Logs(ctx context.Context, name string, tail int) (string, error)

	// ImageExists reports whether an image is present locally
	ImageExists(ctx context.Context, ref string) bool

	// PullImage pulls an image from its registry
	PullImage(ctx context.Context, ref string) error

	// BuildImage builds an image from an in-memory Dockerfile
	BuildImage(ctx context.Context, ref string, dockerfile []byte) error

	// Close releases the underlying engine connection
	Close() error
}

// Container holds the subset of inspect state the gateway acts on
type Container struct {
	ID       string // Full container ID
	Name     string // Container name without the leading slash
	Running  bool   // Whether the container is currently running
	Image    string // Image reference the container was created from
	Status   string // Human-readable state (running, exited, ...)
	ExitCode int    // Exit code of the last run, 0 while running
}

// ContainerSpec holds configuration for creating a container
type ContainerSpec struct {
	Name     string            // Container name
	Image    string            // Image reference
	Cmd      []string          // Command to run
	Env      map[string]string // Environment variables
	Binds    []string          // Volume binds (host:container:ro)
	Memory   int64             // Memory limit in bytes, 0 for unlimited
	NanoCPUs int64             // CPU quota in units of 1e-9 CPUs
}
