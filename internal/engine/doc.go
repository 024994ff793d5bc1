// Package engine provides the container engine abstraction for stevedore.
//
// The Runtime interface covers the operations the gateway needs from a
// container engine: daemon liveness, container inspect/create/stop/remove/
// restart, log retrieval, and image pull/build. DockerClient implements it
// against the Docker Engine API.
//
// # Error Handling
//
// Absence of a container or image is the one classification callers branch
// on; IsNotFound recognizes it through error wrapping. Pull and build
// failures are detected even when they arrive inside the daemon's JSON
// progress stream after a successful HTTP response.
//
// # Timeouts
//
// Every operation runs under a per-operation timeout derived from the
// configured engine timeout, so a wedged daemon cannot hang a
// reconciliation pass indefinitely.
package engine
