// Package app wires the stevedore subsystems into a runnable gateway
// process and owns its lifecycle.
//
// NewApplication performs the bootstrap sequence: logging, configuration,
// store, docker engine client, secret manager, container manager, gateway
// router and server. Run then syncs the declarative server definitions,
// starts the configured transport, watches the definition directory for
// changes and blocks until SIGINT or SIGTERM. SIGHUP re-syncs definitions
// and runs another mount pass without restarting.
//
// Declarative definitions are YAML files under {configDir}/servers/, one
// server per file, upserted into the store by name. Docker-runtime
// definitions name a prebuilt image and become mountable immediately; npx
// and uvx definitions go through the build pipeline first.
package app
