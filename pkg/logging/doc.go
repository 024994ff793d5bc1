// Package logging provides structured logging for stevedore with unified
// log handling and level filtering.
//
// The package is built on Go's standard slog package. Every log entry carries
// a subsystem identifier so components can be filtered and categorized in
// aggregated output.
//
// # Usage
//
//	import "stevedore/pkg/logging"
//
//	// Initialize with Info level logging to stdout
//	logging.InitForCLI(logging.LevelInfo, os.Stdout)
//
//	// Log messages
//	logging.Info("App", "Application starting up")
//	logging.Debug("ConfigLoader", "Loaded configuration from %s", configPath)
//	logging.Warn("Gateway", "Server %s mounted with no tools", name)
//	logging.Error("Store", err, "Failed to open database")
//
// # Subsystem Organization
//
// Logs are organized by subsystem:
//
//   - **App**: Application bootstrap and lifecycle
//   - **ConfigLoader**: Configuration loading
//   - **Engine**: Container runtime operations
//   - **ContainerManager**: Container lifecycle and reconciliation
//   - **Gateway**: MCP router, mounting, and request serving
//   - **ToolFilter**: Per-request tool catalog filtering
//   - **StdioClient**: Per-server MCP client processes
//   - **Lifespan**: Gateway start/stop state machine
//   - **Store**: Database access
//   - **Secrets**: Secret file staging
//   - **ServerSync**: Declarative server-definition sync
//   - **DefinitionWatcher**: Definition directory watching
//
// # Thread Safety
//
// The logging system is safe for concurrent use from multiple goroutines.
package logging
