// Package config provides configuration management for stevedore.
//
// Configuration is loaded from a single directory containing:
//   - config.yaml (main configuration file)
//   - servers/ (declarative server definitions, one YAML file per server)
//
// Default location: ~/.config/stevedore
// Custom location: specified via the --config-path flag
//
// Loading is layered: built-in defaults first, then config.yaml, then the
// environment surface (DOCKER_HOST, DOCKER_TIMEOUT, MCP_PYTHON_IMAGE,
// MCP_NODE_IMAGE, DATA_DIR, WEB_HOST, WEB_PORT, MCP_PATH, LOG_LEVEL).
// A missing config.yaml is not an error; defaults plus environment apply.
package config
