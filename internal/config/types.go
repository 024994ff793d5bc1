package config

// Config is the top-level configuration structure for stevedore.
type Config struct {
	Gateway GatewayConfig `yaml:"gateway"`
	Docker  DockerConfig  `yaml:"docker"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
}

const (
	// MCPTransportStreamableHTTP is the streamable HTTP transport.
	MCPTransportStreamableHTTP = "streamable-http"
	// MCPTransportSSE is the Server-Sent Events transport.
	MCPTransportSSE = "sse"
	// MCPTransportStdio is the standard I/O transport.
	MCPTransportStdio = "stdio"
)

// GatewayConfig defines the configuration for the MCP gateway endpoint.
type GatewayConfig struct {
	Host             string `yaml:"host,omitempty"`             // Host to bind to (default: localhost)
	Port             int    `yaml:"port,omitempty"`             // Port for the gateway endpoint (default: 8000)
	Path             string `yaml:"path,omitempty"`             // HTTP path the MCP endpoint is served under (default: /mcp)
	Transport        string `yaml:"transport,omitempty"`        // Transport to use (default: streamable-http)
	IdentityHeader   string `yaml:"identityHeader,omitempty"`   // Trusted header carrying the authenticated username (default: X-Forwarded-User)
	MountConcurrency int    `yaml:"mountConcurrency,omitempty"` // Max servers reconciled in parallel (default: 4)
}

// DockerConfig defines how stevedore talks to the container engine and how
// server images are tagged and based.
type DockerConfig struct {
	Host           string `yaml:"host,omitempty"`           // Engine endpoint (default: unix:///var/run/docker.sock)
	TimeoutSeconds int    `yaml:"timeoutSeconds,omitempty"` // Per-operation timeout (default: 300)
	Namespace      string `yaml:"namespace,omitempty"`      // Image tag namespace prefix (default: stevedore)
	PythonImage    string `yaml:"pythonImage,omitempty"`    // Base image for uvx runtime servers (default: python:3.11-slim)
	NodeImage      string `yaml:"nodeImage,omitempty"`      // Base image for npx runtime servers (default: node:20-slim)
	LogTail        int    `yaml:"logTail,omitempty"`        // Default log tail length (default: 100)
}

// StorageConfig defines where stevedore keeps its state on disk.
type StorageConfig struct {
	DataDir string `yaml:"dataDir,omitempty"` // Directory holding the database and secret files (default: .data)
}

// LoggingConfig defines log output behavior.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // debug, info, warn, error (default: info)
}
