package config

const (
	// DefaultGatewayPort is the port the MCP endpoint listens on.
	DefaultGatewayPort = 8000

	// DefaultMCPPath is the HTTP path the MCP endpoint is served under.
	DefaultMCPPath = "/mcp"

	// DefaultIdentityHeader is the trusted header set by the fronting
	// authenticator carrying the authenticated username.
	DefaultIdentityHeader = "X-Forwarded-User"

	// DefaultDockerHost is the engine endpoint used when none is configured.
	DefaultDockerHost = "unix:///var/run/docker.sock"

	// DefaultDockerTimeoutSeconds bounds every engine operation.
	DefaultDockerTimeoutSeconds = 300

	// DefaultImageNamespace prefixes every server image tag.
	DefaultImageNamespace = "stevedore"

	// DefaultPythonImage is the base image for uvx runtime servers.
	DefaultPythonImage = "python:3.11-slim"

	// DefaultNodeImage is the base image for npx runtime servers.
	DefaultNodeImage = "node:20-slim"

	// DefaultLogTail is the number of log lines fetched when no tail length
	// is given.
	DefaultLogTail = 100

	// DefaultMountConcurrency bounds how many servers are reconciled in
	// parallel during a mount pass.
	DefaultMountConcurrency = 4

	// DefaultDataDir holds the database and secret files.
	DefaultDataDir = ".data"
)

// GetDefaultConfig returns the default configuration for stevedore.
func GetDefaultConfig() Config {
	return Config{
		Gateway: GatewayConfig{
			Host:             "localhost",
			Port:             DefaultGatewayPort,
			Path:             DefaultMCPPath,
			Transport:        MCPTransportStreamableHTTP,
			IdentityHeader:   DefaultIdentityHeader,
			MountConcurrency: DefaultMountConcurrency,
		},
		Docker: DockerConfig{
			Host:           DefaultDockerHost,
			TimeoutSeconds: DefaultDockerTimeoutSeconds,
			Namespace:      DefaultImageNamespace,
			PythonImage:    DefaultPythonImage,
			NodeImage:      DefaultNodeImage,
			LogTail:        DefaultLogTail,
		},
		Storage: StorageConfig{
			DataDir: DefaultDataDir,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
