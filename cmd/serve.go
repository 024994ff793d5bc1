package cmd

import (
	"context"
	"fmt"

	"stevedore/internal/app"
	"stevedore/internal/config"

	"github.com/spf13/cobra"
)

var (
	serveTransport string
	serveHost      string
	servePort      int
)

// serveCmd runs the gateway process until it is signalled to stop.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the stevedore gateway",
	Long: `Starts the MCP gateway: declared servers are synced into the store, every
built server is health-checked and mounted, and the merged tool catalog is
served on the configured transport.

The process runs until SIGINT or SIGTERM. SIGHUP re-reads the declarative
server definitions and runs another mount pass without a restart; editing
a definition file while serving has the same effect.

Transports:
  streamable-http   HTTP endpoint at the configured path (default)
  sse               Server-Sent Events endpoints at /sse and /message
  stdio             speak MCP on stdin/stdout (single anonymous client)`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveTransport != "" {
		switch serveTransport {
		case config.MCPTransportStreamableHTTP, config.MCPTransportSSE, config.MCPTransportStdio:
		default:
			return fmt.Errorf("unknown transport %q", serveTransport)
		}
	}

	level := ""
	if rootDebug {
		level = "debug"
	}
	application, err := app.NewApplication(app.Options{ConfigDir: rootConfigPath, LogLevel: level})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	// Flag overrides beat both the file and the environment.
	cfg := application.Config()
	if serveTransport != "" {
		cfg.Gateway.Transport = serveTransport
	}
	if serveHost != "" {
		cfg.Gateway.Host = serveHost
	}
	if servePort != 0 {
		cfg.Gateway.Port = servePort
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveTransport, "transport", "", "MCP transport: streamable-http, sse or stdio")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (overrides configuration)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides configuration)")
}
