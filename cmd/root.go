package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
)

var (
	rootConfigPath string
	rootDebug      bool
)

// rootCmd is the base command for the stevedore application.
var rootCmd = &cobra.Command{
	Use:   "stevedore",
	Short: "Run third-party MCP tool servers in containers behind one gateway",
	Long: `stevedore provisions MCP tool servers as isolated Docker containers and
exposes their tools through a single MCP gateway endpoint.

Servers are registered with 'add' or declared as YAML files under the
configuration directory, built into container images with 'build', and
mounted onto the gateway when 'serve' runs. Tool access is controlled
globally (enable/disable) and per user (allow/deny overrides).`,
	// SilenceUsage prevents Cobra from printing the usage message on errors
	// that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command. Called from the main
// package to inject the build-time version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application, called by
// main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "stevedore version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitCodeError)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootConfigPath, "config-path", "", "Configuration directory (default is $HOME/.config/stevedore)")
	rootCmd.PersistentFlags().BoolVar(&rootDebug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}
