package cmd

import (
	"errors"
	"fmt"
	"strings"

	"stevedore/internal/store"

	"github.com/spf13/cobra"
)

var (
	addRuntime     string
	addDescription string
	addGithubURL   string
	addImage       string
	addInstallCmd  string
	addStartCmd    string
	addEnv         []string
)

// addCmd registers a server without going through declarative files.
var addCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a server",
	Long: `Registers a server in the store. npx and uvx servers need a start command
and are built into an image with 'build' before they can mount; docker
servers reference a prebuilt image and are mountable immediately.

Environment variables are passed as --env KEY=VALUE and are injected into
the server's container. Values holding credentials can instead be staged
as secret files with 'secret add'.`,
	Example: `  stevedore add github --runtime npx \
      --start-command "npx -y @modelcontextprotocol/server-github" \
      --env GITHUB_TOKEN=ghp_xxx

  stevedore add fetch --runtime docker --image mcp/fetch:latest`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

func runAdd(cmd *cobra.Command, args []string) error {
	name := args[0]

	switch addRuntime {
	case store.RuntimeNPX, store.RuntimeUVX:
		if strings.TrimSpace(addStartCmd) == "" {
			return fmt.Errorf("runtime %q requires --start-command", addRuntime)
		}
	case store.RuntimeDocker:
		if strings.TrimSpace(addImage) == "" {
			return errors.New("runtime \"docker\" requires --image")
		}
	default:
		return fmt.Errorf("unknown runtime %q (want npx, uvx or docker)", addRuntime)
	}

	env, err := parseEnvFlags(addEnv)
	if err != nil {
		return err
	}

	application, err := newCLIApp()
	if err != nil {
		return err
	}
	defer application.Close()

	ctx := cmd.Context()
	server := &store.Server{
		Name:           name,
		Description:    addDescription,
		GithubURL:      addGithubURL,
		Runtime:        addRuntime,
		InstallCommand: addInstallCmd,
		StartCommand:   addStartCmd,
		Env:            env,
		IsActive:       true,
	}
	if addRuntime == store.RuntimeDocker {
		server.BuildStatus = store.BuildStatusBuilt
		server.ImageTag = addImage
	}

	if err := application.Store().CreateServer(ctx, server); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("server %q already exists", name)
		}
		return fmt.Errorf("failed to create server: %w", err)
	}

	fmt.Printf("Registered server %s (%s)\n", server.Name, server.Runtime)
	if server.BuildStatus == store.BuildStatusBuilt {
		fmt.Println("Server is ready to mount, restart the gateway or send it SIGHUP")
	} else {
		fmt.Printf("Build it with: stevedore build %s\n", server.Name)
	}
	return nil
}

// parseEnvFlags turns repeated KEY=VALUE flags into env bindings.
func parseEnvFlags(pairs []string) (store.EnvVars, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(store.EnvVars, 0, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid --env %q, want KEY=VALUE", pair)
		}
		env = append(env, store.EnvVar{Key: key, Value: value})
	}
	return env, nil
}

func init() {
	rootCmd.AddCommand(addCmd)

	addCmd.Flags().StringVar(&addRuntime, "runtime", store.RuntimeNPX, "Runtime kind: npx, uvx or docker")
	addCmd.Flags().StringVar(&addDescription, "description", "", "Human readable description")
	addCmd.Flags().StringVar(&addGithubURL, "github-url", "", "Source repository URL (informational)")
	addCmd.Flags().StringVar(&addImage, "image", "", "Prebuilt image reference (docker runtime)")
	addCmd.Flags().StringVar(&addInstallCmd, "install-command", "", "Command baked into the image build (npx/uvx)")
	addCmd.Flags().StringVar(&addStartCmd, "start-command", "", "Command the container runs to serve MCP on stdio")
	addCmd.Flags().StringArrayVar(&addEnv, "env", nil, "Environment variable KEY=VALUE (repeatable)")
}
