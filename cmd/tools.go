package cmd

import (
	"fmt"

	"stevedore/internal/store"
	pkgstrings "stevedore/pkg/strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var toolsServer string

// toolsCmd groups the tool catalog subcommands.
var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Inspect and control the merged tool catalog",
	Long: `The gateway merges every mounted server's tools into one catalog under
prefixed names (server_tool). 'tools list' shows the catalog; 'tools
disable' removes a tool from every client's view until it is enabled
again. Disabling wins over any per-user allow.`,
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List discovered tools",
	Args:  cobra.NoArgs,
	RunE:  runToolsList,
}

var toolsEnableCmd = &cobra.Command{
	Use:   "enable <tool>",
	Short: "Enable a tool for all users",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runToolsSetEnabled(cmd, args[0], true)
	},
}

var toolsDisableCmd = &cobra.Command{
	Use:   "disable <tool>",
	Short: "Disable a tool for all users",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runToolsSetEnabled(cmd, args[0], false)
	},
}

func runToolsList(cmd *cobra.Command, args []string) error {
	application, err := newCLIApp()
	if err != nil {
		return err
	}
	defer application.Close()

	ctx := cmd.Context()
	st := application.Store()

	var tools []*store.Tool
	if toolsServer != "" {
		server, err := resolveServer(ctx, st, toolsServer)
		if err != nil {
			return err
		}
		tools, err = st.ListToolsByServer(ctx, server.ID)
		if err != nil {
			return fmt.Errorf("failed to list tools: %w", err)
		}
	} else {
		tools, err = st.ListTools(ctx)
		if err != nil {
			return fmt.Errorf("failed to list tools: %w", err)
		}
	}

	if len(tools) == 0 {
		fmt.Println(text.FgYellow.Sprint("No tools discovered yet. Tools appear after a server mounts."))
		return nil
	}

	t := newTable()
	t.AppendHeader([]interface{}{"NAME", "CAPABILITY", "ENABLED", "DESCRIPTION"})
	for _, tool := range tools {
		t.AppendRow([]interface{}{
			tool.Name,
			tool.Capability,
			yesNo(tool.IsEnabled),
			truncate(tool.Description, pkgstrings.DefaultDescriptionMaxLen),
		})
	}
	t.Render()
	return nil
}

func runToolsSetEnabled(cmd *cobra.Command, name string, enabled bool) error {
	application, err := newCLIApp()
	if err != nil {
		return err
	}
	defer application.Close()

	ctx := cmd.Context()
	st := application.Store()

	if _, err := resolveTool(ctx, st, name); err != nil {
		return err
	}
	if err := st.SetToolEnabled(ctx, name, enabled); err != nil {
		return fmt.Errorf("failed to update tool %q: %w", name, err)
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Printf("Tool %s %s\n", name, state)
	return nil
}

func init() {
	rootCmd.AddCommand(toolsCmd)
	toolsCmd.AddCommand(toolsListCmd)
	toolsCmd.AddCommand(toolsEnableCmd)
	toolsCmd.AddCommand(toolsDisableCmd)

	toolsListCmd.Flags().StringVar(&toolsServer, "server", "", "Only show tools from this server")
}
