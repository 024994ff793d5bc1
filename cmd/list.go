package cmd

import (
	"fmt"

	"stevedore/internal/store"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// listCmd prints the registered servers as a table.
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered servers",
	Long: `Lists every registered server with its runtime, build status and tool
count. Build failures show the recorded error with 'logs <server>' holding
the container side of the story.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func runList(cmd *cobra.Command, args []string) error {
	application, err := newCLIApp()
	if err != nil {
		return err
	}
	defer application.Close()

	ctx := cmd.Context()
	st := application.Store()

	servers, err := st.ListServers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list servers: %w", err)
	}
	if len(servers) == 0 {
		fmt.Println(text.FgYellow.Sprint("No servers registered. Add one with 'stevedore add'."))
		return nil
	}

	t := newTable()
	t.AppendHeader([]interface{}{"NAME", "RUNTIME", "STATUS", "ACTIVE", "TOOLS", "IMAGE"})
	for _, server := range servers {
		tools, err := st.ListToolsByServer(ctx, server.ID)
		if err != nil {
			return fmt.Errorf("failed to list tools for %s: %w", server.Name, err)
		}
		t.AppendRow([]interface{}{
			server.Name,
			server.Runtime,
			buildStatusCell(server),
			yesNo(server.IsActive),
			len(tools),
			truncate(server.ImageTag, 40),
		})
	}
	t.Render()
	return nil
}

func buildStatusCell(server *store.Server) string {
	switch server.BuildStatus {
	case store.BuildStatusBuilt:
		return text.FgGreen.Sprint(server.BuildStatus)
	case store.BuildStatusFailed:
		return text.FgRed.Sprint(server.BuildStatus)
	case store.BuildStatusBuilding:
		return text.FgYellow.Sprint(server.BuildStatus)
	default:
		return server.BuildStatus
	}
}

func init() {
	rootCmd.AddCommand(listCmd)
}
