package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var removeKeepContainer bool

// removeCmd deletes a server and everything hanging off it.
var removeCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a server",
	Long: `Removes a server from the store together with its discovered tools,
permission overrides and staged secret files. The server's container is
stopped and deleted unless --keep-container is set. A running gateway
notices the removal on its next mount pass (SIGHUP or restart).`,
	Args: cobra.ExactArgs(1),
	RunE: runRemove,
}

func runRemove(cmd *cobra.Command, args []string) error {
	application, err := newCLIApp()
	if err != nil {
		return err
	}
	defer application.Close()

	ctx := cmd.Context()
	st := application.Store()
	mgr := application.Manager()

	server, err := resolveServer(ctx, st, args[0])
	if err != nil {
		return err
	}

	if !removeKeepContainer {
		if err := mgr.CleanupExisting(ctx, mgr.ContainerName(server.ID)); err != nil {
			fmt.Printf("Warning: container cleanup failed: %v\n", err)
		}
	}

	if err := application.Secrets().RemoveAll(server.ID); err != nil {
		fmt.Printf("Warning: secret cleanup failed: %v\n", err)
	}

	// Tools, overrides and secret rows go with the server via cascades.
	if err := st.DeleteServer(ctx, server.ID); err != nil {
		return fmt.Errorf("failed to remove server: %w", err)
	}

	fmt.Printf("Removed server %s\n", server.Name)
	return nil
}

func init() {
	rootCmd.AddCommand(removeCmd)

	removeCmd.Flags().BoolVar(&removeKeepContainer, "keep-container", false, "Leave the server's container in place")
}
