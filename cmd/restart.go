package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// restartCmd restarts a server's container in place.
var restartCmd = &cobra.Command{
	Use:   "restart <name>",
	Short: "Restart a server's container",
	Long: `Restarts the named server's container. This is a light-weight recovery
for a wedged server; it does not rebuild the image or re-register tools.
If the container does not exist yet, start the gateway instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runRestart,
}

func runRestart(cmd *cobra.Command, args []string) error {
	application, err := newCLIApp()
	if err != nil {
		return err
	}
	defer application.Close()

	ctx := cmd.Context()
	server, err := resolveServer(ctx, application.Store(), args[0])
	if err != nil {
		return err
	}

	if !application.Manager().Restart(ctx, server.ID) {
		return fmt.Errorf("failed to restart container for %s", server.Name)
	}
	fmt.Printf("Restarted container for %s\n", server.Name)
	return nil
}

func init() {
	rootCmd.AddCommand(restartCmd)
}
