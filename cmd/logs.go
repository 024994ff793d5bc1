package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var logsTail int

// logsCmd prints a server's container logs.
var logsCmd = &cobra.Command{
	Use:   "logs <name>",
	Short: "Show a server's container logs",
	Long: `Prints the log tail of the named server's container. This is the first
stop when a server fails to mount or its tools error; build failures are
recorded on the server itself and show up in 'list'.`,
	Args: cobra.ExactArgs(1),
	RunE: runLogs,
}

func runLogs(cmd *cobra.Command, args []string) error {
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

	if server.BuildError != "" {
		fmt.Println(text.FgRed.Sprintf("Last build error: %s", server.BuildError))
	}

	out := application.Manager().ErrorLogs(ctx, server.ID, logsTail)
	if out == "" {
		fmt.Println(text.FgYellow.Sprintf("No logs for %s, its container may not exist", server.Name))
		return nil
	}
	fmt.Print(out)
	return nil
}

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().IntVar(&logsTail, "tail", 0, "Number of log lines (0 uses the configured default)")
}
