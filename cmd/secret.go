package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"stevedore/internal/secrets"
	"stevedore/internal/store"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var secretEnvVar string

// secretCmd groups secret file management. Files are staged on the host
// with restrictive permissions and bind-mounted read-only into the
// server's container under /secrets/.
var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage secret files mounted into servers",
	Long: `Secret files carry credentials a server needs at runtime without putting
them into environment variables or the image. Each file is staged under
the data directory with owner-only permissions and appears inside the
container at /secrets/<original-name>, read-only. With --env the file's
container path is also exported as an environment variable.

Changes take effect when the server's container is next created.`,
}

var secretAddCmd = &cobra.Command{
	Use:   "add <server> <file>",
	Short: "Stage a secret file for a server",
	Args:  cobra.ExactArgs(2),
	RunE:  runSecretAdd,
}

var secretListCmd = &cobra.Command{
	Use:   "list <server>",
	Short: "List a server's secret files",
	Args:  cobra.ExactArgs(1),
	RunE:  runSecretList,
}

var secretRemoveCmd = &cobra.Command{
	Use:   "rm <server> <name>",
	Short: "Remove a secret file by its original name",
	Args:  cobra.ExactArgs(2),
	RunE:  runSecretRemove,
}

func runSecretAdd(cmd *cobra.Command, args []string) error {
	application, err := newCLIApp()
	if err != nil {
		return err
	}
	defer application.Close()

	ctx := cmd.Context()
	st := application.Store()

	server, err := resolveServer(ctx, st, args[0])
	if err != nil {
		return err
	}

	f, err := os.Open(args[1])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[1], err)
	}
	defer f.Close()

	originalName := filepath.Base(args[1])
	storedName, err := application.Secrets().Store(server.ID, originalName, f)
	if err != nil {
		return fmt.Errorf("failed to stage secret: %w", err)
	}

	record := &store.SecretFile{
		ServerID:     server.ID,
		OriginalName: originalName,
		StoredName:   storedName,
		EnvVar:       secretEnvVar,
		IsActive:     true,
	}
	if err := st.CreateSecretFile(ctx, record); err != nil {
		// Do not leave an orphaned file behind on a failed insert.
		_ = application.Secrets().Remove(server.ID, storedName)
		return fmt.Errorf("failed to record secret: %w", err)
	}

	fmt.Printf("Staged %s for %s (container path %s)\n", originalName, server.Name, secrets.ContainerPath(originalName))
	return nil
}

func runSecretList(cmd *cobra.Command, args []string) error {
	application, err := newCLIApp()
	if err != nil {
		return err
	}
	defer application.Close()

	ctx := cmd.Context()
	st := application.Store()

	server, err := resolveServer(ctx, st, args[0])
	if err != nil {
		return err
	}

	files, err := st.ListSecretFiles(ctx, server.ID, false)
	if err != nil {
		return fmt.Errorf("failed to list secrets: %w", err)
	}
	if len(files) == 0 {
		fmt.Println(text.FgYellow.Sprintf("No secret files for %s", server.Name))
		return nil
	}

	t := newTable()
	t.AppendHeader([]interface{}{"NAME", "CONTAINER PATH", "ENV VAR", "ACTIVE"})
	for _, file := range files {
		t.AppendRow([]interface{}{
			file.OriginalName,
			secrets.ContainerPath(file.OriginalName),
			file.EnvVar,
			yesNo(file.IsActive),
		})
	}
	t.Render()
	return nil
}

func runSecretRemove(cmd *cobra.Command, args []string) error {
	application, err := newCLIApp()
	if err != nil {
		return err
	}
	defer application.Close()

	ctx := cmd.Context()
	st := application.Store()

	server, err := resolveServer(ctx, st, args[0])
	if err != nil {
		return err
	}

	files, err := st.ListSecretFiles(ctx, server.ID, false)
	if err != nil {
		return fmt.Errorf("failed to list secrets: %w", err)
	}
	for _, file := range files {
		if file.OriginalName != args[1] {
			continue
		}
		if err := application.Secrets().Remove(server.ID, file.StoredName); err != nil {
			fmt.Printf("Warning: could not delete staged file: %v\n", err)
		}
		if err := st.DeleteSecretFile(ctx, file.ID); err != nil {
			return fmt.Errorf("failed to remove secret record: %w", err)
		}
		fmt.Printf("Removed secret %s from %s\n", file.OriginalName, server.Name)
		return nil
	}
	return fmt.Errorf("no secret named %q for server %s", args[1], server.Name)
}

func init() {
	rootCmd.AddCommand(secretCmd)
	secretCmd.AddCommand(secretAddCmd)
	secretCmd.AddCommand(secretListCmd)
	secretCmd.AddCommand(secretRemoveCmd)

	secretAddCmd.Flags().StringVar(&secretEnvVar, "env", "", "Also export the container path as this environment variable")
}
