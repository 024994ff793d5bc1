package cmd

import (
	"errors"
	"fmt"

	"stevedore/internal/store"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// userCmd groups user management. Users exist only as permission subjects;
// authentication happens in the fronting proxy.
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users referenced by permission overrides",
	Long: `Users are identities the gateway trusts from the identity header set by
the fronting authenticator. A user must exist here before per-user
permission overrides can reference it; requests for unknown usernames are
treated as anonymous.`,
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Register a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserAdd,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered users",
	Args:  cobra.NoArgs,
	RunE:  runUserList,
}

var userRemoveCmd = &cobra.Command{
	Use:   "rm <username>",
	Short: "Remove a user and its permission overrides",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserRemove,
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	application, err := newCLIApp()
	if err != nil {
		return err
	}
	defer application.Close()

	ctx := cmd.Context()
	user := &store.User{Username: args[0]}
	if err := application.Store().CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("user %q already exists", args[0])
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	fmt.Printf("Added user %s (%s)\n", user.Username, user.ID)
	return nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	application, err := newCLIApp()
	if err != nil {
		return err
	}
	defer application.Close()

	ctx := cmd.Context()
	users, err := application.Store().ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}
	if len(users) == 0 {
		fmt.Println(text.FgYellow.Sprint("No users registered"))
		return nil
	}

	t := newTable()
	t.AppendHeader([]interface{}{"USERNAME", "ID", "CREATED"})
	for _, user := range users {
		t.AppendRow([]interface{}{user.Username, user.ID, user.CreatedAt.Format("2006-01-02")})
	}
	t.Render()
	return nil
}

func runUserRemove(cmd *cobra.Command, args []string) error {
	application, err := newCLIApp()
	if err != nil {
		return err
	}
	defer application.Close()

	ctx := cmd.Context()
	st := application.Store()

	user, err := resolveUser(ctx, st, args[0])
	if err != nil {
		return err
	}
	if err := st.DeleteUser(ctx, user.ID); err != nil {
		return fmt.Errorf("failed to remove user: %w", err)
	}
	fmt.Printf("Removed user %s\n", user.Username)
	return nil
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userRemoveCmd)
}
