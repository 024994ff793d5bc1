package cmd

import (
	"fmt"

	"stevedore/internal/store"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// permCmd groups the per-user permission subcommands.
var permCmd = &cobra.Command{
	Use:   "perm",
	Short: "Manage per-user tool permissions",
	Long: `Every enabled tool is visible to every user by default. 'perm deny'
hides one tool from one user; 'perm allow' records an explicit allow and
'perm clear' removes the override, both restoring the default. A globally
disabled tool stays hidden regardless of per-user overrides.`,
}

var permAllowCmd = &cobra.Command{
	Use:   "allow <user> <tool>",
	Short: "Explicitly allow a tool for a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPermSet(cmd, args[0], args[1], store.DecisionAllow)
	},
}

var permDenyCmd = &cobra.Command{
	Use:   "deny <user> <tool>",
	Short: "Deny a tool for a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPermSet(cmd, args[0], args[1], store.DecisionDeny)
	},
}

var permClearCmd = &cobra.Command{
	Use:   "clear <user> <tool>",
	Short: "Remove a user's override for a tool",
	Args:  cobra.ExactArgs(2),
	RunE:  runPermClear,
}

var permListCmd = &cobra.Command{
	Use:   "list <user>",
	Short: "List a user's permission overrides",
	Args:  cobra.ExactArgs(1),
	RunE:  runPermList,
}

func runPermSet(cmd *cobra.Command, username, toolName, decision string) error {
	application, err := newCLIApp()
	if err != nil {
		return err
	}
	defer application.Close()

	ctx := cmd.Context()
	st := application.Store()

	user, err := resolveUser(ctx, st, username)
	if err != nil {
		return err
	}
	tool, err := resolveTool(ctx, st, toolName)
	if err != nil {
		return err
	}

	if err := st.SetPermission(ctx, user.ID, tool.ID, decision); err != nil {
		return fmt.Errorf("failed to set permission: %w", err)
	}
	fmt.Printf("Set %s on %s for %s\n", decision, tool.Name, user.Username)
	return nil
}

func runPermClear(cmd *cobra.Command, args []string) error {
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
	tool, err := resolveTool(ctx, st, args[1])
	if err != nil {
		return err
	}

	if err := st.DeletePermission(ctx, user.ID, tool.ID); err != nil {
		return fmt.Errorf("failed to clear permission: %w", err)
	}
	fmt.Printf("Cleared override on %s for %s\n", tool.Name, user.Username)
	return nil
}

func runPermList(cmd *cobra.Command, args []string) error {
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

	perms, err := st.ListPermissionsByUser(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("failed to list permissions: %w", err)
	}
	if len(perms) == 0 {
		fmt.Println(text.FgYellow.Sprintf("No overrides for %s, all enabled tools are visible", user.Username))
		return nil
	}

	// The override rows carry tool IDs; show names where the tool still
	// exists and fall back to the raw ID for orphans.
	toolNames := make(map[string]string)
	tools, err := st.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tools: %w", err)
	}
	for _, tool := range tools {
		toolNames[tool.ID] = tool.Name
	}

	t := newTable()
	t.AppendHeader([]interface{}{"TOOL", "DECISION", "UPDATED"})
	for _, p := range perms {
		name, ok := toolNames[p.ToolID]
		if !ok {
			name = p.ToolID
		}
		decision := p.Decision
		if decision == store.DecisionDeny {
			decision = text.FgRed.Sprint(decision)
		} else {
			decision = text.FgGreen.Sprint(decision)
		}
		t.AppendRow([]interface{}{name, decision, p.UpdatedAt.Format("2006-01-02 15:04")})
	}
	t.Render()
	return nil
}

func init() {
	rootCmd.AddCommand(permCmd)
	permCmd.AddCommand(permAllowCmd)
	permCmd.AddCommand(permDenyCmd)
	permCmd.AddCommand(permClearCmd)
	permCmd.AddCommand(permListCmd)
}
