package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"stevedore/internal/app"
	"stevedore/internal/store"
	pkgstrings "stevedore/pkg/strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// newCLIApp wires the application for one-shot CLI commands. Logging runs
// quieter than under serve so tables and status lines stay readable.
func newCLIApp() (*app.Application, error) {
	level := "warn"
	if rootDebug {
		level = "debug"
	}
	application, err := app.NewApplication(app.Options{ConfigDir: rootConfigPath, LogLevel: level})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}
	return application, nil
}

// newTable creates a table writer with the standard styling.
func newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	return t
}

func resolveServer(ctx context.Context, st *store.Store, name string) (*store.Server, error) {
	server, err := st.GetServerByName(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("server %q not found", name)
		}
		return nil, fmt.Errorf("failed to look up server %q: %w", name, err)
	}
	return server, nil
}

func resolveTool(ctx context.Context, st *store.Store, name string) (*store.Tool, error) {
	tool, err := st.GetToolByName(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("tool %q not found", name)
		}
		return nil, fmt.Errorf("failed to look up tool %q: %w", name, err)
	}
	return tool, nil
}

func resolveUser(ctx context.Context, st *store.Store, username string) (*store.User, error) {
	user, err := st.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("user %q not found", username)
		}
		return nil, fmt.Errorf("failed to look up user %q: %w", username, err)
	}
	return user, nil
}

// truncate shortens long free-text fields for table cells and flattens
// embedded newlines.
func truncate(s string, max int) string {
	return pkgstrings.TruncateDescription(s, max)
}

// yesNo renders a boolean as a colored cell value.
func yesNo(v bool) string {
	if v {
		return text.FgGreen.Sprint("yes")
	}
	return text.FgRed.Sprint("no")
}
