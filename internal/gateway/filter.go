package gateway

import (
	"context"

	"stevedore/internal/store"
	"stevedore/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
)

const filterSubsystem = "ToolFilter"

// newToolFilter builds the per-request tools/list filter. Globally disabled
// tools are hidden from everyone; an authenticated user additionally loses
// the tools their overrides deny. Absence of an override means allow.
//
// Filtering is advisory and fails open: any store error returns the
// upstream list unfiltered, because a broken tools/list is worse than a
// temporarily unfiltered one.
func newToolFilter(st *store.Store) func(ctx context.Context, tools []mcp.Tool) []mcp.Tool {
	return func(ctx context.Context, tools []mcp.Tool) []mcp.Tool {
		disabled, err := st.DisabledToolNames(ctx)
		if err != nil {
			logging.Warn(filterSubsystem, "Disabled-tool lookup failed, serving unfiltered list: %v", err)
			return tools
		}

		blocked := make(map[string]bool, len(disabled))
		for _, name := range disabled {
			blocked[name] = true
		}

		if user := UserFrom(ctx); user != nil {
			denied, err := st.DeniedToolNames(ctx, user.ID)
			if err != nil {
				logging.Warn(filterSubsystem, "Deny-set lookup for %s failed, serving unfiltered list: %v", user.Username, err)
				return tools
			}
			for _, name := range denied {
				blocked[name] = true
			}
		}

		if len(blocked) == 0 {
			return tools
		}

		filtered := make([]mcp.Tool, 0, len(tools))
		for _, tool := range tools {
			if name, ok := toolName(tool); ok && blocked[name] {
				continue
			}
			filtered = append(filtered, tool)
		}
		return filtered
	}
}

// toolName reports a tool's name. Nameless tools are a first-class case:
// the filter never drops what it cannot identify.
func toolName(tool mcp.Tool) (string, bool) {
	if tool.Name == "" {
		return "", false
	}
	return tool.Name, true
}
