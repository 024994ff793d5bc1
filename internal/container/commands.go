package container

import (
	"context"
	"slices"
	"strings"

	"stevedore/internal/secrets"
	"stevedore/internal/store"
	"stevedore/pkg/logging"

	shellwords "github.com/mattn/go-shellwords"
)

// destructiveFragments blocks install commands that could damage the
// build container or anything mounted into it.
var destructiveFragments = []string{"rm -rf", "dd if=", "> /dev/"}

// ParseInstallCommand normalizes a server's install command for execution
// inside the image build. Commands containing destructive fragments are
// rejected with an empty result.
//
// For npx servers the command is rewritten into a global npm install so
// the package is baked into the image: "npx [-y] pkg" becomes
// "npm install -g --no-audit pkg", a bare package name likewise, and an
// existing "npm install" gains --no-audit. uvx and docker servers pass
// through untouched.
func (m *Manager) ParseInstallCommand(server *store.Server) string {
	cmd := strings.TrimSpace(server.InstallCommand)
	if cmd == "" {
		return ""
	}

	lower := strings.ToLower(cmd)
	for _, fragment := range destructiveFragments {
		if strings.Contains(lower, fragment) {
			logging.Warn(managerSubsystem, "Blocked potentially destructive install command: %s", cmd)
			return ""
		}
	}

	parts := tokenize(cmd)
	if len(parts) == 0 {
		return ""
	}

	if server.Runtime == store.RuntimeNPX {
		switch {
		case parts[0] == "npx":
			pkg := firstNonFlag(parts[1:])
			if pkg == "" {
				return ""
			}
			return "npm install -g --no-audit " + pkg
		case len(parts) >= 2 && parts[0] == "npm" && parts[1] == "install":
			if !strings.Contains(cmd, "--no-audit") {
				return strings.Replace(cmd, "npm install", "npm install --no-audit", 1)
			}
			return cmd
		default:
			// Assume a bare package name
			return "npm install -g --no-audit " + parts[0]
		}
	}

	return cmd
}

// ParseStartCommand tokenizes a server's start command into the argument
// vector handed to the container. npx and uvx servers get "stdio"
// appended when missing since their wrappers default to other transports;
// a "python -m module" form is normalized to python3.
func (m *Manager) ParseStartCommand(server *store.Server) []string {
	cmd := strings.TrimSpace(server.StartCommand)
	if cmd == "" {
		return nil
	}

	parts := tokenize(cmd)
	if len(parts) == 0 {
		return nil
	}

	switch server.Runtime {
	case store.RuntimeNPX, store.RuntimeUVX:
		if !slices.Contains(parts, "stdio") {
			parts = append(parts, "stdio")
		}
		return parts
	}

	if len(parts) >= 2 && parts[0] == "python" && parts[1] == "-m" {
		parts[0] = "python3"
	}
	return parts
}

// EnvVars flattens a server's environment bindings plus the derived
// bindings from its active secret files, where the target variable points
// at the file's in-container path. Never nil, never an error: a store
// failure degrades to the plain bindings.
func (m *Manager) EnvVars(ctx context.Context, server *store.Server) map[string]string {
	env := make(map[string]string)
	for _, binding := range server.Env {
		if binding.Value != "" {
			env[binding.Key] = binding.Value
		}
	}

	files, err := m.store.ListSecretFiles(ctx, server.ID, true)
	if err != nil {
		logging.Warn(managerSubsystem, "Could not list secret files for server %s: %v", server.Name, err)
		return env
	}
	for _, f := range files {
		if f.EnvVar != "" {
			env[f.EnvVar] = secrets.ContainerPath(f.OriginalName)
		}
	}
	return env
}

// tokenize splits a command shell-style, falling back to whitespace
// splitting when the quoting is unparsable.
func tokenize(cmd string) []string {
	parts, err := shellwords.Parse(cmd)
	if err != nil {
		logging.Warn(managerSubsystem, "Failed to parse command %q, falling back to whitespace split: %v", cmd, err)
		return strings.Fields(cmd)
	}
	return parts
}

func firstNonFlag(parts []string) string {
	for _, p := range parts {
		if !strings.HasPrefix(p, "-") {
			return p
		}
	}
	return ""
}
