package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"stevedore/internal/store"
	"stevedore/pkg/logging"

	"gopkg.in/yaml.v3"
)

const syncSubsystem = "ServerSync"

// serverDecl is one declarative server definition file. The field names
// mirror the store model; runtime decides which of the optional fields
// matter (docker wants image, npx/uvx want startCommand).
type serverDecl struct {
	Name           string         `yaml:"name"`
	Description    string         `yaml:"description,omitempty"`
	GithubURL      string         `yaml:"githubURL,omitempty"`
	Runtime        string         `yaml:"runtime"`
	Image          string         `yaml:"image,omitempty"`
	InstallCommand string         `yaml:"installCommand,omitempty"`
	StartCommand   string         `yaml:"startCommand,omitempty"`
	Env            []store.EnvVar `yaml:"env,omitempty"`
}

func (d *serverDecl) validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("name is required")
	}
	switch d.Runtime {
	case store.RuntimeNPX, store.RuntimeUVX:
		if strings.TrimSpace(d.StartCommand) == "" {
			return fmt.Errorf("runtime %q requires startCommand", d.Runtime)
		}
	case store.RuntimeDocker:
		if strings.TrimSpace(d.Image) == "" {
			return errors.New("runtime \"docker\" requires image")
		}
	default:
		return fmt.Errorf("unknown runtime %q", d.Runtime)
	}
	return nil
}

// serversDir is where declarative definitions live relative to the config
// directory.
func serversDir(configDir string) string {
	return filepath.Join(configDir, "servers")
}

// SyncDeclaredServers upserts every servers/*.yaml definition into the
// store, keyed by server name. Docker declarations carry a ready image and
// are marked built immediately; the other runtimes keep whatever build state
// they already have. Malformed files are logged and skipped, a missing
// servers directory means nothing is declared. Returns the number of
// definitions applied.
func SyncDeclaredServers(ctx context.Context, st *store.Store, configDir string) (int, error) {
	dir := serversDir(configDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read server definitions from %s: %w", dir, err)
	}

	synced := 0
	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		decl, err := loadServerDecl(path)
		if err != nil {
			logging.Warn(syncSubsystem, "Skipping %s: %v", entry.Name(), err)
			continue
		}
		if err := applyServerDecl(ctx, st, decl); err != nil {
			logging.Error(syncSubsystem, err, "Failed to apply %s", entry.Name())
			continue
		}
		synced++
	}
	return synced, nil
}

func loadServerDecl(path string) (*serverDecl, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var decl serverDecl
	if err := yaml.Unmarshal(data, &decl); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if err := decl.validate(); err != nil {
		return nil, err
	}
	return &decl, nil
}

// applyServerDecl creates or updates the named server. Updates overwrite the
// declared fields but leave build state alone for source-built runtimes, so
// a definition edit does not silently discard a finished image.
func applyServerDecl(ctx context.Context, st *store.Store, decl *serverDecl) error {
	existing, err := st.GetServerByName(ctx, decl.Name)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if existing == nil {
		server := &store.Server{
			Name:           decl.Name,
			Description:    decl.Description,
			GithubURL:      decl.GithubURL,
			Runtime:        decl.Runtime,
			InstallCommand: decl.InstallCommand,
			StartCommand:   decl.StartCommand,
			Env:            decl.Env,
			IsActive:       true,
		}
		if decl.Runtime == store.RuntimeDocker {
			server.BuildStatus = store.BuildStatusBuilt
			server.ImageTag = decl.Image
		}
		if err := st.CreateServer(ctx, server); err != nil {
			return err
		}
		logging.Info(syncSubsystem, "Declared new server %s (%s)", server.Name, server.Runtime)
		return nil
	}

	existing.Description = decl.Description
	existing.GithubURL = decl.GithubURL
	existing.Runtime = decl.Runtime
	existing.InstallCommand = decl.InstallCommand
	existing.StartCommand = decl.StartCommand
	existing.Env = decl.Env
	existing.IsActive = true
	if err := st.UpdateServer(ctx, existing); err != nil {
		return err
	}
	if decl.Runtime == store.RuntimeDocker &&
		(existing.ImageTag != decl.Image || existing.BuildStatus != store.BuildStatusBuilt) {
		if err := st.SetBuildResult(ctx, existing.ID, store.BuildStatusBuilt, "", decl.Image); err != nil {
			return err
		}
	}
	logging.Debug(syncSubsystem, "Updated declared server %s", existing.Name)
	return nil
}

func isYAMLFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
