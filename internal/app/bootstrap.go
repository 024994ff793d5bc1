package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"stevedore/internal/config"
	"stevedore/internal/container"
	"stevedore/internal/engine"
	"stevedore/internal/gateway"
	"stevedore/internal/secrets"
	"stevedore/internal/store"
	"stevedore/pkg/logging"
)

const appSubsystem = "App"

// Application bundles the wired subsystems of one stevedore process. It is
// created by NewApplication and driven by Run; CLI commands that do not run
// the gateway reuse the same wiring through the accessor methods.
type Application struct {
	cfg       *config.Config
	configDir string

	store   *store.Store
	engine  *engine.DockerClient
	secrets *secrets.Manager
	manager *container.Manager
	router  *gateway.Router
	server  *gateway.Server
	watcher *Watcher
}

// Options controls application startup.
type Options struct {
	// ConfigDir is the directory holding config.yaml and servers/.
	// Empty selects the user-level default.
	ConfigDir string

	// LogLevel overrides the configured logging level when non-empty.
	LogLevel string
}

// NewApplication loads configuration and wires every subsystem in dependency
// order: logging, store, engine client, secret manager, container manager,
// gateway router and server. Nothing is started; Run does that.
func NewApplication(opts Options) (*Application, error) {
	configDir := opts.ConfigDir
	if configDir == "" {
		configDir = config.GetDefaultConfigPathOrPanic()
	}

	// The loader logs, so logging comes up at a provisional level and is
	// re-initialized once the configured level is known.
	logging.InitForCLI(logging.LevelInfo, os.Stdout)

	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level := cfg.Logging.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	logging.InitForCLI(logging.ParseLevel(level), os.Stdout)

	st, err := store.Open(filepath.Join(cfg.Storage.DataDir, "stevedore.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	eng, err := engine.NewDockerClient(cfg.Docker.Host, cfg.Docker.TimeoutSeconds)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	sec := secrets.NewManager(cfg.Storage.DataDir)
	mgr := container.NewManager(eng, st, sec, &cfg)
	router := gateway.NewRouter(st)

	app := &Application{
		cfg:       &cfg,
		configDir: configDir,
		store:     st,
		engine:    eng,
		secrets:   sec,
		manager:   mgr,
		router:    router,
	}
	app.server = gateway.NewServer(&cfg, st, router, app.startMounts)

	return app, nil
}

// Config exposes the effective configuration.
func (a *Application) Config() *config.Config {
	return a.cfg
}

// ConfigDir returns the directory configuration was loaded from.
func (a *Application) ConfigDir() string {
	return a.configDir
}

// Store exposes the opened store for CLI commands.
func (a *Application) Store() *store.Store {
	return a.store
}

// Secrets exposes the secret manager for CLI commands.
func (a *Application) Secrets() *secrets.Manager {
	return a.secrets
}

// Manager exposes the container manager for CLI commands.
func (a *Application) Manager() *container.Manager {
	return a.manager
}

// Router exposes the gateway router.
func (a *Application) Router() *gateway.Router {
	return a.router
}

// Server exposes the gateway server.
func (a *Application) Server() *gateway.Server {
	return a.server
}

// startMounts is the gateway's startup hook: one reconciliation pass over
// every built server. Per-server failures are reported but do not abort
// startup; an unreachable store does.
func (a *Application) startMounts(ctx context.Context) error {
	if !a.manager.IsDockerRunning(ctx) {
		logging.Warn(appSubsystem, "Docker daemon is not reachable at %s, servers will not be mounted", a.cfg.Docker.Host)
	}

	results, err := a.manager.MountBuiltServers(ctx, a.router)
	if err != nil {
		return err
	}

	mounted, failed := 0, 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			continue
		}
		mounted++
	}
	logging.Info(appSubsystem, "Mount pass complete: %d mounted, %d failed", mounted, failed)
	return nil
}

// Refresh re-reads the declarative server files and runs a reconciliation
// pass so newly declared or rebuilt servers come online without a restart.
func (a *Application) Refresh(ctx context.Context) {
	if _, err := SyncDeclaredServers(ctx, a.store, a.configDir); err != nil {
		logging.Error(appSubsystem, err, "Declarative sync failed")
	}
	results, err := a.manager.MountBuiltServers(ctx, a.router)
	if err != nil {
		logging.Error(appSubsystem, err, "Mount pass failed")
		return
	}
	for _, res := range results {
		if res.Err != nil {
			logging.Warn(appSubsystem, "Server %s failed to mount: %v", res.ServerName, res.Err)
		}
	}
}

// Close releases everything NewApplication opened. Safe to call after a
// partial shutdown; the first error is returned and the rest still run.
func (a *Application) Close() error {
	var firstErr error
	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.engine != nil {
		if err := a.engine.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
