package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stevedore/pkg/logging"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Run executes the full gateway lifecycle: sync declared servers, start the
// listener, warm-start the lifespan, then block until a termination signal.
// SIGHUP triggers a re-sync and mount pass instead of terminating. Shutdown
// tears subsystems down in reverse order of startup.
func (a *Application) Run(ctx context.Context) error {
	if synced, err := SyncDeclaredServers(ctx, a.store, a.configDir); err != nil {
		logging.Error(appSubsystem, err, "Declarative sync failed")
	} else if synced > 0 {
		logging.Info(appSubsystem, "Synced %d declared servers", synced)
	}

	if err := a.server.Start(ctx); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}

	// Warm start so the first client request is not the one paying for the
	// mount pass, and so READY means ready.
	if err := a.server.EnsureStarted(ctx); err != nil {
		logging.Error(appSubsystem, err, "Gateway startup failed")
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.server.Stop(stopCtx)
		return err
	}

	a.watcher = NewWatcher(serversDir(a.configDir), func() {
		logging.Info(appSubsystem, "Server definitions changed, refreshing")
		a.Refresh(context.Background())
	})
	if err := a.watcher.Start(ctx); err != nil {
		logging.Warn(appSubsystem, "Definition watcher unavailable: %v", err)
		a.watcher = nil
	}

	notifySystemd(daemon.SdNotifyReady)
	logging.Info(appSubsystem, "Gateway available at %s", a.server.Endpoint())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for {
		select {
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				logging.Info(appSubsystem, "Received SIGHUP, re-syncing server definitions")
				a.Refresh(ctx)
				continue
			}
			logging.Info(appSubsystem, "Received signal %v, shutting down", sig)
		case <-ctx.Done():
			logging.Info(appSubsystem, "Context cancelled, shutting down")
		}
		break
	}

	notifySystemd(daemon.SdNotifyStopping)

	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.server.Stop(stopCtx); err != nil {
		logging.Error(appSubsystem, err, "Gateway shutdown reported an error")
	}

	return a.Close()
}

// notifySystemd reports lifecycle state to systemd when running under it.
// Outside systemd the notification socket is absent and this is a no-op.
func notifySystemd(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		logging.Warn(appSubsystem, "systemd notification failed: %v", err)
		return
	}
	if sent {
		logging.Debug(appSubsystem, "Notified systemd: %s", state)
	}
}
