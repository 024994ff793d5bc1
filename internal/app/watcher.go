package app

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"stevedore/pkg/logging"

	"github.com/fsnotify/fsnotify"
)

const watcherSubsystem = "DefinitionWatcher"

// debounceDelay coalesces editor write bursts (temp file, rename, chmod)
// into one refresh.
const debounceDelay = 250 * time.Millisecond

// Watcher observes the declarative server directory and invokes a callback
// after filesystem activity settles. Every create, write, rename or remove
// of a YAML file schedules the callback; rapid sequences collapse into a
// single invocation.
type Watcher struct {
	dir      string
	onChange func()
	debounce time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	timer   *time.Timer
	running bool
}

// NewWatcher creates a watcher for dir. The callback runs on the watcher's
// goroutine after the debounce window; it must not block indefinitely.
func NewWatcher(dir string, onChange func()) *Watcher {
	return &Watcher{
		dir:      dir,
		onChange: onChange,
		debounce: debounceDelay,
	}
}

// Start creates the directory when absent, registers it with fsnotify and
// begins dispatching events until the context is cancelled or Stop is
// called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("watcher already running")
	}

	// Watching a nonexistent directory fails, so make sure it is there.
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create watch directory %s: %w", w.dir, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	if err := fw.Add(w.dir); err != nil {
		_ = fw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	w.watcher = fw
	w.running = true
	go w.loop(ctx, fw)

	logging.Info(watcherSubsystem, "Watching %s for server definition changes", w.dir)
	return nil
}

// Stop closes the underlying watcher and cancels any pending callback.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	w.running = false
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	err := w.watcher.Close()
	w.watcher = nil
	return err
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if !isYAMLFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			logging.Debug(watcherSubsystem, "Definition event: %s %s", event.Op, event.Name)
			w.schedule()
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			logging.Warn(watcherSubsystem, "Watcher error: %v", err)
		}
	}
}

// schedule arms the debounce timer, resetting any pending one so only the
// last event in a burst fires the callback.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		running := w.running
		w.timer = nil
		w.mu.Unlock()
		if running {
			w.onChange()
		}
	})
}
