package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"stevedore/pkg/logging"
)

const lifespanSubsystem = "Lifespan"

// State is the lifespan wrapper's lifecycle position.
type State int32

// Lifespan states. Failed is reachable only from Starting.
const (
	StateNotStarted State = iota
	StateStarting
	StateRunning
	StateShuttingDown
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	defaultStartupTimeout  = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// Lifespan gates an HTTP handler behind a start-once routine. The first
// inbound request triggers the start; concurrent first requests share the
// in-flight attempt and its outcome. A failed or timed-out start is sticky:
// every later request is refused rather than served half-initialized.
type Lifespan struct {
	handler http.Handler
	start   func(context.Context) error
	stop    func(context.Context) error

	startupTimeout  time.Duration
	shutdownTimeout time.Duration

	mu          sync.Mutex
	state       State
	startDone   chan struct{}
	startErr    error
	cancelStart context.CancelFunc
}

// NewLifespan wraps handler. start runs once with a bounded budget before
// any request is forwarded; stop runs during Shutdown with a bounded drain.
func NewLifespan(handler http.Handler, start, stop func(context.Context) error) *Lifespan {
	return &Lifespan{
		handler:         handler,
		start:           start,
		stop:            stop,
		startupTimeout:  defaultStartupTimeout,
		shutdownTimeout: defaultShutdownTimeout,
	}
}

// State returns the current lifecycle state.
func (l *Lifespan) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// ServeHTTP forwards the request once the start routine has completed.
// Start failures and shutdown surface as 503; a panicking wrapped handler
// surfaces as 500 instead of tearing the connection down.
func (l *Lifespan) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := l.EnsureStarted(r.Context()); err != nil {
		http.Error(w, "gateway unavailable", http.StatusServiceUnavailable)
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			logging.Error(lifespanSubsystem, fmt.Errorf("%v", rec), "Request handler panicked")
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
	}()

	l.handler.ServeHTTP(w, r)
}

// EnsureStarted runs the start routine on the first call and makes every
// concurrent and later caller share its outcome. Callers whose own context
// expires while the start is in flight get their context error; the start
// itself keeps running for the others.
func (l *Lifespan) EnsureStarted(ctx context.Context) error {
	l.mu.Lock()
	switch l.state {
	case StateRunning:
		l.mu.Unlock()
		return nil
	case StateFailed:
		err := l.startErr
		l.mu.Unlock()
		return err
	case StateShuttingDown, StateStopped:
		l.mu.Unlock()
		return fmt.Errorf("gateway is shut down")
	case StateNotStarted:
		l.state = StateStarting
		l.startDone = make(chan struct{})
		startCtx, cancel := context.WithTimeout(context.Background(), l.startupTimeout)
		l.cancelStart = cancel
		go func() {
			defer cancel()
			l.runStart(startCtx)
		}()
	}
	done := l.startDone
	l.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateRunning {
		return nil
	}
	if l.startErr != nil {
		return l.startErr
	}
	return fmt.Errorf("gateway is shut down")
}

func (l *Lifespan) runStart(ctx context.Context) {
	logging.Info(lifespanSubsystem, "Gateway starting")

	var err error
	if l.start != nil {
		err = l.start(ctx)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err != nil {
		l.state = StateFailed
		l.startErr = fmt.Errorf("gateway startup failed: %w", err)
		logging.Error(lifespanSubsystem, err, "Gateway startup failed")
	} else if l.state == StateStarting {
		l.state = StateRunning
		logging.Info(lifespanSubsystem, "Gateway running")
	}
	close(l.startDone)
}

// Shutdown drains the wrapped handler's shutdown path, waiting up to the
// shutdown budget before forcing cancellation. Cancellation is a normal
// outcome, not an error. Safe to call any number of times, including when
// the gateway never started.
func (l *Lifespan) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	switch l.state {
	case StateStopped, StateShuttingDown:
		l.mu.Unlock()
		return nil
	case StateNotStarted:
		l.state = StateStopped
		l.mu.Unlock()
		return nil
	case StateStarting:
		cancel := l.cancelStart
		done := l.startDone
		l.state = StateShuttingDown
		l.mu.Unlock()
		cancel()
		select {
		case <-done:
		case <-time.After(l.shutdownTimeout):
		}
	default:
		l.state = StateShuttingDown
		l.mu.Unlock()
	}

	logging.Info(lifespanSubsystem, "Gateway shutting down")

	if l.stop != nil {
		drainCtx, cancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
		defer cancel()
		err := l.stop(drainCtx)
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			logging.Warn(lifespanSubsystem, "Shutdown reported: %v", err)
		}
	}

	l.mu.Lock()
	l.state = StateStopped
	l.mu.Unlock()

	logging.Info(lifespanSubsystem, "Gateway stopped")
	return nil
}
