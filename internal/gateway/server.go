package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"stevedore/internal/config"
	"stevedore/internal/store"
	"stevedore/pkg/logging"

	"github.com/mark3labs/mcp-go/server"
)

// Server hosts the router on the configured MCP transport with identity
// resolution and the lifespan wrapper layered around it.
type Server struct {
	cfg    *config.Config
	store  *store.Store
	router *Router

	lifespan *Lifespan

	httpServer  *http.Server
	stdioServer *server.StdioServer

	mu      sync.Mutex
	started bool
}

// NewServer wires the lifespan around the router. start runs once before
// the first request is served; the router's backends are closed during
// shutdown.
func NewServer(cfg *config.Config, st *store.Store, router *Router, start func(context.Context) error) *Server {
	s := &Server{
		cfg:    cfg,
		store:  st,
		router: router,
	}
	s.lifespan = NewLifespan(nil, start, func(ctx context.Context) error {
		return router.Close()
	})
	return s
}

// Start begins serving on the configured transport. The HTTP transports
// return immediately and serve in the background; request handling blocks
// until the lifespan start completes. The stdio transport starts eagerly
// since there is no inbound request to trigger it.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("gateway server already started")
	}
	s.started = true
	s.mu.Unlock()

	addr := fmt.Sprintf("%s:%d", s.cfg.Gateway.Host, s.cfg.Gateway.Port)

	switch s.cfg.Gateway.Transport {
	case config.MCPTransportStdio:
		logging.Info(gatewaySubsystem, "Serving MCP over stdio")
		if err := s.lifespan.EnsureStarted(ctx); err != nil {
			return err
		}
		s.stdioServer = server.NewStdioServer(s.router.MCP())
		stdioServer := s.stdioServer
		go func() {
			if err := stdioServer.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				logging.Error(gatewaySubsystem, err, "Stdio server error")
			}
		}()
		return nil

	case config.MCPTransportSSE:
		baseURL := fmt.Sprintf("http://%s", addr)
		sse := server.NewSSEServer(
			s.router.MCP(),
			server.WithBaseURL(baseURL),
			server.WithSSEEndpoint("/sse"),
			server.WithMessageEndpoint("/message"),
			server.WithKeepAlive(true),
			server.WithKeepAliveInterval(30*time.Second),
		)
		s.lifespan.handler = IdentityMiddleware(s.store, s.cfg.Gateway.IdentityHeader, sse)
		mux := http.NewServeMux()
		mux.Handle("/", s.lifespan)
		s.serveHTTP(addr, mux)
		logging.Info(gatewaySubsystem, "Serving MCP over sse on %s", s.Endpoint())
		return nil

	default:
		streamable := server.NewStreamableHTTPServer(s.router.MCP())
		s.lifespan.handler = IdentityMiddleware(s.store, s.cfg.Gateway.IdentityHeader, streamable)
		mux := http.NewServeMux()
		mux.Handle(s.mcpPath(), s.lifespan)
		s.serveHTTP(addr, mux)
		logging.Info(gatewaySubsystem, "Serving MCP over streamable-http on %s", s.Endpoint())
		return nil
	}
}

func (s *Server) serveHTTP(addr string, handler http.Handler) {
	s.httpServer = &http.Server{Addr: addr, Handler: handler}
	httpServer := s.httpServer
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error(gatewaySubsystem, err, "HTTP server error")
		}
	}()
}

// Stop drains inbound connections, then runs the lifespan shutdown path,
// which closes every mounted backend. Idempotent.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	httpServer := s.httpServer
	s.httpServer = nil
	s.mu.Unlock()

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logging.Warn(gatewaySubsystem, "HTTP server shutdown: %v", err)
		}
	}

	// Stdio listener stops on context cancellation, no explicit shutdown.

	return s.lifespan.Shutdown(ctx)
}

// EnsureStarted triggers the lifespan start without waiting for a request.
// Used for warm boots so readiness can be reported before traffic arrives.
func (s *Server) EnsureStarted(ctx context.Context) error {
	return s.lifespan.EnsureStarted(ctx)
}

// State reports the lifespan state.
func (s *Server) State() State {
	return s.lifespan.State()
}

// Endpoint returns the URL clients connect to for the configured transport.
func (s *Server) Endpoint() string {
	switch s.cfg.Gateway.Transport {
	case config.MCPTransportStdio:
		return "stdio"
	case config.MCPTransportSSE:
		return fmt.Sprintf("http://%s:%d/sse", s.cfg.Gateway.Host, s.cfg.Gateway.Port)
	default:
		return fmt.Sprintf("http://%s:%d%s", s.cfg.Gateway.Host, s.cfg.Gateway.Port, s.mcpPath())
	}
}

func (s *Server) mcpPath() string {
	if s.cfg.Gateway.Path != "" {
		return s.cfg.Gateway.Path
	}
	return config.DefaultMCPPath
}
