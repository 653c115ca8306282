package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/novadent/clinic-core/internal/audit"
	"github.com/novadent/clinic-core/internal/gateway"
	"github.com/novadent/clinic-core/internal/identity"
	"github.com/novadent/clinic-core/internal/infrastructure/config"
	"github.com/novadent/clinic-core/internal/infrastructure/logging"
	"github.com/novadent/clinic-core/internal/profile"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.ServerConfig
	Session  config.SessionConfig
	Logger   *logging.Logger
	Gateway  *gateway.Gateway
	Provider identity.Provider
	Accounts identity.AccountRepository
	Profiles profile.Repository
	Tenants  profile.TenantRepository
	Audit    audit.Repository
	Hub      *Hub // If set, the server uses this hub instead of creating its own
	Version  string
}

// Server is the HTTP server for Clinic Core.
//
// It manages the HTTP listener, routes, middleware, and the WebSocket
// session-event hub. The server is created with New() and started with
// Start().
type Server struct {
	cfg      config.ServerConfig
	sessCfg  config.SessionConfig
	logger   *logging.Logger
	gateway  *gateway.Gateway
	provider identity.Provider
	accounts identity.AccountRepository
	profiles profile.Repository
	tenants  profile.TenantRepository
	audit    audit.Repository
	version  string

	server      *http.Server
	hub         *Hub
	externalHub bool
	tickets     *ticketStore
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if deps.Provider == nil {
		return nil, fmt.Errorf("identity provider is required")
	}
	if deps.Profiles == nil {
		return nil, fmt.Errorf("profile repository is required")
	}

	s := &Server{
		cfg:      deps.Config,
		sessCfg:  deps.Session,
		logger:   deps.Logger,
		gateway:  deps.Gateway,
		provider: deps.Provider,
		accounts: deps.Accounts,
		profiles: deps.Profiles,
		tenants:  deps.Tenants,
		audit:    deps.Audit,
		version:  deps.Version,
		tickets:  newTicketStore(),
	}

	// Use an externally-provided hub when the session hub must also be
	// reachable from outside the server (token revocation fan-out).
	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	}

	return s, nil
}

// SessionHub returns the WebSocket session-event hub. Available after
// Start() unless one was injected via Deps.
func (s *Server) SessionHub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub and the ticket cleanup loop, builds the
// router, and launches the HTTP listener in a background goroutine. The
// server is stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.logger)
	}
	go s.hub.Run(srvCtx)
	go s.tickets.cleanLoop(srvCtx)

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// HealthCheck verifies the server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("server not started")
	}

	return nil
}
