package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gray-logic-access/internal/access"
	"github.com/nerrad567/gray-logic-access/internal/alert"
	"github.com/nerrad567/gray-logic-access/internal/audit"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-access/internal/protocol"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by every infrastructure component.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// PendingLister exposes the Pending Command Ledger.
type PendingLister interface {
	Pending(ctx context.Context) ([]*protocol.DoorCommand, error)
}

// Lockdown triggers an emergency lockdown broadcast.
type Lockdown interface {
	HandleEmergencyLockdown(ctx context.Context, reason string) error
}

// DoorTransitioner applies a status transition to a stored door.
type DoorTransitioner interface {
	Transition(ctx context.Context, id string, t access.DoorTransition) (*access.Door, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Pending  PendingLister
	Audit    audit.Repository
	Lockdown Lockdown
	Doors    DoorTransitioner
	Alerts   alert.Sink // optional; receives emergency_lockdown alerts
	Gatherer prometheus.Gatherer
	Checks   map[string]HealthChecker
	Version  string
}

// Server is the operational HTTP server.
type Server struct {
	cfg      config.APIConfig
	logger   *logging.Logger
	pending  PendingLister
	audit    audit.Repository
	lockdown Lockdown
	doors    DoorTransitioner
	alerts   alert.Sink
	gatherer prometheus.Gatherer
	checks   map[string]HealthChecker
	version  string
	server   *http.Server
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Pending == nil {
		return nil, fmt.Errorf("pending command ledger is required")
	}
	if deps.Lockdown == nil {
		return nil, fmt.Errorf("lockdown handler is required")
	}

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	return &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		pending:  deps.Pending,
		audit:    deps.Audit,
		lockdown: deps.Lockdown,
		doors:    deps.Doors,
		alerts:   deps.Alerts,
		gatherer: gatherer,
		checks:   deps.Checks,
		version:  deps.Version,
	}, nil
}

// Start begins listening for HTTP connections in a background goroutine.
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.ReadTimeout(),
		WriteTimeout:      s.cfg.WriteTimeout(),
		IdleTimeout:       s.cfg.IdleTimeout(),
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
