// Package api provides the HTTP REST API and WebSocket server for ovenlink.
//
// It exposes canonical device snapshots, the state change history, the
// recipe library, and oven command endpoints, plus a WebSocket channel
// broadcasting state changes in real time.
//
// The server follows the same lifecycle pattern as the other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ovenlink/ovenlink/internal/infrastructure/config"
	"github.com/ovenlink/ovenlink/internal/infrastructure/logging"
	"github.com/ovenlink/ovenlink/internal/oven"
	"github.com/ovenlink/ovenlink/internal/recipes"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// CommandSender forwards oven commands to the cloud. Implemented by the
// anova bridge; an interface here avoids a dependency cycle and lets
// tests inject a fake.
type CommandSender interface {
	SendCommand(ctx context.Context, deviceID, command string, body map[string]interface{}) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Logger    *logging.Logger
	Registry  *oven.Registry
	Publisher *oven.Publisher
	History   oven.StateHistoryStore // optional: history endpoints return 503 when nil
	Recipes   *recipes.Library       // optional: recipe endpoints return 503 when nil
	Bridge    CommandSender          // optional: command endpoints return 503 when nil
	Version   string
}

// Server is the HTTP API server for ovenlink.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	registry  *oven.Registry
	publisher *oven.Publisher
	history   oven.StateHistoryStore
	recipes   *recipes.Library
	bridge    CommandSender
	version   string
	server    *http.Server
	hub       *Hub
	cancel    context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, registry, publisher)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Publisher == nil {
		return nil, fmt.Errorf("snapshot publisher is required")
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		registry:  deps.Registry,
		publisher: deps.Publisher,
		history:   deps.History,
		recipes:   deps.Recipes,
		bridge:    deps.Bridge,
		version:   deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, registers with the
// snapshot publisher for real-time broadcast, and launches the HTTP
// listener in a background goroutine. The server is stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.startHub(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", s.server.Addr)
	return nil
}

// startHub creates the WebSocket hub and registers it with the snapshot
// publisher so every accepted merge reaches subscribed clients. The
// publisher invokes callbacks outside engine locks.
func (s *Server) startHub(ctx context.Context) {
	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(ctx)

	s.publisher.OnAnyChange(func(id oven.DeviceIdentity, snapshot *oven.DeviceSnapshot) {
		s.hub.Broadcast(ChannelStateChanged, deviceStateEvent{
			DeviceID:   id.ID,
			Generation: string(id.Generation),
			State:      snapshot,
		})
	})
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
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
