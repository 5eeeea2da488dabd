// Package server exposes the operator HTTP and WebSocket API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cadencefi/treasuryd/internal/domain"
	"github.com/cadencefi/treasuryd/internal/server/handler"
	"github.com/cadencefi/treasuryd/internal/server/middleware"
	"github.com/cadencefi/treasuryd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	AuthToken   string // if empty, authentication is disabled

	// RateLimit is the allowed request count per client IP per RateWindow.
	// Zero disables rate limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Nil handlers are skipped, so monitor mode can run with a reduced set.
type Handlers struct {
	Health   *handler.HealthHandler
	Status   *handler.StatusHandler
	Routes   *handler.RouteHandler
	Harvest  *handler.HarvestHandler
	Archives *handler.ArchiveHandler
}

// Server is the headless HTTP + WebSocket API server for the treasury daemon.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, rate limiting) and attaches
// the WebSocket hub. limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check.
	if handlers.Health != nil {
		mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	}

	if handlers.Status != nil {
		mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	}

	if handlers.Routes != nil {
		mux.HandleFunc("GET /api/routes", handlers.Routes.ListRoutes)
		mux.HandleFunc("POST /api/routes", handlers.Routes.CreateRoute)
		mux.HandleFunc("DELETE /api/routes/{caller}/{asset}", handlers.Routes.DeleteRoute)
		mux.HandleFunc("POST /api/routes/{caller}/{asset}/reapprove", handlers.Routes.ReapproveRoute)

		mux.HandleFunc("GET /api/callers", handlers.Routes.ListCallers)
		mux.HandleFunc("POST /api/callers/{address}/activate", handlers.Routes.ActivateCaller)
		mux.HandleFunc("POST /api/callers/{address}/deactivate", handlers.Routes.DeactivateCaller)

		mux.HandleFunc("POST /api/liquidations/trigger", handlers.Routes.TriggerLiquidation)
		mux.HandleFunc("GET /api/liquidations", handlers.Routes.ListLiquidations)
	}

	if handlers.Harvest != nil {
		mux.HandleFunc("POST /api/harvest/stake", handlers.Harvest.RunStakeCycle)
		mux.HandleFunc("POST /api/harvest/reward", handlers.Harvest.RunRewardCycle)
		mux.HandleFunc("GET /api/harvests", handlers.Harvest.ListHarvests)
		mux.HandleFunc("GET /api/ratios", handlers.Harvest.GetRatios)
		mux.HandleFunc("PUT /api/ratios", handlers.Harvest.UpdateRatios)
		mux.HandleFunc("POST /api/exit", handlers.Harvest.ExitToTreasury)
		mux.HandleFunc("POST /api/reapprove", handlers.Harvest.Reapprove)
	}

	if handlers.Archives != nil {
		mux.HandleFunc("GET /api/archives", handlers.Archives.ListArchives)
		mux.HandleFunc("GET /api/archives/{kind}/{file}", handlers.Archives.GetArchive)
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux

	h = middleware.Auth(cfg.AuthToken)(h)

	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}

	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
