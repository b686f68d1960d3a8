package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/stakevault/internal/crypto"
	"github.com/alanyoungcy/stakevault/internal/domain"
	"github.com/alanyoungcy/stakevault/internal/server/handler"
	"github.com/alanyoungcy/stakevault/internal/server/middleware"
	"github.com/alanyoungcy/stakevault/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	Operator    *crypto.HMACAuth // nil disables the operator endpoints

	// Per-client request rate limiting; disabled when RateLimiter is nil or
	// RateLimit is zero.
	RateLimiter domain.RateLimiter
	RateLimit   int
	RateWindow  time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Stakes   *handler.StakeHandler
	Vault    *handler.VaultHandler
	Operator *handler.OperatorHandler
}

// Server is the headless HTTP + WebSocket API server for the staking vault.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// Holder endpoints require a personal-sign challenge; operator endpoints
// require an HMAC-signed request; health, vault status, and the WebSocket
// stream are open.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	holder := middleware.Holder()
	operator := middleware.Operator(cfg.Operator)

	// Open endpoints.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/vault/status", handlers.Vault.GetStatus)

	// Holder endpoints, authenticated by signature recovery.
	mux.Handle("POST /api/stakes", holder(http.HandlerFunc(handlers.Stakes.CreateStake)))
	mux.Handle("POST /api/stakes/{id}/liquidate", holder(http.HandlerFunc(handlers.Stakes.Liquidate)))
	mux.Handle("GET /api/stakes", holder(http.HandlerFunc(handlers.Stakes.ListStakes)))
	mux.Handle("GET /api/stakes/{id}", holder(http.HandlerFunc(handlers.Stakes.GetStake)))
	mux.Handle("GET /api/balance", holder(http.HandlerFunc(handlers.Stakes.GetBalance)))

	// Operator endpoints, authenticated by HMAC request signature.
	mux.Handle("GET /api/operator/audit", operator(http.HandlerFunc(handlers.Operator.ListAudit)))
	mux.Handle("POST /api/operator/archive", operator(http.HandlerFunc(handlers.Operator.TriggerArchive)))

	// WebSocket event stream.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply per-client rate limiting.
	if cfg.RateLimiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(cfg.RateLimiter, cfg.RateLimit, window)(h)
	}

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
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
