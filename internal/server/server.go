// Package server exposes the date and time recognizer over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/chrono-sentinel/internal/config"
	"github.com/raaihank/chrono-sentinel/internal/datetime"
	"github.com/raaihank/chrono-sentinel/internal/logger"
	"github.com/raaihank/chrono-sentinel/internal/web"
	"github.com/raaihank/chrono-sentinel/internal/websocket"
)

// Version is reported by /info
var Version = "0.1.0"

// ResultCache stores detection results per rule generation
type ResultCache interface {
	Get(ctx context.Context, generation uint64, locale, text string) ([]datetime.Match, bool)
	Store(ctx context.Context, generation uint64, locale, text string, matches []datetime.Match) error
	Clear(ctx context.Context) error
}

// Server represents the detection API server
type Server struct {
	config   *config.Config
	logger   *logger.Logger
	registry *datetime.Registry
	cache    ResultCache
	limiter  *RateLimiter
	router   *mux.Router
	server   *http.Server
	wsHub    *websocket.Hub

	startedAt  time.Time
	requests   atomic.Int64
	detections atomic.Int64
}

// Option customizes a Server
type Option func(*Server)

// WithCache enables result caching
func WithCache(c ResultCache) Option {
	return func(s *Server) { s.cache = c }
}

// WithHub broadcasts events to dashboard clients and serves the websocket
// endpoint
func WithHub(h *websocket.Hub) Option {
	return func(s *Server) { s.wsHub = h }
}

// New creates a new server instance
func New(cfg *config.Config, log *logger.Logger, registry *datetime.Registry, opts ...Option) *Server {
	s := &Server{
		config:    cfg,
		logger:    log.WithComponent("server"),
		registry:  registry,
		limiter:   NewRateLimiter(cfg.RateLimit),
		router:    mux.NewRouter(),
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	if s.wsHub != nil {
		path := s.config.WebSocket.Path
		if path == "" {
			path = "/ws"
		}
		s.router.HandleFunc(path, s.wsHub.HandleWebSocket).Methods(http.MethodGet)

		dashboard := web.Dashboard(path)
		s.router.HandleFunc("/", dashboard).Methods(http.MethodGet)
		s.router.HandleFunc("/dashboard", dashboard).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.requestIDMiddleware)
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.Use(s.bodyLimitMiddleware)
	api.HandleFunc("/detect", s.handleDetect).Methods(http.MethodPost)
	api.HandleFunc("/detect/offsets", s.handleDetectOffsets).Methods(http.MethodPost)
	api.HandleFunc("/rules/reload", s.handleReload).Methods(http.MethodPost)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP until Stop is called. A graceful stop is not an error.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting chrono-sentinel server",
		zap.Int("port", s.config.Server.Port),
		zap.String("default_locale", s.config.Server.DefaultLocale),
		zap.Bool("cache_enabled", s.cache != nil),
		zap.Bool("websocket_enabled", s.wsHub != nil),
	)

	if s.config.RateLimit.Enabled {
		go s.limiter.RunCleanup(ctx)
	}
	if s.wsHub != nil && s.config.WebSocket.Events.BroadcastSystem {
		go s.runStatusBroadcast(ctx)
	}

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping chrono-sentinel server")
	return s.server.Shutdown(ctx)
}

// ResetRules starts a new rule generation and drops cached results
func (s *Server) ResetRules(ctx context.Context, reason string, documents []string) uint64 {
	s.registry.Reset()
	gen := s.registry.Generation()

	if s.cache != nil {
		if err := s.cache.Clear(ctx); err != nil {
			s.logger.Warn("Failed to clear result cache", zap.Error(err))
		}
	}

	s.broadcast(websocket.Event{
		Type: websocket.EventTypeRulesReload,
		Data: websocket.RulesReloadEvent{
			Generation: gen,
			Documents:  documents,
			Reason:     reason,
		},
	})

	s.logger.Info("Rules reloaded",
		zap.Uint64("generation", gen),
		zap.String("reason", reason),
		zap.Strings("documents", documents),
	)
	return gen
}

func (s *Server) runStatusBroadcast(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.broadcast(websocket.Event{Type: websocket.EventTypeSystemStatus, Data: s.status()})
		}
	}
}

func (s *Server) status() websocket.SystemStatusEvent {
	status := websocket.SystemStatusEvent{
		Status:          "healthy",
		Uptime:          time.Since(s.startedAt).Round(time.Second).String(),
		TotalRequests:   s.requests.Load(),
		TotalDetections: s.detections.Load(),
		Generation:      s.registry.Generation(),
		Locales:         s.registry.Locales(),
	}
	if s.wsHub != nil {
		status.ConnectedClients = s.wsHub.ClientCount()
	}
	return status
}

func (s *Server) broadcast(event websocket.Event) {
	if s.wsHub != nil {
		s.wsHub.BroadcastEvent(event)
	}
}
