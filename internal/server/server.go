package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/tradebot/internal/config"
	"github.com/me/tradebot/internal/dispatch"
	"github.com/me/tradebot/internal/store"
)

// Server is the tradebot REST API server.
type Server struct {
	router      chi.Router
	logger      *slog.Logger
	config      config.ServerConfig
	startTime   time.Time
	hub         *dispatch.Hub
	store       store.Store    // optional; history endpoints answer 503 without it
	loop        *dispatch.Loop // optional; started by StartRoutines
	sseInterval time.Duration
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithLoop sets the routine loop started by StartRoutines.
func WithLoop(loop *dispatch.Loop) Option {
	return func(s *Server) {
		s.loop = loop
	}
}

// WithSSEInterval sets how often status streams poll the hub.
func WithSSEInterval(d time.Duration) Option {
	return func(s *Server) {
		s.sseInterval = d
	}
}

// New creates a new Server with all routes registered.
// st may be nil when no history database is configured.
func New(cfg config.ServerConfig, hub *dispatch.Hub, st store.Store, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		logger:      logger.With("component", "server"),
		config:      cfg,
		startTime:   time.Now(),
		hub:         hub,
		store:       st,
		sseInterval: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// StartRoutines runs the dispatch loop in a background goroutine.
func (s *Server) StartRoutines(ctx context.Context) {
	if s.loop == nil {
		return
	}
	go func() {
		if err := s.loop.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("routines stopped", "error", err)
		}
	}()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)

		// Request queue
		r.Route("/requests", func(r chi.Router) {
			r.Get("/", s.handleListRequests)
			r.Post("/", s.handleSubmitRequest)
			r.Delete("/", s.handleCancelAll)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetStatus)
				r.Delete("/", s.handleCancelRequest)
			})
		})

		// Distribution pool
		r.Route("/pool", func(r chi.Router) {
			r.Get("/", s.handlePoolInfo)
			r.Post("/reload", s.handlePoolReload)
			r.Post("/next", s.handlePoolNext)
			r.Get("/{key}", s.handlePoolLookup)
		})

		r.Get("/history", s.handleHistory)

		r.Route("/sse", func(r chi.Router) {
			r.Get("/requests/{id}", s.handleSSERequest)
		})
	})
}
