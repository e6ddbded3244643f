package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/lanes/internal/events"
	"github.com/mattjoyce/lanes/internal/queue"
	"github.com/mattjoyce/lanes/internal/tasklog"
)

//go:generate mockgen -destination=mocks/mock_api.go -package=mocks github.com/mattjoyce/lanes/internal/api Queues,History

// Queues is the view of the dispatcher registry the API needs.
type Queues interface {
	Snapshot() []queue.Stats
	Keys() []string
	Stats(owner, id string) (queue.Stats, error)
	Push(owner, id string, args []any) (*queue.Task, error)
	Clear(owner, id string) (int, error)
}

// History reads the settled-task log.
type History interface {
	List(ctx context.Context, owner, queueID string, limit int) ([]tasklog.Entry, error)
}

// Config holds API server configuration
type Config struct {
	Listen string
	APIKey string
	// ShutdownTimeout bounds graceful shutdown. Zero means 5s.
	ShutdownTimeout time.Duration
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	queues    Queues
	history   History
	events    *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance. history and hub may be nil; the
// matching endpoints then answer 501.
func New(config Config, queues Queues, history History, hub *events.Hub, logger *slog.Logger) *Server {
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 5 * time.Second
	}
	return &Server{
		config:    config,
		queues:    queues,
		history:   history,
		events:    hub,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     s.setupRoutes(),
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: /events streams for as long as the client stays.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/openapi.json", s.handleOpenAPI)
		r.Get("/queues", s.handleListQueues)
		r.Route("/queues/{owner}/{queue}", func(r chi.Router) {
			r.Get("/", s.handleGetQueue)
			r.Post("/tasks", s.handlePush)
			r.Post("/clear", s.handleClear)
			r.Get("/history", s.handleHistory)
		})
		r.Get("/events", s.handleEvents)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
