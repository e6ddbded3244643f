package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/mattjoyce/lanes/internal/registry"
)

// Server represents the webhook HTTP server.
type Server struct {
	config Config
	queues Pusher
	logger *slog.Logger
	server *http.Server

	// endpoints maps URL paths to their configurations
	endpoints map[string]*EndpointConfig
	limiters  map[string]*rate.Limiter
}

// New creates a new webhook server instance.
func New(config Config, queues Pusher, logger *slog.Logger) *Server {
	endpoints := make(map[string]*EndpointConfig)
	limiters := make(map[string]*rate.Limiter)
	for i := range config.Endpoints {
		ep := &config.Endpoints[i]
		if ep.MaxBodySize == 0 {
			ep.MaxBodySize = DefaultMaxBodySize
		}
		if ep.SignatureHeader == "" {
			ep.SignatureHeader = DefaultSignatureHeader
		}
		if ep.RateLimit > 0 {
			if ep.RateBurst <= 0 {
				ep.RateBurst = 1
			}
			limiters[ep.Path] = rate.NewLimiter(rate.Limit(ep.RateLimit), ep.RateBurst)
		}
		endpoints[ep.Path] = ep
	}

	return &Server{
		config:    config,
		queues:    queues,
		logger:    logger,
		endpoints: endpoints,
		limiters:  limiters,
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start serves webhooks until ctx is cancelled. Cancellation is a clean stop.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.setupRoutes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("webhook server starting", "listen", s.config.Listen, "endpoints", len(s.endpoints))

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	for path := range s.endpoints {
		r.Post(path, s.handleWebhook)
	}

	return r
}

// loggingMiddleware logs requests without their bodies.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("webhook request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	endpoint, ok := s.endpoints[r.URL.Path]
	if !ok {
		s.respondError(w, http.StatusNotFound, "endpoint not found")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, endpoint.MaxBodySize+1))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to read request body")
		return
	}
	if int64(len(body)) > endpoint.MaxBodySize {
		s.respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	signature := r.Header.Get(endpoint.SignatureHeader)
	if signature == "" {
		s.logger.Warn("webhook signature missing", "path", r.URL.Path, "header", endpoint.SignatureHeader)
		s.respondError(w, http.StatusForbidden, "forbidden")
		return
	}
	if err := verifyHMACSignature(body, signature, endpoint.Secret); err != nil {
		s.logger.Warn("webhook signature verification failed", "path", r.URL.Path, "error", err)
		s.respondError(w, http.StatusForbidden, "forbidden")
		return
	}

	if lim := s.limiters[endpoint.Path]; lim != nil && !lim.Allow() {
		s.logger.Warn("webhook rate limited", "path", r.URL.Path, "rate_limit", endpoint.RateLimit)
		s.respondError(w, http.StatusTooManyRequests, "rate limited")
		return
	}

	task, err := s.queues.Push(endpoint.Owner, endpoint.Queue, []any{payloadArg(body)})
	if err != nil {
		s.logger.Error("failed to push webhook task",
			"path", r.URL.Path,
			"owner", endpoint.Owner,
			"queue", endpoint.Queue,
			"error", err,
		)
		status := http.StatusInternalServerError
		if errors.Is(err, registry.ErrClosed) {
			status = http.StatusServiceUnavailable
		}
		s.respondError(w, status, "failed to push task")
		return
	}

	s.logger.Info("webhook task pushed",
		"path", r.URL.Path,
		"owner", endpoint.Owner,
		"queue", endpoint.Queue,
		"task_id", task.ID,
		"ref", task.Ref,
	)

	s.respondJSON(w, http.StatusAccepted, TriggerResponse{TaskID: task.ID, Ref: task.Ref, Status: task.Status()})
}

// payloadArg decodes a JSON body so priority keys and defaults can see its
// fields. Anything else is passed through as a string.
func payloadArg(body []byte) any {
	if len(bytes.TrimSpace(body)) == 0 {
		return ""
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return string(body)
	}
	return v
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}
