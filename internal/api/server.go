package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/lexstat/internal/auth"
	"github.com/mattjoyce/lexstat/internal/events"
	"github.com/mattjoyce/lexstat/internal/sink"
	"github.com/mattjoyce/lexstat/internal/stats"
)

// BatchRunner defines the interface for triggering batch runs.
type BatchRunner interface {
	Run(ctx context.Context, folders []string, commands []stats.CommandType, submittedBy string) (string, error)
}

// ResultsStore defines the read surface over recorded runs and results.
type ResultsStore interface {
	GetRun(ctx context.Context, runID string) (*sink.Run, error)
	RecentRuns(ctx context.Context, limit int) ([]*sink.Run, error)
	ResultsByRun(ctx context.Context, runID string) ([]*sink.Result, error)
	ResultsByFolder(ctx context.Context, folder string, limit int) ([]*sink.Result, error)
}

// Config holds API server configuration.
type Config struct {
	Listen string
	// APIKey is the legacy single bearer token (admin/full access).
	APIKey string
	// Tokens is an optional list of scoped bearer tokens.
	Tokens []auth.TokenConfig
	// DefaultFolders/DefaultCommands back a trigger request that omits them.
	DefaultFolders  []string
	DefaultCommands []stats.CommandType
}

// Server represents the HTTP API server.
type Server struct {
	config    Config
	runner    BatchRunner
	store     ResultsStore
	hub       *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance.
func New(config Config, runner BatchRunner, store ResultsStore, hub *events.Hub, logger *slog.Logger) *Server {
	if hub == nil {
		hub = events.NewHub(256)
	}
	return &Server{
		config:    config,
		runner:    runner,
		store:     store,
		hub:       hub,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start starts the HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Minute, // Trigger runs batches synchronously
		IdleTimeout:  60 * time.Second,
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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router.
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	// Protected API.
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.With(s.requireScopes("runs:rw", "*")).Post("/batch", s.handleTriggerBatch)
		r.With(s.requireScopes("runs:ro", "runs:rw", "*")).Get("/runs", s.handleListRuns)
		r.With(s.requireScopes("runs:ro", "runs:rw", "*")).Get("/run/{runID}", s.handleGetRun)
		r.With(s.requireScopes("results:ro", "results:rw", "*")).Get("/results/{folder}", s.handleFolderResults)
		r.With(s.requireScopes("events:ro", "events:rw", "*")).Get("/events", s.handleEvents)
	})

	return r
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// authMiddleware validates the bearer token and attaches the principal.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.ExtractBearerToken(r)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		principal, ok := auth.Authenticate(token, s.config.APIKey, s.config.Tokens)
		if !ok {
			s.writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
	})
}

// requireScopes authorizes the request if the principal has any listed scope.
func (s *Server) requireScopes(scopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok || !auth.HasAnyScope(principal, scopes...) {
				s.writeError(w, http.StatusForbidden, "insufficient scope")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
