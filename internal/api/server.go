package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/runlet/internal/executor"
	"github.com/mattjoyce/runlet/internal/history"
	"github.com/mattjoyce/runlet/internal/registry"
)

//go:generate mockgen -source=server.go -destination=mocks/mock_server.go -package=mocks

// Runner executes snippets and manages the language table. The registry
// satisfies this interface.
type Runner interface {
	Execute(ctx context.Context, code, language string) executor.Outcome
	Languages() []string
	Reload(ctx context.Context) []registry.PluginStatus
}

// Recorder journals execution attempts. May be nil when history is disabled.
type Recorder interface {
	Record(ctx context.Context, a history.Attempt) (string, error)
	Recent(ctx context.Context, limit int) ([]history.Attempt, error)
}

// Config holds API server configuration.
type Config struct {
	Listen string
	// APIKey is the bearer token required on protected routes. Empty means
	// no authentication.
	APIKey string
	// MaxSourceBytes bounds the accepted snippet size. Zero means the
	// default of 256 KiB.
	MaxSourceBytes int64
}

// Server is the HTTP front end for snippet execution.
type Server struct {
	config    Config
	runner    Runner
	recorder  Recorder
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates an API server. recorder may be nil.
func New(config Config, runner Runner, recorder Recorder, logger *slog.Logger) *Server {
	if config.MaxSourceBytes <= 0 {
		config.MaxSourceBytes = 256 * 1024
	}
	return &Server{
		config:    config,
		runner:    runner,
		recorder:  recorder,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * time.Minute,
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

// Routes builds the HTTP router.
func (s *Server) Routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	// Protected API.
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/execute", s.handleExecute)
		r.Get("/languages", s.handleLanguages)
		r.Post("/reload", s.handleReload)
		r.Get("/history", s.handleHistory)
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
