// Package web is the HTTP surface of labelr: OAuth login, the train and
// classify API, and the GitHub webhook.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/inovacc/labelr/internal/model"
	"github.com/inovacc/labelr/internal/reconcile"
	"github.com/inovacc/labelr/internal/session"
)

// Config holds the web server configuration
type Config struct {
	Addr string

	// BaseURL is the externally visible URL, used for OAuth redirects
	BaseURL string

	// WebhookSecret validates webhook signatures; empty rejects all webhooks
	WebhookSecret string
}

// DefaultConfig returns the default web server configuration
func DefaultConfig() Config {
	return Config{
		Addr:    ":5000",
		BaseURL: "http://localhost:5000",
	}
}

// Reconciler makes the scheduling decisions behind train, classify and webhook
type Reconciler interface {
	DecideTraining(ctx context.Context, repo, username, token string) (reconcile.Result, error)
	DecideClassification(ctx context.Context, target, modelRepo, username, token string) (reconcile.Result, error)
	DecideIncremental(ctx context.Context, target string, issue model.Issue) (reconcile.Result, error)
}

// Tracker is the GitHub side needed by the handlers
type Tracker interface {
	User(ctx context.Context, token string) (string, error)
	Exists(ctx context.Context, repo model.Repo, token string) (bool, error)
	IsInstalled(ctx context.Context, repo model.Repo) (bool, error)
	Permission(ctx context.Context, repo model.Repo, login, token string) (string, error)
	AppPageURL(ctx context.Context) (string, error)
	AuthorizeURL(state, redirectURL string) string
	Exchange(ctx context.Context, code, redirectURL string) (string, error)
	ManageURL() string
}

// Store is the read side of local state
type Store interface {
	Ping(ctx context.Context) error
	ListTrainings(ctx context.Context, username string) ([]model.TrainedModel, error)
	ListRuns(ctx context.Context, limit int) ([]*model.Run, error)
}

// Server represents the web server
type Server struct {
	httpServer *http.Server
	reconciler Reconciler
	tracker    Tracker
	store      Store
	sessions   *session.Store
	config     Config
	logger     *slog.Logger
	handler    http.Handler
}

// New creates a new web server
func New(config Config, reconciler Reconciler, tracker Tracker, store Store, sessions *session.Store) *Server {
	config.BaseURL = strings.TrimSuffix(config.BaseURL, "/")

	s := &Server{
		reconciler: reconciler,
		tracker:    tracker,
		store:      store,
		sessions:   sessions,
		config:     config,
		logger:     slog.Default(),
	}

	s.buildHandler()

	return s
}

// WithLogger sets a custom logger
func (s *Server) WithLogger(logger *slog.Logger) *Server {
	s.logger = logger
	s.buildHandler()

	return s
}

func (s *Server) buildHandler() {
	mux := http.NewServeMux()
	s.setupRoutes(mux)

	s.handler = s.loggingMiddleware(s.recoveryMiddleware(mux))
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	s.logger.Info("web server starting", slog.String("addr", listener.Addr().String()))

	errCh := make(chan error, 1)

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}

		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	return s.Shutdown(context.Background()) //nolint:contextcheck // parent context cancelled, use background for shutdown
}

// Shutdown gracefully shuts down the web server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	s.logger.Info("shutting down web server")

	return s.httpServer.Shutdown(shutdownCtx)
}

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.logger.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

// recoveryMiddleware turns handler panics into 500 responses
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				s.logger.Error("panic recovered",
					slog.String("path", r.URL.Path),
					slog.Any("panic", p),
				)

				s.jsonError(w, "internal server error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
