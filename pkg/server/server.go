// Package server provides a public API for embedding the work plan service.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/robert-malhotra/ewoc-work-plan/internal/api"
	"github.com/robert-malhotra/ewoc-work-plan/internal/app"
	"github.com/robert-malhotra/ewoc-work-plan/internal/config"
)

// Options configures the work plan server.
type Options struct {
	// Config is the loaded service configuration (required).
	Config *config.Config

	// Logger is the slog logger to use.
	// Default: slog.Default()
	Logger *slog.Logger
}

// Server is a work plan service that can be embedded in another application.
type Server struct {
	router chi.Router
	app    *app.App
}

// New creates a work plan server. The plan database and NATS are used when
// configured; without a database plans are returned but not stored.
func New(ctx context.Context, opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("server: config is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	a, err := app.New(ctx, opts.Config, opts.Logger)
	if err != nil {
		return nil, err
	}

	router, err := build(ctx, a)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	return &Server{router: router, app: a}, nil
}

func build(ctx context.Context, a *app.App) (chi.Router, error) {
	logger := a.Logger()
	cfg := a.Config()

	assembler, err := a.Assembler("")
	if err != nil {
		return nil, err
	}
	policy, err := a.Policy("")
	if err != nil {
		return nil, err
	}
	overrides, err := a.OrbitOverrides("")
	if err != nil {
		return nil, err
	}

	publisher, err := a.Publisher()
	if err != nil {
		return nil, err
	}

	handlers := api.NewHandlers(assembler, api.Defaults{
		Policy:         policy,
		S1Provider:     cfg.Plan.S1Provider,
		L8Provider:     cfg.Plan.L8Provider,
		OrbitOverrides: overrides,
	}, logger).
		WithPublisher(publisher).
		WithRecorder(a.Metrics())

	st, err := a.Store(ctx)
	switch {
	case errors.Is(err, app.ErrDisabled):
		logger.Info("plan database not configured, plans will not be stored")
	case err != nil:
		return nil, err
	default:
		handlers.WithStore(st)
	}

	return api.NewRouter(handlers, logger, api.RouterOptions{
		Gatherer:   a.Registry(),
		Middleware: []func(http.Handler) http.Handler{a.Metrics().Middleware},
	}), nil
}

// Router returns the chi.Router for mounting in another application.
func (s *Server) Router() chi.Router {
	return s.router
}

// Close releases the database, NATS and tracing resources.
func (s *Server) Close(ctx context.Context) error {
	return s.app.Close(ctx)
}

// ListenAndServe serves the router on sc.Address() until ctx is cancelled,
// then shuts down gracefully within sc.ShutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, sc config.ServerConfig, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	srv := &http.Server{
		Addr:         sc.Address(),
		Handler:      s.router,
		ReadTimeout:  sc.ReadTimeout,
		WriteTimeout: sc.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), sc.ShutdownTimeout)
	defer cancel()

	logger.Info("shutting down server", "timeout", sc.ShutdownTimeout)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
