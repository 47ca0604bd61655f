// Package server sets up the HTTP server, router, and all route definitions.
//
// This is the composition root: New() builds the whole dependency chain
//
//	sqlite.DB → QuotaService ┐
//	github.Client            ├→ GraphService → GraphHandler
//	                         ┘
//	sqlite.DB → AuthService → AuthHandler
//
// in one place, so no other package constructs its own dependencies.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/forklens/internal/auth"
	"github.com/sakif/forklens/internal/config"
	"github.com/sakif/forklens/internal/github"
	"github.com/sakif/forklens/internal/handler"
	"github.com/sakif/forklens/internal/middleware"
	sqliteRepo "github.com/sakif/forklens/internal/repository/sqlite"
	"github.com/sakif/forklens/internal/service"
)

// Server owns the router, the database connection, and the rate limiter's
// background goroutine; Start() releases all of them on shutdown.
type Server struct {
	router  *chi.Mux
	config  config.Config
	logger  *slog.Logger
	db      *sqliteRepo.DB
	limiter *middleware.RateLimiter
}

// New creates a Server with the given config and wires the full dependency
// graph. Auth routes are only registered when a JWT secret and GitHub OAuth
// credentials are configured — without them the server still serves the
// anonymous fork path and the preview endpoint.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		limiter: middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(), logger),
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		s.limiter.Stop()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures middleware and all route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /healthz                  → liveness
//	GET    /auth/github/login        → redirect to GitHub
//	GET    /auth/github/callback     → complete OAuth, set session cookie
//	POST   /auth/logout              → clear session cookie
//	GET    /api/og                   → preview PNG (public, pure)
//	GET    /api/forks/{owner}/{repo} → fork report (optional auth)
//	GET    /api/me                   → current user + quota (auth)
//	GET    /api/graphs               → list saved graphs (auth)
//	POST   /api/graphs               → save a graph (auth)
//	DELETE /api/graphs/{id}          → delete a saved graph (auth)
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// The preview card has no dependencies at all.
	previewHandler := handler.NewPreviewHandler(s.logger)
	s.router.Get("/api/og", previewHandler.HandlePreview)

	// Fork data pipeline.
	fetcher := github.New(s.config.GitHubToken, s.config.ForkFetchLimit, s.config.FetchTimeout, s.logger)
	quotaSvc := service.NewQuotaService(s.db, s.config.DailySearchLimit, s.logger)
	graphSvc := service.NewGraphService(s.db, s.db, fetcher, quotaSvc, service.GraphConfig{
		FreshnessWindow:     s.config.FreshnessWindow,
		ActiveThresholdDays: s.config.ActiveThresholdDays,
		SavedGraphCap:       s.config.SavedGraphCap,
		DemoRepo:            s.config.DemoRepo,
		DemoCacheTTL:        s.config.DemoCacheTTL,
	}, s.logger)
	graphHandler := handler.NewGraphHandler(graphSvc, s.logger)

	// Auth is optional at deploy time: without a secret the service is
	// anonymous-only.
	var tokens *auth.TokenService
	if s.config.JWTSecret != "" {
		var err error
		tokens, err = auth.NewTokenService(s.config.JWTSecret)
		if err != nil {
			return fmt.Errorf("creating token service: %w", err)
		}
	} else {
		s.logger.Warn("JWT_SECRET not set — authentication is disabled")
	}

	if tokens != nil && s.config.GitHubClientID != "" && s.config.GitHubClientSecret != "" {
		provider := auth.NewGitHubProvider(
			s.config.GitHubClientID,
			s.config.GitHubClientSecret,
			s.config.GitHubCallbackURL,
		)
		authSvc := service.NewAuthService(s.db, tokens, s.logger)
		authHandler := handler.NewAuthHandler(provider, authSvc, s.config.DailySearchLimit, s.logger)

		s.router.Get("/auth/github/login", authHandler.HandleGitHubLogin)
		s.router.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
		s.router.Post("/auth/logout", authHandler.HandleLogout)

		s.router.Route("/api", func(r chi.Router) {
			r.Use(auth.OptionalAuth(tokens))
			r.Use(s.limiter.Middleware())

			r.Get("/forks/{owner}/{repo}", graphHandler.HandleGetForks)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAuth(tokens))
				r.Get("/me", authHandler.HandleMe)
				r.Get("/graphs", graphHandler.HandleList)
				r.Post("/graphs", graphHandler.HandleSave)
				r.Delete("/graphs/{id}", graphHandler.HandleDelete)
			})
		})
	} else {
		if tokens != nil {
			s.logger.Warn("GitHub OAuth credentials not set — sign-in routes disabled")
		}
		s.router.Route("/api", func(r chi.Router) {
			r.Use(s.limiter.Middleware())
			r.Get("/forks/{owner}/{repo}", graphHandler.HandleGetForks)
		})
	}

	return nil
}

// Start starts the HTTP server and blocks until shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new connections
// 2. Wait up to 30s for in-flight requests
// 3. Stop the rate limiter's cleanup goroutine
// 4. Close the database (flushes WAL, releases the file lock)
func (s *Server) Start() error {
	defer s.db.Close()
	defer s.limiter.Stop()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
			slog.String("demoRepo", s.config.DemoRepo),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// Router exposes the configured router for handler-level tests.
func (s *Server) Router() http.Handler {
	return s.router
}
