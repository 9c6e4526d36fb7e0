// Package server is the composition root: it builds the store, services and
// handlers, mounts them on a chi router and runs the HTTP server with
// graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hypeshelf/hypeshelf/internal/auth"
	"github.com/hypeshelf/hypeshelf/internal/authz"
	"github.com/hypeshelf/hypeshelf/internal/config"
	"github.com/hypeshelf/hypeshelf/internal/handler"
	"github.com/hypeshelf/hypeshelf/internal/identity"
	"github.com/hypeshelf/hypeshelf/internal/middleware"
	sqliteRepo "github.com/hypeshelf/hypeshelf/internal/repository/sqlite"
	"github.com/hypeshelf/hypeshelf/internal/service"
	"github.com/hypeshelf/hypeshelf/internal/upload"
)

// Server owns the database connection and closes it on shutdown.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New opens the database and wires every route. tickets is the upload
// ticket store chosen by the caller (Redis or in-process).
func New(cfg *config.Config, tickets upload.TicketStore, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(tickets); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// setupRoutes mounts:
//
//	GET    /healthz, /metrics
//	GET    /auth/github/login, /auth/github/callback   POST /auth/logout
//	GET    /api/recommendations/public, /api/genres, /api/me/role   (optional auth)
//	GET    /api/recommendations                                      (auth)
//	POST   /api/recommendations   PUT|DELETE /api/recommendations/{id}
//	PUT    /api/recommendations/{id}/staff-pick                      (auth, rate limited)
//	POST   /api/uploads (auth)    POST /api/uploads/{token} (ticket)
//	GET    /api/images/{ref}, /api/images/{ref}/url
//	       /api/admin/...                                            (auth, admin checked in service)
func (s *Server) setupRoutes(tickets upload.TicketStore) error {
	cfg := s.config

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// === Identity ===
	// Without a JWT secret nobody can sign in and protected routes answer 401.
	var tokens *auth.TokenService
	var sessions *service.SessionService
	if cfg.Auth.JWTSecret != "" {
		var err error
		tokens, err = auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
		if err != nil {
			return fmt.Errorf("creating token service: %w", err)
		}
		sessions = service.NewSessionService(tokens, s.logger)
	} else {
		s.logger.Warn("JWT_SECRET not set, sign-in is disabled")
	}

	github := auth.NewGitHubProvider(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, cfg.GitHub.CallbackURL)
	if !github.Configured() {
		s.logger.Warn("GitHub OAuth credentials not set, /auth/github/login is unavailable")
	}

	policy, err := authz.New(s.logger)
	if err != nil {
		return fmt.Errorf("loading authorization policy: %w", err)
	}

	// === Services ===
	gw := service.Gateway{
		Tx:       s.db,
		Resolver: identity.NewResolver(s.db, s.logger),
		Policy:   policy,
	}
	recService := service.NewRecommendationService(gw, s.db, s.logger)
	adminService := service.NewAdminService(gw, s.db, s.logger)
	uploadService := service.NewUploadService(gw, s.db, tickets, service.UploadConfig{
		BaseURL:   cfg.PublicBaseURL,
		TicketTTL: cfg.Upload.TicketTTL,
		MaxBytes:  cfg.Upload.MaxBytes,
	}, s.logger)

	// === Handlers ===
	afterLogin := "/"
	if len(cfg.CORS.AllowedOrigins) > 0 && cfg.CORS.AllowedOrigins[0] != "*" {
		afterLogin = cfg.CORS.AllowedOrigins[0]
	}
	authHandler := handler.NewAuthHandler(github, sessions, afterLogin, !cfg.IsDevelopment(), s.logger)
	recHandler := handler.NewRecommendationHandler(recService, s.logger)
	adminHandler := handler.NewAdminHandler(adminService, s.logger)
	uploadHandler := handler.NewUploadHandler(uploadService, cfg.Upload.MaxBytes, s.logger)

	limit := httprate.LimitByIP(cfg.RateLimit.Requests, cfg.RateLimit.Window)

	// === Routes ===
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/auth", func(r chi.Router) {
		r.Get("/github/login", authHandler.HandleGitHubLogin)
		r.Get("/github/callback", authHandler.HandleGitHubCallback)
		r.Post("/logout", authHandler.HandleLogout)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth.OptionalAuth(tokens))
			r.Get("/recommendations/public", recHandler.HandlePublic)
			r.Get("/genres", recHandler.HandleGenres)
			r.Get("/me/role", recHandler.HandleWhoAmI)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))
			r.Get("/recommendations", recHandler.HandleList)
			r.Get("/admin/users", adminHandler.HandleListUsers)

			r.Group(func(r chi.Router) {
				r.Use(limit)
				r.Post("/recommendations", recHandler.HandleCreate)
				r.Put("/recommendations/{id}", recHandler.HandleUpdate)
				r.Delete("/recommendations/{id}", recHandler.HandleDelete)
				r.Put("/recommendations/{id}/staff-pick", recHandler.HandleStaffPick)
				r.Post("/uploads", uploadHandler.HandleIssueTicket)
				r.Put("/admin/users/{id}/role", adminHandler.HandleChangeRole)
				r.Post("/admin/maintenance/cleanup-users", adminHandler.HandleCleanupUsers)
				r.Post("/admin/maintenance/migrate-users", adminHandler.HandleMigrateUsers)
			})
		})

		r.With(limit).Post("/uploads/{token}", uploadHandler.HandleUpload)
		r.Get("/images/{ref}", uploadHandler.HandleImage)
		r.Get("/images/{ref}/url", uploadHandler.HandleImageURL)
	})

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.db.Ping(ctx); err != nil {
		s.logger.Error("health check: database unreachable", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.Write([]byte(`{"status":"ok"}`))
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests for
// up to 30 seconds and closes the database.
func (s *Server) Start() error {
	defer s.db.Close()

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
			slog.String("url", s.config.PublicBaseURL),
			slog.String("database", s.config.DBPath),
			slog.String("env", s.config.Env),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
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
