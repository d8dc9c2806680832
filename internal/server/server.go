// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the wiring layer. It connects the store, the services,
// the submission workflow and the handlers, and decides:
//   - which URL patterns map to which handler functions
//   - which routes need a session (RequireAuth) and which only read it
//     (OptionalAuth)
//   - how the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → Server.New
//	  sqlstore.DB (every repository) ─┬→ services ─→ handlers
//	  storage.FileStore ──────────────┤
//	  scoring.Client ─────────────────┴→ workflow.Engine ─→ DraftHandler
//	  auth.TokenService + SecretHasher + Mailer → auth.Gateway → AuthHandler
//
// This is the composition root: everything is built here and nowhere else.
package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/planet-hub/internal/auth"
	"github.com/sakif/planet-hub/internal/config"
	"github.com/sakif/planet-hub/internal/handler"
	"github.com/sakif/planet-hub/internal/middleware"
	"github.com/sakif/planet-hub/internal/repository/sqlstore"
	"github.com/sakif/planet-hub/internal/scoring"
	"github.com/sakif/planet-hub/internal/service"
	"github.com/sakif/planet-hub/internal/storage"
	"github.com/sakif/planet-hub/internal/workflow"
	"github.com/sakif/planet-hub/web"
)

// shutdownTimeout bounds how long in-flight requests get after SIGINT/SIGTERM.
const shutdownTimeout = 30 * time.Second

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection and the session listener
// subscription. Close releases both; Start calls it on every exit path.
type Server struct {
	router  *chi.Mux
	config  config.Config
	logger  *slog.Logger
	db      *sqlstore.DB
	engine  *workflow.Engine
	release func() // removes the users listener from the gateway
}

// Option customizes New. Tests use it to swap collaborators.
type Option func(*options)

type options struct {
	mailer auth.Mailer
	scorer scoring.Scorer
}

// WithMailer replaces the mailer chosen from the SMTP settings.
func WithMailer(m auth.Mailer) Option {
	return func(o *options) { o.mailer = m }
}

// WithScorer replaces the HTTP scoring client.
func WithScorer(s scoring.Scorer) Option {
	return func(o *options) { o.scorer = s }
}

// New creates a Server from cfg.
//
// WIRING ORDER:
//  1. open the database (migrations run inside sqlstore.New), seed categories
//  2. build object storage, the scoring client and the auth gateway
//  3. build the services; subscribe the users service to session changes
//  4. build the workflow engine and the handlers, then the routes
//
// Any failure closes what was already opened.
func New(cfg config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	// === DATABASE ===
	db, err := sqlstore.New(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		release: func() {},
	}

	if err := s.setup(o); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Server) setup(o options) error {
	cfg := s.config

	if cfg.SeedCategories {
		n, err := s.db.SeedCategories(context.Background(), sqlstore.DefaultCategories)
		if err != nil {
			return fmt.Errorf("seeding categories: %w", err)
		}
		if n > 0 {
			s.logger.Info("categories seeded", slog.Int("count", n))
		}
	}

	// === COLLABORATORS ===
	store, err := storage.NewFileStore(cfg.StoragePath, cfg.StoragePublicURL)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	scorer := o.scorer
	if scorer == nil {
		scorer = scoring.NewClient(cfg.ScoringURL, cfg.ScoringTimeout)
	}
	mailer := o.mailer
	if mailer == nil {
		mailer = newMailer(cfg, s.logger)
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.SessionTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	gateway := auth.NewGateway(tokens, auth.NewSecretHasher(), s.db, s.db, mailer, auth.GatewayConfig{
		BaseURL:      cfg.BaseURL,
		MagicLinkTTL: cfg.MagicLinkTTL,
	}, s.logger)
	if cfg.GoogleEnabled() {
		gateway.RegisterProvider("google", auth.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleCallbackURL))
	}

	// === SERVICES ===
	users := service.NewUserService(s.db, s.logger)
	s.release = gateway.OnSessionChange(users.HandleSessionEvent)

	catalog := service.NewCatalogService(s.db, s.db)
	issues := service.NewIssueService(s.db, s.db, s.db, users, s.logger)
	research := service.NewResearchService(s.db, s.db, s.db, s.db)
	engagement := service.NewEngagementService(s.db, s.db, s.db, users, s.logger)
	dashboard := service.NewDashboardService(users, s.db, s.db, cfg.ImpactWeights)

	s.engine = workflow.NewEngine(workflow.Deps{
		Store:       store,
		Scorer:      scorer,
		Categories:  s.db,
		Issues:      s.db,
		Submissions: s.db,
		Users:       users,
	}, workflow.Options{
		MaxDocumentBytes: cfg.MaxDocumentBytes,
		UploadTimeout:    cfg.UploadTimeout,
		ScoringTimeout:   cfg.ScoringTimeout,
		DraftTTL:         cfg.DraftTTL,
		MaxDraftsPerUser: cfg.MaxDraftsPerUser,
		MaxRetainedBytes: cfg.MaxRetainedBytes,
	}, s.logger)

	// === HANDLERS ===
	pages, err := handler.NewPageHandler(web.Templates(), handler.PageServices{
		Catalog:   catalog,
		Issues:    issues,
		Research:  research,
		Dashboard: dashboard,
	}, cfg.GoogleEnabled(), s.logger)
	if err != nil {
		return fmt.Errorf("creating page handler: %w", err)
	}

	s.routes(gateway, store, routeHandlers{
		auth:     handler.NewAuthHandler(gateway, users, cfg.CookieSecure, s.logger),
		catalog:  handler.NewCatalogHandler(catalog, issues, engagement, s.logger),
		research: handler.NewResearchHandler(research, engagement, s.logger),
		drafts:   handler.NewDraftHandler(s.engine, cfg.MaxDocumentBytes, s.logger),
		dash:     handler.NewDashboardHandler(dashboard),
		pages:    pages,
	})
	return nil
}

// newMailer sends real mail when SMTP_HOST is set and logs links otherwise.
func newMailer(cfg config.Config, logger *slog.Logger) auth.Mailer {
	if cfg.SMTPHost == "" {
		logger.Warn("SMTP_HOST not set, sign-in links will be logged instead of emailed")
		return auth.NewLogMailer(logger)
	}
	return auth.NewSMTPMailer(auth.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		Timeout:  cfg.SMTPTimeout,
	})
}

type routeHandlers struct {
	auth     *handler.AuthHandler
	catalog  *handler.CatalogHandler
	research *handler.ResearchHandler
	drafts   *handler.DraftHandler
	dash     *handler.DashboardHandler
	pages    *handler.PageHandler
}

// routes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET  /static/*, /media/*          → files (CSS/JS, uploaded papers)
//	GET  /healthz                     → database ping
//	     /auth/...                    → magic link, Google OAuth, logout
//	     /api/...                     → JSON API; writes need a session
//	GET  /, /planetary-issues, ...    → server-rendered pages
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID: unique ID per request, picked up by the logger
//  2. RealIP: client IP from proxy headers
//  3. Logger: one line per request
//  4. Recoverer: a panic becomes a 500 instead of a dead connection
//  5. CORS, only when CORS_ORIGINS is set
func (s *Server) routes(gateway *auth.Gateway, store *storage.FileStore, h routeHandlers) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	if len(s.config.CorsOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.CorsOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// === Files ===
	s.router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(s.staticFiles()))))
	s.router.Handle("/media/*", http.StripPrefix("/media/", http.FileServer(http.Dir(store.Root()))))

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := s.db.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})

	// === Auth ===
	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/magic-link", h.auth.HandleMagicLink)
		r.Get("/magic-link/callback", h.auth.HandleMagicLinkCallback)
		r.Get("/google/login", h.auth.HandleGoogleLogin)
		r.Get("/google/callback", h.auth.HandleGoogleCallback)
		r.Post("/logout", h.auth.HandleLogout)
	})

	// === API ===
	s.router.Route("/api", func(r chi.Router) {
		// Public reads.
		r.Get("/session", h.auth.HandleSession)
		r.Get("/categories", h.catalog.HandleListCategories)
		r.Get("/categories/{code}", h.catalog.HandleCategory)
		r.Get("/issues", h.catalog.HandleListIssues)
		r.Get("/issues/{id}", h.catalog.HandleIssue)
		r.Get("/research", h.research.HandleList)
		r.Get("/research/{id}", h.research.HandleGet)
		r.Get("/leaderboard", h.dash.HandleLeaderboard)

		// Everything below acts as the signed-in user.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(gateway))

			r.Get("/me", h.auth.HandleMe)
			r.Get("/dashboard", h.dash.HandleDashboard)
			r.Get("/saved-theories", h.dash.HandleSavedTheories)

			r.Post("/issues", h.catalog.HandleCreateIssue)
			r.Post("/issues/{id}/star", h.catalog.HandleStarIssue)
			r.Post("/issues/{id}/pledge", h.catalog.HandlePledge)
			r.Post("/research/{id}/star", h.research.HandleStar)
			r.Post("/research/{id}/rating", h.research.HandleRate)

			r.Post("/drafts", h.drafts.HandleCreate)
			r.Get("/drafts/{id}", h.drafts.HandleGet)
			r.Post("/drafts/{id}/document", h.drafts.HandleUpload)
			r.Post("/drafts/{id}/score", h.drafts.HandleScore)
			r.Post("/drafts/{id}/submit", h.drafts.HandleSubmit)
			r.Delete("/drafts/{id}", h.drafts.HandleDiscard)
		})
	})

	// === Pages ===
	s.router.Group(func(r chi.Router) {
		r.Use(auth.OptionalAuth(gateway))

		r.Get("/", h.pages.HandleHome)
		r.Get("/planetary-issues", h.pages.HandleCategories)
		r.Get("/planetary-issues/{code}", h.pages.HandleCategory)
		r.Get("/issues/{id}", h.pages.HandleIssue)
		r.Get("/research/{id}", h.pages.HandleResearch)
		r.Get("/launchpad", h.pages.HandleLaunchpad)
		r.Get("/launchpad/new", h.pages.HandleNewResearch)
		r.Get("/launchpad/newissue", h.pages.HandleNewIssue)
		r.Get("/login", h.pages.HandleLogin)
		r.Get("/signup", h.pages.HandleLogin)
		r.Get("/myspace", h.pages.HandleMySpace)
		r.Get("/starboard", h.pages.HandleStarboard)
	})
	s.router.NotFound(auth.OptionalAuth(gateway)(http.HandlerFunc(h.pages.HandleNotFound)).ServeHTTP)
}

// staticFiles serves STATIC_DIR when it exists, so assets can be edited
// without a rebuild, and the embedded copy otherwise.
func (s *Server) staticFiles() fs.FS {
	if info, err := os.Stat(s.config.StaticDir); err == nil && info.IsDir() {
		return os.DirFS(s.config.StaticDir)
	}
	return web.Static()
}

// Handler exposes the router, e.g. to httptest.NewServer.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close unsubscribes the session listener and closes the database.
// It is safe to call more than once.
func (s *Server) Close() error {
	s.release()
	s.release = func() {}
	return s.db.Close()
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. stop accepting new connections
//  2. wait for in-flight requests (30s)
//  3. stop the draft janitor, unsubscribe the listener, close the database
//
// Step 3 runs from defers, so it happens on every exit path.
func (s *Server) Start() error {
	defer s.Close()

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go s.engine.Run(janitorCtx)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.UploadTimeout,
		WriteTimeout: s.config.UploadTimeout + s.config.ScoringTimeout,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", s.config.BaseURL),
			slog.String("database", s.config.DBDriver),
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

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
