package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	v1 "github.com/gosuda/evidra/internal/api/v1"
	"github.com/gosuda/evidra/internal/api/ws"
	"github.com/gosuda/evidra/internal/auth"
	"github.com/gosuda/evidra/internal/config"
	"github.com/gosuda/evidra/internal/evidence"
	"github.com/gosuda/evidra/internal/registry"
	"github.com/gosuda/evidra/internal/server/middleware"
	"github.com/gosuda/evidra/internal/store/postgres"
	redisstore "github.com/gosuda/evidra/internal/store/redis"
)

// Services bundles the application services the routes dispatch to.
type Services struct {
	Auth     *auth.Service
	Evidence *evidence.Service
	Registry *registry.Service
	Hub      *ws.Hub
	// Metrics is the registry served on the metrics path. Nil disables it.
	Metrics *prometheus.Registry
}

// Server is the HTTP server that wires all application routes and middleware.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	store      *postgres.Store
	pubsub     *redisstore.PubSub
	cfg        *config.Config
}

// New creates a Server with all routes wired. ctx bounds the background
// sweepers of the rate limiters.
func New(ctx context.Context, cfg *config.Config, store *postgres.Store, pubsub *redisstore.PubSub, svc Services) *Server {
	v1.UseProblemErrors()

	router := chi.NewRouter()

	// Global middleware stack.
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(middleware.Correlation())
	router.Use(chimw.Logger)
	router.Use(chimw.Recoverer)
	router.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID", middleware.CorrelationHeader},
		ExposedHeaders:   []string{"X-Request-ID", middleware.CorrelationHeader, "X-Content-SHA256"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	s := &Server{
		router: router,
		store:  store,
		pubsub: pubsub,
		cfg:    cfg,
		httpServer: &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}

	authenticate := middleware.Auth(cfg.JWT.Secret, store.Users())
	limits := v1.Limits{
		MaxPayloadBytes: cfg.Evidence.MaxPayloadBytes,
		MaxFileBytes:    cfg.Evidence.MaxFileBytes,
	}

	// Mount API routes on /api/v1 with two sub-groups:
	// 1. Unauthenticated group for auth endpoints, limited per client IP.
	// 2. Authenticated, tenant-scoped group for everything else.
	router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(ctx, float64(cfg.Server.IPRPS), cfg.Server.IPRPS*2))

			authConfig := huma.DefaultConfig("Evidra Auth API", "1.0.0")
			authConfig.Servers = []*huma.Server{{URL: "/api/v1"}}
			// The main API owns the docs endpoints.
			authConfig.OpenAPIPath = ""
			authConfig.DocsPath = ""
			authAPI := humachi.New(r, authConfig)
			registerAuthRoutes(authAPI, store, svc.Auth)
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(middleware.RequireTenant())
			r.Use(middleware.RateLimit(ctx, float64(cfg.Server.TenantRPS), cfg.Server.TenantRPS*2))

			apiConfig := huma.DefaultConfig("Evidra API", "1.0.0")
			apiConfig.Servers = []*huma.Server{{URL: "/api/v1"}}
			api := humachi.New(r, apiConfig)
			registerAPIRoutes(api, store, svc, limits)
		})
	})

	// Live audit event stream.
	router.Route("/ws", func(r chi.Router) {
		r.Use(authenticate)
		r.Use(middleware.RequireTenant())
		registerWSRoutes(r, svc.Hub)
	})

	// Counters span all tenants, so scraping needs an admin credential.
	if cfg.Metrics.Enabled && svc.Metrics != nil {
		router.With(authenticate, middleware.RequireAdmin()).
			Handle(cfg.Metrics.Path, promhttp.HandlerFor(svc.Metrics, promhttp.HandlerOpts{}))
		log.Info().Str("path", cfg.Metrics.Path).Msg("prometheus metrics enabled")
	}

	// Health check (unauthenticated).
	router.Get("/healthz", healthHandler(
		check{name: "postgres", ping: store.Ping},
		check{name: "redis", ping: pubsub.Ping},
	))

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start begins listening for HTTP requests.
func (s *Server) Start(_ context.Context) error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.Start: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}
