// Package router monta o pipeline de admissão na ordem fixa exigida pelo serviço.
package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/unrolled/secure"

	"github.com/JeanGrijp/identity-gate/internal/adapters/http/handlers"
	"github.com/JeanGrijp/identity-gate/internal/adapters/http/middleware"
	"github.com/JeanGrijp/identity-gate/internal/core/ports"
)

const (
	AuthPrefix   = "/api/auth"
	RegisterPath = AuthPrefix + "/register"
)

type Config struct {
	Logger   *slog.Logger
	Errors   *middleware.ErrorHandler
	Resolver middleware.IdentityResolver

	// Global é aplicado a todas as rotas; Sensitive apenas ao cadastro.
	Global          ports.Limiter
	Sensitive       ports.Limiter
	SensitiveWindow time.Duration

	Routes             handlers.AuthRoutes
	CORSAllowedOrigins []string
	MaxBodyBytes       int64
}

// New devolve o handler HTTP público. Ordem dos estágios:
// request id, captura de falhas, cabeçalhos de segurança, CORS, limite de corpo,
// log, limitador global, limitador sensível (só no cadastro), content-type e rotas.
func New(cfg Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Errors == nil {
		cfg.Errors = middleware.NewErrorHandler(cfg.Logger)
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	routes := cfg.Routes.WithDefaults()

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(cfg.Errors.Recover)
	r.Use(secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		STSSeconds:            15552000,
		STSIncludeSubdomains:  true,
	}).Handler)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{"RateLimit-Limit", "RateLimit-Remaining", "RateLimit-Reset", "RateLimit-Policy", "Retry-After", middleware.RequestIDHeader},
		MaxAge:         300,
	}))
	r.Use(chimiddleware.RequestSize(cfg.MaxBodyBytes))
	r.Use(middleware.RequestLogger(cfg.Logger, cfg.Resolver))
	r.Use(middleware.NewRateLimiterMiddleware(cfg.Global, cfg.Resolver, cfg.Errors))

	sensitive := middleware.NewRateLimiterMiddleware(cfg.Sensitive, cfg.Resolver, cfg.Errors,
		middleware.WithStandardHeaders(cfg.SensitiveWindow))
	// O 415 só é emitido depois dos limitadores: todo corpo rejeitado também conta.
	jsonOnly := chimiddleware.AllowContentType("application/json")

	r.Route(AuthPrefix, func(r chi.Router) {
		r.With(sensitive, jsonOnly).Post("/register", routes.Register.ServeHTTP)
		r.With(jsonOnly).Post("/login", routes.Login.ServeHTTP)
		r.With(jsonOnly).Post("/refresh-token", routes.RefreshToken.ServeHTTP)
		r.With(jsonOnly).Post("/logout", routes.Logout.ServeHTTP)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
	})

	return r
}

type AdminConfig struct {
	Metrics            http.Handler
	Store              handlers.Pinger
	Diagnostics        http.Handler
	DiagnosticsEnabled bool
}

// NewAdmin devolve o handler do listener administrativo (métricas, saúde, diagnóstico).
func NewAdmin(cfg AdminConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.NoCache)

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}
	if cfg.Store != nil {
		r.Get("/healthz", handlers.Health(cfg.Store, 2*time.Second))
	}
	if cfg.DiagnosticsEnabled && cfg.Diagnostics != nil {
		r.Method(http.MethodGet, "/debug/ratelimit", cfg.Diagnostics)
	}
	return r
}
