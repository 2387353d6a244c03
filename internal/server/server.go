package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hongminglow/nova-be/internal/auth"
	"github.com/hongminglow/nova-be/internal/codes"
	"github.com/hongminglow/nova-be/internal/config"
	"github.com/hongminglow/nova-be/internal/envelope"
	"github.com/hongminglow/nova-be/internal/http/handlers"
	"github.com/hongminglow/nova-be/internal/metrics"
	"github.com/hongminglow/nova-be/internal/middleware"
	"github.com/hongminglow/nova-be/internal/moderation"
	"github.com/hongminglow/nova-be/internal/ratelimit"
	"github.com/hongminglow/nova-be/internal/storage"
	"github.com/hongminglow/nova-be/internal/verification"
)

// Deps are the collaborators the HTTP layer routes into.
type Deps struct {
	Store    storage.Store
	Tokens   *auth.TokenManager
	Cipher   *envelope.Cipher
	Limiter  ratelimit.Limiter
	Ledger   *verification.Ledger
	Issuer   *codes.Issuer
	Gate     *moderation.Gate
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

// Server wraps an http.Server with configured routes.
type Server struct {
	inner *http.Server
}

// New wires up middleware, routes, and returns a ready server.
func New(cfg config.Config, deps Deps) *Server {
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           NewRouter(cfg, deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return &Server{inner: httpServer}
}

func rule(name string, l config.Limit) ratelimit.Rule {
	return ratelimit.Rule{Name: name, Max: l.Max, Window: l.Window}
}

// NewRouter builds the full route tree. Auth routes are rate limited per IP
// before any token work; everything else is authenticated first and then
// limited per user.
func NewRouter(cfg config.Config, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	pinger, _ := deps.Store.(handlers.Pinger)
	handlers.NewHealthHandler(time.Now(), pinger).Register(r)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}
	r.Handle(handlers.UploadURLPrefix+"*", http.StripPrefix(handlers.UploadURLPrefix, http.FileServer(http.Dir(cfg.UploadDir))))

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(middleware.RateLimit(deps.Limiter, rule("auth", cfg.AuthLimit), middleware.ByIP, deps.Metrics))
			r.Use(middleware.DecryptBody(deps.Cipher, deps.Metrics))
			handlers.NewAuthHandler(deps.Store, deps.Tokens).Register(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(deps.Tokens, deps.Store))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimit(deps.Limiter, rule("upload", cfg.UploadLimit), middleware.ByUser, deps.Metrics))
				handlers.NewUploadHandler(cfg.UploadDir, cfg.MaxUploadBytes).Register(r)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimit(deps.Limiter, rule("general", cfg.GeneralLimit), middleware.ByUser, deps.Metrics))

				handlers.NewUserHandler(deps.Store, deps.Ledger).Register(r)
				handlers.NewCodeHandler(deps.Issuer).Register(r)
				handlers.NewPostHandler(deps.Gate).Register(r)
				handlers.NewProfileChangeHandler(deps.Gate).Register(r)

				sendLimit := middleware.RateLimit(deps.Limiter, rule("message", cfg.MessageLimit), middleware.ByUser, deps.Metrics)
				handlers.NewMessageHandler(deps.Gate, sendLimit).Register(r)
			})
		})
	})

	return r
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
