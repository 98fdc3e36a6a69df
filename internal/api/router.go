package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"flight-arcade/internal/game"
	"flight-arcade/internal/session"
)

// SessionStore is the subset of session.Manager the API uses.
type SessionStore interface {
	Create(opts session.Options) (*session.Session, error)
	Get(id string) (*session.Session, bool)
	Remove(id string) bool
	List() []session.Info
	Stats() map[string]interface{}
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
// Example usage in tests:
//
//	cfg := api.RouterConfig{
//	    Sessions: session.NewManager(ctx, session.Config{}, 4),
//	    RateLimitConfig: &api.RateLimitConfig{
//	        RequestsPerSecond: 1000, // High limit for tests
//	        Burst:             1000,
//	    },
//	}
//	router := api.NewRouter(cfg)
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Sessions owns the running games (required)
	Sessions SessionStore

	// Tokens signs play tokens. Nil creates a signer with a random key.
	Tokens *TokenSigner

	// AdminToken enables the admin routes when non-empty.
	AdminToken string

	// Labels and Tuning are served read-only to clients.
	Labels []string
	Tuning game.Tuning

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is only used if RateLimiter is nil.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins lists allowed browser origins for CORS and WebSocket.
	// If nil, only localhost origins are allowed.
	CORSOrigins []string

	// Play configures the WebSocket endpoint.
	Play PlayConfig

	// SecureCookies marks the session cookie Secure (HTTPS deployments).
	SecureCookies bool

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool
}

// DefaultCORSOrigins allow local development only.
var DefaultCORSOrigins = []string{
	"http://localhost:*",
	"http://127.0.0.1:*",
}

type routerHandlers struct {
	sessions   SessionStore
	tokens     *TokenSigner
	adminToken string
	labels     []string
	tuning     game.Tuning
	secure     bool

	limiter *IPRateLimiter
	play    *PlayHub
}

// NewRouter constructs the HTTP router with all middleware and routes.
// The only goroutine it may start is the rate limiter cleanup, when no
// RateLimiter is supplied.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - Order matters!
	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	// Rate limiting (BEFORE CORS to reject early and save CPU)
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = DefaultCORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", SessionTokenHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	tokens := cfg.Tokens
	if tokens == nil {
		tokens = NewTokenSigner("")
	}
	labels := cfg.Labels
	if len(labels) == 0 {
		labels = game.DefaultLabels
	}
	tuning := cfg.Tuning
	if tuning == (game.Tuning{}) {
		tuning = game.DefaultTuning()
	}

	h := &routerHandlers{
		sessions:   cfg.Sessions,
		tokens:     tokens,
		adminToken: cfg.AdminToken,
		labels:     labels,
		tuning:     tuning,
		secure:     cfg.SecureCookies,
		limiter:    rateLimiter,
		play:       NewPlayHub(cfg.Sessions, tokens, NewOriginMatcher(corsOrigins), cfg.Play),
	}

	r.Get("/health", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/labels", h.handleGetLabels)
		r.Get("/tuning", h.handleGetTuning)
		r.With(AdminAuthMiddleware(cfg.AdminToken)).Get("/stats", h.handleStats)

		r.Route("/sessions", func(r chi.Router) {
			r.With(AdminAuthMiddleware(cfg.AdminToken)).Get("/", h.handleListSessions)
			r.Post("/", h.handleCreateSession)

			r.Route("/{id}", func(r chi.Router) {
				r.Use(SessionAccessMiddleware(cfg.Sessions, tokens, cfg.AdminToken))
				r.Get("/", h.handleGetSession)
				r.Delete("/", h.handleDeleteSession)
				r.Post("/restart", h.handleRestart)
				r.Post("/input", h.handleInput)
				r.Get("/frame.png", h.handleFrame)
			})
		})
	})

	r.Get("/ws/play", h.play.HandlePlay)

	return r
}
