package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// Server is the HTTP API server: REST routes plus the play WebSocket.
type Server struct {
	router      *chi.Mux
	rateLimiter *IPRateLimiter

	mu         sync.Mutex
	httpServer *http.Server
}

// NewServer creates a server. Nothing listens until Start.
// cfg.RateLimiter is created here when nil so Shutdown can release it.
func NewServer(cfg RouterConfig) *Server {
	if cfg.RateLimiter == nil {
		rlCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rlCfg = *cfg.RateLimitConfig
		}
		cfg.RateLimiter = NewIPRateLimiter(rlCfg)
	}
	return &Server{
		router:      NewRouter(cfg),
		rateLimiter: cfg.RateLimiter,
	}
}

// Start listens on addr and blocks until Shutdown.
// Returns nil after a graceful shutdown.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second, // websocket upgrades clear this deadline
		IdleTimeout:       120 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	log.Printf("🌐 API server starting on %s", addr)
	log.Printf("🎮 Play: ws://localhost%s/ws/play", addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return nil
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Shutdown stops accepting requests and waits for handlers up to ctx.
// Hijacked WebSocket connections are not tracked by http.Server; they end
// when their sessions are closed.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.rateLimiter.Stop()

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
