package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures the IP-based rate limiter
type RateLimitConfig struct {
	RequestsPerSecond float64       // Requests allowed per second per IP
	Burst             int           // Maximum burst size
	CleanupInterval   time.Duration // How often to clean up stale limiters
}

// DefaultRateLimitConfig returns production-safe defaults.
// Gameplay input goes over the WebSocket, so HTTP traffic stays low.
var DefaultRateLimitConfig = RateLimitConfig{
	RequestsPerSecond: 20,
	Burst:             40,
	CleanupInterval:   5 * time.Minute,
}

// RateLimitStats counts limiter decisions.
type RateLimitStats struct {
	Allowed  uint64 `json:"allowed"`
	Rejected uint64 `json:"rejected"`
	Clients  int    `json:"clients"`
}

// keyedLimiters keeps one token bucket per key and forgets idle keys.
type keyedLimiters struct {
	limit rate.Limit
	burst int
	m     sync.Map // key -> *keyedLimiter
}

type keyedLimiter struct {
	*rate.Limiter
	lastSeen atomic.Int64 // unix nano
}

func (k *keyedLimiters) get(key string) *rate.Limiter {
	now := time.Now().UnixNano()
	if v, ok := k.m.Load(key); ok {
		l := v.(*keyedLimiter)
		l.lastSeen.Store(now)
		return l.Limiter
	}
	l := &keyedLimiter{Limiter: rate.NewLimiter(k.limit, k.burst)}
	l.lastSeen.Store(now)
	v, _ := k.m.LoadOrStore(key, l)
	return v.(*keyedLimiter).Limiter
}

// prune drops keys not seen since cutoff.
func (k *keyedLimiters) prune(cutoff time.Time) {
	k.m.Range(func(key, v interface{}) bool {
		if v.(*keyedLimiter).lastSeen.Load() < cutoff.UnixNano() {
			k.m.Delete(key)
		}
		return true
	})
}

func (k *keyedLimiters) len() int {
	n := 0
	k.m.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// IPRateLimiter limits HTTP requests per client IP.
type IPRateLimiter struct {
	clients  keyedLimiters
	interval time.Duration
	stopChan chan struct{}
	stopOnce sync.Once

	allowed  atomic.Uint64
	rejected atomic.Uint64
}

// NewIPRateLimiter creates a limiter and starts its cleanup goroutine.
// Call Stop to end it.
func NewIPRateLimiter(cfg RateLimitConfig) *IPRateLimiter {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultRateLimitConfig.CleanupInterval
	}
	rl := &IPRateLimiter{
		clients:  keyedLimiters{limit: rate.Limit(cfg.RequestsPerSecond), burst: cfg.Burst},
		interval: cfg.CleanupInterval,
		stopChan: make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Stop ends the cleanup goroutine
func (rl *IPRateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopChan) })
}

func (rl *IPRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.interval)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stopChan:
			return
		case now := <-ticker.C:
			rl.cleanup(now.Add(-2 * rl.interval))
		}
	}
}

func (rl *IPRateLimiter) cleanup(cutoff time.Time) {
	rl.clients.prune(cutoff)
}

// Allow spends one token from ip's bucket.
func (rl *IPRateLimiter) Allow(ip string) bool {
	if rl.clients.get(ip).Allow() {
		rl.allowed.Add(1)
		return true
	}
	rl.rejected.Add(1)
	return false
}

// Middleware rejects requests over the per-IP rate with 429
func (rl *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(GetClientIP(r)) {
			RecordConnectionRejected("rate_limit")
			w.Header().Set("Retry-After", "1")
			writeError(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Stats returns the decision counters and the number of tracked clients.
func (rl *IPRateLimiter) Stats() RateLimitStats {
	return RateLimitStats{
		Allowed:  rl.allowed.Load(),
		Rejected: rl.rejected.Load(),
		Clients:  rl.clients.len(),
	}
}

// GetClientIP extracts the client IP from an HTTP request.
// X-Forwarded-For is trusted, so run behind a proxy that sets it.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// WebSocketRateLimiter caps concurrent play connections per IP.
type WebSocketRateLimiter struct {
	open     sync.Map // ip -> *atomic.Int32
	maxPerIP int32
	rejected atomic.Uint64
}

// NewWebSocketRateLimiter creates a connection limiter.
func NewWebSocketRateLimiter(maxPerIP int) *WebSocketRateLimiter {
	return &WebSocketRateLimiter{maxPerIP: int32(maxPerIP)}
}

func (wrl *WebSocketRateLimiter) counter(ip string) *atomic.Int32 {
	v, _ := wrl.open.LoadOrStore(ip, new(atomic.Int32))
	return v.(*atomic.Int32)
}

// Allow reserves a connection slot for ip.
func (wrl *WebSocketRateLimiter) Allow(ip string) bool {
	c := wrl.counter(ip)
	for {
		n := c.Load()
		if n >= wrl.maxPerIP {
			wrl.rejected.Add(1)
			return false
		}
		if c.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release frees a slot reserved by Allow.
func (wrl *WebSocketRateLimiter) Release(ip string) {
	if v, ok := wrl.open.Load(ip); ok {
		v.(*atomic.Int32).Add(-1)
	}
}

// Open returns the number of connections held by ip.
func (wrl *WebSocketRateLimiter) Open(ip string) int {
	if v, ok := wrl.open.Load(ip); ok {
		return int(v.(*atomic.Int32).Load())
	}
	return 0
}

// Rejected returns how many connections were refused.
func (wrl *WebSocketRateLimiter) Rejected() uint64 {
	return wrl.rejected.Load()
}

// OriginMatcher checks browser origins against the configured CORS list.
// Patterns use the go-chi/cors syntax: exact origins, "*", or a single
// wildcard such as "http://localhost:*".
type OriginMatcher struct {
	patterns []string
}

// NewOriginMatcher builds a matcher; origins are compared case-insensitively
func NewOriginMatcher(patterns []string) *OriginMatcher {
	m := &OriginMatcher{patterns: make([]string, 0, len(patterns))}
	for _, p := range patterns {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			m.patterns = append(m.patterns, p)
		}
	}
	return m
}

// Allowed reports whether origin matches a pattern
func (m *OriginMatcher) Allowed(origin string) bool {
	origin = strings.ToLower(origin)
	if origin == "" {
		return false
	}
	for _, p := range m.patterns {
		if p == "*" || p == origin {
			return true
		}
		if prefix, suffix, ok := strings.Cut(p, "*"); ok {
			if len(origin) >= len(prefix)+len(suffix) &&
				strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) {
				return true
			}
		}
	}
	return false
}
