package api

import (
	"errors"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"flight-arcade/internal/game"
)

// Metrics with bounded cardinality (no per-session labels)
var (
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arcade_tick_duration_seconds",
		Help:    "Time spent in one loop frame (update + render + publish)",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
	})

	renderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arcade_render_duration_seconds",
		Help:    "Time spent rasterizing a frame",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.02},
	})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arcade_sessions_active",
		Help: "Sessions currently running",
	})

	obstaclesSpawned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arcade_obstacles_spawned_total",
		Help: "Obstacles spawned across all sessions",
	})

	playerHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arcade_player_hits_total",
		Help: "Collisions between the plane and an obstacle",
	})

	gamesOver = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arcade_games_over_total",
		Help: "Games that ran out of lives",
	})

	framesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arcade_frames_dropped_total",
		Help: "Outbound frames dropped because a viewer fell behind",
	}, []string{"kind"}) // Bounded: "state", "image"

	// DoS detection metrics - use ONLY bounded label values
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arcade_connection_rejected_total",
		Help: "Connections rejected by rate limiter or origin check",
	}, []string{"reason"}) // Bounded: "rate_limit", "origin", "ws_total_limit", "ws_ip_limit", "ws_input"

	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arcade_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"}) // endpoint is the route pattern, not the URL

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arcade_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arcade_websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arcade_websocket_messages_total",
		Help: "Total WebSocket messages sent",
	})
)

// PromMetrics implements session.Metrics on the package collectors.
type PromMetrics struct{}

func (PromMetrics) ObserveTick(d time.Duration)   { tickDuration.Observe(d.Seconds()) }
func (PromMetrics) ObserveRender(d time.Duration) { renderDuration.Observe(d.Seconds()) }
func (PromMetrics) SessionStarted()               { activeSessions.Inc() }
func (PromMetrics) SessionEnded()                 { activeSessions.Dec() }
func (PromMetrics) ObstacleSpawned()              { obstaclesSpawned.Inc() }
func (PromMetrics) PlayerHit()                    { playerHits.Inc() }
func (PromMetrics) GameOver()                     { gamesOver.Inc() }
func (PromMetrics) FrameDropped(kind string)      { framesDropped.WithLabelValues(kind).Inc() }

// ObservabilityConfig configures the debug server
type ObservabilityConfig struct {
	Enabled       bool
	ListenAddr    string // Loopback only unless AllowExternal
	AllowExternal bool
	BasicAuthUser string // Optional basic auth
	BasicAuthPass string
}

// DefaultObservabilityConfig returns safe defaults
func DefaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060",
	}
}

// RegisterEventLog exports the event log counters.
// Registering a second log is a no-op.
func RegisterEventLog(el *game.EventLog) {
	collectors := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "arcade_event_log_total",
			Help: "Events accepted by the event log",
		}, func() float64 { return float64(el.Total()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "arcade_event_log_dropped_total",
			Help: "Events dropped by rate limiting or a full buffer",
		}, func() float64 { return float64(el.Dropped()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "arcade_event_log_pending",
			Help: "Events waiting to be written",
		}, func() float64 { return float64(el.Stats().Pending) }),
	}
	for _, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				log.Printf("⚠️ Event log metrics: %v", err)
			}
		}
	}
}

// isLoopback reports whether addr binds to a loopback host only.
func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// DebugHandler returns the pprof/metrics/health mux.
func DebugHandler(cfg ObservabilityConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if cfg.BasicAuthUser != "" {
		creds := map[string]string{cfg.BasicAuthUser: cfg.BasicAuthPass}
		return middleware.BasicAuth("debug", creds)(mux)
	}
	return mux
}

// StartDebugServer starts the internal observability server on its own
// goroutine. Non-loopback addresses are forced to 127.0.0.1 unless
// AllowExternal is set.
func StartDebugServer(cfg ObservabilityConfig) *http.Server {
	if !cfg.Enabled {
		log.Println("📊 Debug server disabled")
		return nil
	}

	if !isLoopback(cfg.ListenAddr) && !cfg.AllowExternal {
		log.Printf("⚠️ Debug server forced to localhost (was %s)", cfg.ListenAddr)
		cfg.ListenAddr = DefaultObservabilityConfig().ListenAddr
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           DebugHandler(cfg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("📊 Debug server starting on %s", cfg.ListenAddr)
		log.Printf("   - pprof:   http://%s/debug/pprof/", cfg.ListenAddr)
		log.Printf("   - metrics: http://%s/metrics", cfg.ListenAddr)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("⚠️ Debug server error: %v", err)
		}
	}()
	return srv
}

// metricsMiddleware records latency per route pattern.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				endpoint = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RecordRequest(r.Method, endpoint, status, time.Since(start))
	})
}

// RecordConnectionRejected increments the rejection counter
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, endpoint string, status int, duration time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	requestTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
}

// UpdateWSConnections updates WebSocket connection count
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// IncrementWSMessages increments WebSocket message counter
func IncrementWSMessages() {
	wsMessagesTotal.Inc()
}
