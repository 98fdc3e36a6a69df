package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"flight-arcade/internal/session"
	"flight-arcade/internal/streaming"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 1024
)

// PlayConfig limits the play endpoint.
type PlayConfig struct {
	MaxConnections  int     // Total WebSocket connections
	MaxPerIP        int     // Connections per client IP
	InputsPerSecond float64 // Per-connection input rate
	InputBurst      int
}

// DefaultPlayConfig returns production limits.
func DefaultPlayConfig() PlayConfig {
	return PlayConfig{
		MaxConnections:  500,
		MaxPerIP:        10,
		InputsPerSecond: 120,
		InputBurst:      60,
	}
}

func (c PlayConfig) withDefaults() PlayConfig {
	d := DefaultPlayConfig()
	if c.MaxConnections <= 0 {
		c.MaxConnections = d.MaxConnections
	}
	if c.MaxPerIP <= 0 {
		c.MaxPerIP = d.MaxPerIP
	}
	if c.InputsPerSecond <= 0 {
		c.InputsPerSecond = d.InputsPerSecond
	}
	if c.InputBurst <= 0 {
		c.InputBurst = d.InputBurst
	}
	return c
}

// welcomeMessage is the first text message on a play connection.
type welcomeMessage struct {
	Type      string       `json:"type"`
	SessionID string       `json:"sessionId"`
	Token     string       `json:"token"`
	Session   session.Info `json:"session"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// PlayHub serves /ws/play: one connection drives one session.
type PlayHub struct {
	sessions SessionStore
	tokens   *TokenSigner
	cfg      PlayConfig
	upgrader websocket.Upgrader
	limiter  *WebSocketRateLimiter
	active   atomic.Int32
}

// NewPlayHub creates the play endpoint. Browsers must send an Origin
// accepted by origins; clients without an Origin header are allowed.
func NewPlayHub(sessions SessionStore, tokens *TokenSigner, origins *OriginMatcher, cfg PlayConfig) *PlayHub {
	cfg = cfg.withDefaults()
	h := &PlayHub{
		sessions: sessions,
		tokens:   tokens,
		cfg:      cfg,
		limiter:  NewWebSocketRateLimiter(cfg.MaxPerIP),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 16 * 1024, // PNG frames
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || origins.Allowed(origin) {
				return true
			}
			log.Printf("⚠️ WebSocket connection rejected from origin: %s", origin)
			RecordConnectionRejected("origin")
			return false
		},
	}
	return h
}

// ConnectionCount returns the number of open play connections.
func (h *PlayHub) ConnectionCount() int {
	return int(h.active.Load())
}

// PlayStats summarizes the play endpoint.
type PlayStats struct {
	Connections    int     `json:"connections"`
	MaxConnections int     `json:"maxConnections"`
	RejectedPerIP  uint64  `json:"rejectedPerIp"`
	InputRate      float64 `json:"inputsPerSecond"`
}

// Stats returns connection counters.
func (h *PlayHub) Stats() PlayStats {
	return PlayStats{
		Connections:    h.ConnectionCount(),
		MaxConnections: h.cfg.MaxConnections,
		RejectedPerIP:  h.limiter.Rejected(),
		InputRate:      h.cfg.InputsPerSecond,
	}
}

// wsSink delivers session frames: state as text, PNG as binary.
type wsSink struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *wsSink) WriteFrame(kind streaming.FrameKind, data []byte) error {
	messageType := websocket.TextMessage
	if kind == streaming.FrameImage {
		messageType = websocket.BinaryMessage
	}
	return s.write(messageType, data)
}

func (s *wsSink) writeJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.write(websocket.TextMessage, data)
}

func (s *wsSink) write(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(messageType, data); err != nil {
		return err
	}
	IncrementWSMessages()
	return nil
}

// resolve finds the session for a play request: ?session=<id>&token=<t>
// rejoins an existing one, otherwise a new session is created from the
// width/height/ratio/seed query parameters.
func (h *PlayHub) resolve(r *http.Request) (s *session.Session, owned bool, status int, err error) {
	q := r.URL.Query()

	if id := q.Get("session"); id != "" {
		owner, err := h.tokens.Verify(requestToken(r))
		if err != nil || owner != id {
			return nil, false, http.StatusForbidden, errInvalidToken
		}
		s, ok := h.sessions.Get(id)
		if !ok {
			return nil, false, http.StatusNotFound, errors.New("session not found")
		}
		return s, false, 0, nil
	}

	var opts session.Options
	opts.Width, _ = strconv.ParseFloat(q.Get("width"), 64)
	opts.Height, _ = strconv.ParseFloat(q.Get("height"), 64)
	opts.Ratio, _ = strconv.ParseFloat(q.Get("ratio"), 64)
	opts.Seed, _ = strconv.ParseInt(q.Get("seed"), 10, 64)
	if err := validateOptions(opts); err != nil {
		return nil, false, http.StatusBadRequest, err
	}

	s, err = h.sessions.Create(opts)
	if errors.Is(err, session.ErrTooManySessions) {
		return nil, false, http.StatusServiceUnavailable, err
	}
	if err != nil {
		return nil, false, http.StatusInternalServerError, err
	}
	return s, true, 0, nil
}

// HandlePlay upgrades the connection and runs it until either side closes.
func (h *PlayHub) HandlePlay(w http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)

	if total := h.ConnectionCount(); total >= h.cfg.MaxConnections {
		log.Printf("⚠️ WebSocket connection rejected: total limit reached (%d)", total)
		RecordConnectionRejected("ws_total_limit")
		writeError(w, "too many connections", http.StatusServiceUnavailable)
		return
	}
	if !h.limiter.Allow(ip) {
		log.Printf("⚠️ WebSocket connection rejected from %s: per-IP limit reached", ip)
		RecordConnectionRejected("ws_ip_limit")
		writeError(w, "too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	s, owned, status, err := h.resolve(r)
	if err != nil {
		h.limiter.Release(ip)
		writeError(w, err.Error(), status)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		h.limiter.Release(ip)
		if owned {
			h.sessions.Remove(s.ID())
		}
		return
	}

	UpdateWSConnections(int(h.active.Add(1)))
	log.Printf("📱 Player connected from %s (session %s)", ip, s.ID())

	defer func() {
		s.Detach()
		conn.Close()
		if owned {
			h.sessions.Remove(s.ID())
		}
		h.limiter.Release(ip)
		count := h.active.Add(-1)
		UpdateWSConnections(int(count))
		log.Printf("📱 Player disconnected (%d remaining)", count)
	}()

	h.serve(conn, s)
}

func (h *PlayHub) serve(conn *websocket.Conn, s *session.Session) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	sink := &wsSink{conn: conn}
	welcome := welcomeMessage{
		Type:      "welcome",
		SessionID: s.ID(),
		Token:     h.tokens.Sign(s.ID()),
		Session:   s.Info(),
	}
	if err := sink.writeJSON(welcome); err != nil {
		return
	}

	// A lost writer closes the socket, which ends the read loop below.
	if err := s.Attach(sink, func() { conn.Close() }); err != nil {
		return
	}

	stop := make(chan struct{})
	defer close(stop)
	go h.keepAlive(conn, s, stop)

	limiter := rate.NewLimiter(rate.Limit(h.cfg.InputsPerSecond), h.cfg.InputBurst)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		if !limiter.Allow() {
			RecordConnectionRejected("ws_input")
			continue
		}

		var msg inputMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			sink.writeJSON(errorMessage{Type: "error", Error: "invalid message"})
			continue
		}
		if err := applyInput(s, msg); err != nil {
			if errors.Is(err, session.ErrClosed) {
				return
			}
			if !errors.Is(err, session.ErrBusy) {
				sink.writeJSON(errorMessage{Type: "error", Error: err.Error()})
			}
		}
	}
}

// keepAlive pings the client and closes the socket when the session ends.
func (h *PlayHub) keepAlive(conn *websocket.Conn, s *session.Session, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-s.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
				time.Now().Add(writeWait))
			conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				conn.Close()
				return
			}
		}
	}
}
