// Package session hosts arcade loops on the server: one ticker goroutine,
// one canvas and one outbound frame stream per player.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"flight-arcade/internal/frame"
	"flight-arcade/internal/game"
	"flight-arcade/internal/render"
	"flight-arcade/internal/streaming"
)

var (
	// ErrClosed is returned for operations on a closed session.
	ErrClosed = errors.New("session closed")
	// ErrBusy is returned when the session's input queue is full.
	ErrBusy = errors.New("session input queue full")
)

// Config describes a new session.
type Config struct {
	Width  float64
	Height float64
	Ratio  float64

	FPS        int // Loop tick rate
	FrameEvery int // Publish a PNG every N rendered frames

	Tuning   game.Tuning
	Limits   game.ResourceLimits
	Labels   []string
	FontPath string
	Seed     int64 // Zero picks a time-based seed per loop

	Events  *game.EventLog
	Metrics Metrics
}

func (c Config) withDefaults() Config {
	if c.Width <= 0 || c.Height <= 0 {
		c.Width, c.Height = 480, 640
	}
	if c.Ratio <= 0 {
		c.Ratio = 1
	}
	if c.FPS <= 0 {
		c.FPS = 60
	}
	if c.FrameEvery <= 0 {
		c.FrameEvery = 4
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}
	return c
}

// StateMessage is the JSON state update sent to viewers.
type StateMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId"`
	Score     int         `json:"score"`
	Lives     int         `json:"lives"`
	Status    game.Status `json:"status"`
	Frame     uint64      `json:"frame"`
	Width     float64     `json:"width"`
	Height    float64     `json:"height"`
	Restarts  int         `json:"restarts"`
}

// Info is a point-in-time view of a session, safe to read from any goroutine.
type Info struct {
	ID         string         `json:"id"`
	CreatedAt  time.Time      `json:"createdAt"`
	LastActive time.Time      `json:"lastActive"`
	State      game.GameState `json:"state"`
	Frames     uint64         `json:"frames"`
	Obstacles  int            `json:"obstacles"`
	Width      float64        `json:"width"`
	Height     float64        `json:"height"`
	Seed       int64          `json:"seed"`
	Restarts   int            `json:"restarts"`
	Connected  bool           `json:"connected"`
}

// Session runs one loop on its own frame ticker.
// The loop, canvas rendering and ring producer are only touched on the
// ticker goroutine; everything else goes through Post.
type Session struct {
	id        string
	cfg       Config
	createdAt time.Time

	ticker *frame.Ticker
	sched  *timedScheduler
	canvas *render.Canvas
	loop   *game.Loop
	ring   *streaming.FrameRingBuffer

	// ticker goroutine only
	rendered  uint64
	restarts  int
	lastState StateMessage
	stateBuf  []byte
	pngBuf    []byte

	attached   atomic.Bool
	lastActive atomic.Int64 // unix nano

	writerMu sync.Mutex
	writer   *streaming.AsyncFrameWriter

	infoMu sync.RWMutex
	info   Info

	closeOnce sync.Once
	closed    atomic.Bool
}

// New creates a session and starts its ticker on a new goroutine.
// The ticker stops when ctx is cancelled or Close is called.
func New(ctx context.Context, cfg Config) *Session {
	cfg = cfg.withDefaults()
	now := time.Now()

	s := &Session{
		id:        uuid.NewString(),
		cfg:       cfg,
		createdAt: now,
		ticker:    frame.NewTicker(cfg.FPS),
		canvas:    render.NewCanvas(cfg.Width, cfg.Height, cfg.Ratio, cfg.FontPath),
		ring:      streaming.NewFrameRingBuffer(),
	}
	s.sched = &timedScheduler{ticker: s.ticker, metrics: cfg.Metrics}
	s.lastActive.Store(now.UnixNano())

	// Run has not started yet, so this goroutine still owns the loop.
	s.startLoop()

	cfg.Metrics.SessionStarted()
	log.Printf("🎮 Session %s started (%gx%g @%gx)", s.id, cfg.Width, cfg.Height, cfg.Ratio)

	go s.ticker.Run(ctx)
	return s
}

// startLoop builds a fresh loop and attaches it to this session.
func (s *Session) startLoop() {
	s.loop = game.NewLoop(game.LoopConfig{
		Width:     s.cfg.Width,
		Height:    s.cfg.Height,
		Tuning:    s.cfg.Tuning,
		Limits:    s.cfg.Limits,
		Labels:    s.cfg.Labels,
		Seed:      s.cfg.Seed,
		SessionID: s.id,
		Events:    s.cfg.Events,
		Hooks: game.Hooks{
			OnSpawn:    func(game.Obstacle) { s.cfg.Metrics.ObstacleSpawned() },
			OnHit:      func(game.Obstacle, int) { s.cfg.Metrics.PlayerHit() },
			OnGameOver: s.onGameOver,
			OnRender:   s.cfg.Metrics.ObserveRender,
		},
	})
	s.loop.Start(s, s.sched, nil, s.ticker.Now())
	s.publishState(true)
}

func (s *Session) onGameOver(state game.GameState) {
	s.cfg.Metrics.GameOver()
	log.Printf("🏁 Session %s over: score %d", s.id, int(math.Floor(state.Score)))
	// Tick rendered lives 0 while still Playing; publish the Over status too.
	s.publishState(true)
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Size implements game.Surface.
func (s *Session) Size() (float64, float64) {
	return s.canvas.Size()
}

// Render implements game.Surface. It rasterizes the frame and, while a
// viewer is attached, publishes state changes and every FrameEvery-th PNG.
func (s *Session) Render(snap *game.Snapshot) {
	s.canvas.Render(snap)
	s.rendered++

	s.publishState(false)

	if s.attached.Load() && s.rendered%uint64(s.cfg.FrameEvery) == 0 {
		var err error
		s.pngBuf, err = s.canvas.AppendPNG(s.pngBuf[:0])
		if err != nil {
			log.Printf("⚠️ Session %s: %v", s.id, err)
			return
		}
		if !s.ring.TryWrite(streaming.FrameImage, s.pngBuf) {
			s.cfg.Metrics.FrameDropped(streaming.FrameImage.String())
		}
	}
}

// publishState refreshes Info and sends a state message when score,
// lives or status changed (or always, when force is set).
func (s *Session) publishState(force bool) {
	state := s.loop.State()
	field := s.loop.Field()
	msg := StateMessage{
		Type:      "state",
		SessionID: s.id,
		Score:     int(math.Floor(state.Score)),
		Lives:     state.Lives,
		Status:    state.Status,
		Frame:     s.loop.Frames(),
		Width:     field.Width,
		Height:    field.Height,
		Restarts:  s.restarts,
	}

	s.infoMu.Lock()
	s.info = Info{
		ID:        s.id,
		CreatedAt: s.createdAt,
		State:     state,
		Frames:    msg.Frame,
		Obstacles: s.loop.ObstacleCount(),
		Width:     field.Width,
		Height:    field.Height,
		Seed:      s.loop.Seed(),
		Restarts:  s.restarts,
	}
	s.infoMu.Unlock()

	changed := msg.Score != s.lastState.Score ||
		msg.Lives != s.lastState.Lives ||
		msg.Status != s.lastState.Status
	if !force && !changed {
		return
	}
	s.lastState = msg

	if !s.attached.Load() {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	s.stateBuf = append(s.stateBuf[:0], data...)
	if !s.ring.TryWrite(streaming.FrameState, s.stateBuf) {
		s.cfg.Metrics.FrameDropped(streaming.FrameState.String())
	}
}

// post runs fn on the ticker goroutine.
func (s *Session) post(fn func()) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if !s.ticker.Post(fn) {
		if s.closed.Load() {
			return ErrClosed
		}
		return ErrBusy
	}
	return nil
}

func (s *Session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

// Pointer forwards a pointer position in field coordinates.
func (s *Session) Pointer(x, y float64) error {
	s.touch()
	return s.post(func() { s.loop.SetPointer(x, y) })
}

// Resize changes the field size and the canvas pixel ratio.
func (s *Session) Resize(width, height, ratio float64) error {
	if width <= 0 || height <= 0 {
		return nil
	}
	s.touch()
	return s.post(func() {
		s.canvas.Resize(width, height, ratio)
		s.loop.Resize(width, height)
		s.publishState(true)
	})
}

// Restart tears the current loop down and starts a fresh game on the
// current field.
func (s *Session) Restart() error {
	s.touch()
	return s.post(func() {
		s.loop.Teardown()
		s.restarts++
		s.startLoop() // Start takes the field from the canvas
	})
}

// Attach streams state and image frames to sink until Detach, Close or
// a lost connection. onLost runs on its own goroutine. A previous viewer
// is detached first.
func (s *Session) Attach(sink streaming.FrameSink, onLost func()) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.touch()

	s.writerMu.Lock()
	if s.writer != nil {
		s.writer.Stop()
	}
	w := streaming.NewAsyncFrameWriter(s.ring, sink)
	w.SetOnConnectionLost(func() {
		s.detachWriter(w)
		if onLost != nil {
			onLost()
		}
	})
	w.Start(s.cfg.FPS)
	s.writer = w
	s.attached.Store(true)
	s.writerMu.Unlock()

	// New viewers get the current state immediately.
	if err := s.post(func() { s.publishState(true) }); err != nil && !errors.Is(err, ErrBusy) {
		return err
	}
	return nil
}

// Detach stops streaming to the current viewer.
func (s *Session) Detach() {
	s.writerMu.Lock()
	w := s.writer
	s.writerMu.Unlock()
	s.detachWriter(w)
}

func (s *Session) detachWriter(w *streaming.AsyncFrameWriter) {
	if w == nil {
		return
	}
	s.writerMu.Lock()
	defer s.writerMu.Unlock()
	if s.writer != w {
		return
	}
	s.attached.Store(false)
	w.Stop()
	s.writer = nil
}

// Connected reports whether a viewer is attached.
func (s *Session) Connected() bool {
	return s.attached.Load()
}

// LastActive returns the time of the last input or viewer attach.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// Info returns the state as of the last rendered frame.
func (s *Session) Info() Info {
	s.infoMu.RLock()
	info := s.info
	s.infoMu.RUnlock()
	info.LastActive = s.LastActive()
	info.Connected = s.attached.Load()
	return info
}

// EncodePNG writes the most recent frame.
func (s *Session) EncodePNG(w io.Writer) error {
	return s.canvas.EncodePNG(w)
}

// StreamStats returns ring and writer counters.
func (s *Session) StreamStats() streaming.WriterStats {
	s.writerMu.Lock()
	w := s.writer
	s.writerMu.Unlock()
	if w != nil {
		return w.Stats()
	}
	return streaming.WriterStats{Ring: s.ring.Stats()}
}

// Close stops the ticker, tears the loop down and detaches the viewer.
// Must not be called from the ticker goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.ticker.Stop()
		<-s.ticker.Done()

		// Run has returned; this goroutine owns the loop again.
		s.loop.Teardown()
		s.Detach()

		s.cfg.Metrics.SessionEnded()
		log.Printf("👋 Session %s closed", s.id)
	})
}

// Done is closed once the session's ticker has stopped.
func (s *Session) Done() <-chan struct{} {
	return s.ticker.Done()
}

// timedScheduler wraps the ticker queue and reports tick durations.
type timedScheduler struct {
	ticker  *frame.Ticker
	metrics Metrics
}

func (t *timedScheduler) RequestFrame(cb func(now time.Duration)) uint64 {
	return t.ticker.RequestFrame(func(now time.Duration) {
		start := time.Now()
		cb(now)
		t.metrics.ObserveTick(time.Since(start))
	})
}

func (t *timedScheduler) CancelFrame(id uint64) {
	t.ticker.CancelFrame(id)
}
