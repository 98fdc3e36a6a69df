// Package host runs an arcade loop on a caller-driven frame queue.
// The embedding side owns the thread: it forwards input and calls
// Advance once per display frame.
package host

import (
	"log"
	"time"

	"flight-arcade/internal/frame"
	"flight-arcade/internal/game"
	"flight-arcade/internal/render"
)

// Config configures a host.
type Config struct {
	Width  float64
	Height float64
	Ratio  float64

	Tuning   game.Tuning
	Limits   game.ResourceLimits
	Labels   []string
	FontPath string
	Seed     int64

	SessionID string
	Events    *game.EventLog
	Hooks     game.Hooks
}

// Host owns a canvas, a frame queue and the current loop.
// Not safe for concurrent use.
type Host struct {
	cfg    Config
	queue  *frame.Queue
	canvas *render.Canvas
	loop   *game.Loop

	pointer func(x, y float64)
	resize  func(w, h float64)

	restarts int
}

// New creates a host with a canvas of the configured size.
func New(cfg Config) *Host {
	if cfg.Ratio <= 0 {
		cfg.Ratio = 1
	}
	h := &Host{
		cfg:    cfg,
		queue:  frame.NewQueue(),
		canvas: render.NewCanvas(cfg.Width, cfg.Height, cfg.Ratio, cfg.FontPath),
	}
	h.loop = h.newLoop()
	return h
}

func (h *Host) newLoop() *game.Loop {
	w, ht := h.canvas.Size()
	return game.NewLoop(game.LoopConfig{
		Width:     w,
		Height:    ht,
		Tuning:    h.cfg.Tuning,
		Limits:    h.cfg.Limits,
		Labels:    h.cfg.Labels,
		Seed:      h.cfg.Seed,
		SessionID: h.cfg.SessionID,
		Events:    h.cfg.Events,
		Hooks:     h.cfg.Hooks,
	})
}

// Start begins the first game at now.
func (h *Host) Start(now time.Duration) bool {
	return h.loop.Start(h.canvas, h.queue, h, now)
}

// Observe implements game.InputSource.
func (h *Host) Observe(pointer func(x, y float64), resize func(w, h float64)) func() {
	h.pointer, h.resize = pointer, resize
	return func() {
		h.pointer, h.resize = nil, nil
	}
}

// Pointer forwards a pointer position in field coordinates.
func (h *Host) Pointer(x, y float64) {
	if h.pointer != nil {
		h.pointer(x, y)
	}
}

// Resize changes the canvas and, while a game is running, the play field.
func (h *Host) Resize(width, height, ratio float64) {
	if width <= 0 || height <= 0 {
		return
	}
	h.canvas.Resize(width, height, ratio)
	if h.resize != nil {
		h.resize(width, height)
	}
}

// Advance fires pending frame callbacks and returns how many ran.
func (h *Host) Advance(now time.Duration) int {
	return h.queue.Fire(now)
}

// Restart tears the current game down and starts a new one on the
// current canvas size.
func (h *Host) Restart(now time.Duration) bool {
	h.loop.Teardown()
	h.loop = h.newLoop()
	h.restarts++
	log.Printf("🔄 Restart #%d", h.restarts)
	return h.Start(now)
}

// Close tears the loop down. Safe to call more than once.
func (h *Host) Close() {
	h.loop.Teardown()
}

// State returns score, lives and status of the current game.
func (h *Host) State() game.GameState {
	return h.loop.State()
}

// Loop returns the current loop.
func (h *Host) Loop() *game.Loop {
	return h.loop
}

// Canvas returns the render target.
func (h *Host) Canvas() *render.Canvas {
	return h.canvas
}

// Restarts returns how many times Restart ran.
func (h *Host) Restarts() int {
	return h.restarts
}
