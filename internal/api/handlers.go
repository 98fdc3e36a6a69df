package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"

	"flight-arcade/internal/game"
	"flight-arcade/internal/session"
)

const (
	maxFieldSize  = 4096 // logical px per side
	maxPixelRatio = 4
	maxCanvasPx   = 4 << 20 // backing store pixels, width*ratio * height*ratio
	maxBodyBytes  = 4096
)

var errUnknownInput = errors.New("unknown input type")

// inputMessage is a client input, shared by the WebSocket and POST /input.
type inputMessage struct {
	Type   string  `json:"type"` // "pointer", "resize" or "restart"
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Ratio  float64 `json:"ratio"`
}

// createResponse is returned when a session starts.
type createResponse struct {
	Session session.Info `json:"session"`
	Token   string       `json:"token"`
}

// tuningResponse exposes the gameplay constants in client units.
type tuningResponse struct {
	PlayerRadius    float64 `json:"playerRadius"`
	Smoothing       float64 `json:"smoothing"`
	StartLives      int     `json:"startLives"`
	FirstSpawnMs    int64   `json:"firstSpawnMs"`
	SpawnDelayMinMs int64   `json:"spawnDelayMinMs"`
	SpawnDelayMaxMs int64   `json:"spawnDelayMaxMs"`
	RadiusMin       float64 `json:"radiusMin"`
	RadiusMax       float64 `json:"radiusMax"`
	SpeedMin        float64 `json:"speedMin"`
	SpeedMax        float64 `json:"speedMax"`
	MaxFrameDeltaMs int64   `json:"maxFrameDeltaMs"`
	ScoreRate       float64 `json:"scoreRate"`
}

func newTuningResponse(t game.Tuning) tuningResponse {
	return tuningResponse{
		PlayerRadius:    t.PlayerRadius,
		Smoothing:       t.Smoothing,
		StartLives:      t.StartLives,
		FirstSpawnMs:    t.FirstSpawn.Milliseconds(),
		SpawnDelayMinMs: t.SpawnDelayMin.Milliseconds(),
		SpawnDelayMaxMs: t.SpawnDelayMax.Milliseconds(),
		RadiusMin:       t.RadiusMin,
		RadiusMax:       t.RadiusMax,
		SpeedMin:        t.SpeedMin,
		SpeedMax:        t.SpeedMax,
		MaxFrameDeltaMs: t.MaxFrameDelta.Milliseconds(),
		ScoreRate:       t.ScoreRate,
	}
}

// validateOptions rejects field sizes no client should ask for.
func validateOptions(o session.Options) error {
	for _, v := range []float64{o.Width, o.Height, o.Ratio} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("field size and ratio must be finite")
		}
	}
	if o.Width < 0 || o.Height < 0 || o.Width > maxFieldSize || o.Height > maxFieldSize {
		return fmt.Errorf("field size must be within 0..%d", maxFieldSize)
	}
	if (o.Width == 0) != (o.Height == 0) {
		return errors.New("width and height must be set together")
	}
	if o.Ratio < 0 || o.Ratio > maxPixelRatio {
		return fmt.Errorf("ratio must be within 0..%d", maxPixelRatio)
	}
	ratio := o.Ratio
	if ratio == 0 {
		ratio = 1
	}
	if o.Width*ratio*o.Height*ratio > maxCanvasPx {
		return fmt.Errorf("canvas must be at most %d pixels", maxCanvasPx)
	}
	return nil
}

// applyInput forwards one client input to a session.
func applyInput(s *session.Session, msg inputMessage) error {
	switch msg.Type {
	case "pointer":
		return s.Pointer(msg.X, msg.Y)
	case "resize":
		if err := validateOptions(session.Options{Width: msg.Width, Height: msg.Height, Ratio: msg.Ratio}); err != nil {
			return err
		}
		return s.Resize(msg.Width, msg.Height, msg.Ratio)
	case "restart":
		return s.Restart()
	default:
		return fmt.Errorf("%w: %q", errUnknownInput, msg.Type)
	}
}

// inputStatus maps session errors to HTTP status codes.
func inputStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone
	case errors.Is(err, session.ErrBusy):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

func (h *routerHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status":   "ok",
		"sessions": h.sessions.Stats(),
	})
}

func (h *routerHandlers) handleGetLabels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.labels)
}

func (h *routerHandlers) handleGetTuning(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, newTuningResponse(h.tuning))
}

func (h *routerHandlers) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.sessions.List())
}

// statsResponse is the admin overview of server load.
type statsResponse struct {
	Sessions  map[string]interface{} `json:"sessions"`
	RateLimit RateLimitStats         `json:"rateLimit"`
	Play      PlayStats              `json:"play"`
}

func (h *routerHandlers) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, statsResponse{
		Sessions:  h.sessions.Stats(),
		RateLimit: h.limiter.Stats(),
		Play:      h.play.Stats(),
	})
}

func (h *routerHandlers) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var opts session.Options
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, "invalid request", http.StatusBadRequest)
		return
	}
	if err := validateOptions(opts); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s, err := h.sessions.Create(opts)
	if errors.Is(err, session.ErrTooManySessions) {
		w.Header().Set("Retry-After", "30")
		writeError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	token := h.tokens.Sign(s.ID())
	SetSessionCookie(w, token, h.secure)
	log.Printf("🛫 Session %s created for %s", s.ID(), GetClientIP(r))

	w.Header().Set("Location", "/api/sessions/"+s.ID())
	writeJSONStatus(w, http.StatusCreated, createResponse{Session: s.Info(), Token: token})
}

func (h *routerHandlers) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	writeJSON(w, map[string]interface{}{
		"session": s.Info(),
		"stream":  s.StreamStats(),
	})
}

func (h *routerHandlers) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	if !h.sessions.Remove(s.ID()) {
		writeError(w, "session not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *routerHandlers) handleRestart(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	if err := s.Restart(); err != nil {
		writeError(w, err.Error(), inputStatus(err))
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

func (h *routerHandlers) handleInput(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())

	var msg inputMessage
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&msg); err != nil {
		writeError(w, "invalid request", http.StatusBadRequest)
		return
	}
	if err := applyInput(s, msg); err != nil {
		writeError(w, err.Error(), inputStatus(err))
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

func (h *routerHandlers) handleFrame(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := s.EncodePNG(w); err != nil {
		log.Printf("⚠️ Frame for %s: %v", s.ID(), err)
	}
}

// Helper functions (package-level for reuse)

func writeJSON(w http.ResponseWriter, data interface{}) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	writeJSONStatus(w, code, map[string]string{"error": message})
}
