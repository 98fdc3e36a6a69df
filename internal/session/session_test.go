package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"flight-arcade/internal/game"
	"flight-arcade/internal/streaming"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

type recordingSink struct {
	mu     sync.Mutex
	frames []streaming.Frame
}

func (r *recordingSink) WriteFrame(kind streaming.FrameKind, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, streaming.Frame{Kind: kind, Data: append([]byte(nil), data...)})
	return nil
}

func (r *recordingSink) find(kind streaming.FrameKind) (streaming.Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.frames {
		if f.Kind == kind {
			return f, true
		}
	}
	return streaming.Frame{}, false
}

type countingMetrics struct {
	NopMetrics
	started, ended, ticks atomic.Int32
}

func (c *countingMetrics) SessionStarted()           { c.started.Add(1) }
func (c *countingMetrics) SessionEnded()             { c.ended.Add(1) }
func (c *countingMetrics) ObserveTick(time.Duration) { c.ticks.Add(1) }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testConfig() Config {
	return Config{Width: 200, Height: 300, FPS: 120, FrameEvery: 1, Seed: 7}
}

func TestNewSessionInfo(t *testing.T) {
	s := New(context.Background(), testConfig())
	defer s.Close()

	if _, err := uuid.Parse(s.ID()); err != nil {
		t.Errorf("id %q is not a uuid: %v", s.ID(), err)
	}
	info := s.Info()
	if info.State.Lives != game.DefaultTuning().StartLives || info.State.Status != game.StatusPlaying {
		t.Errorf("state = %+v", info.State)
	}
	if info.Width != 200 || info.Height != 300 || info.Seed != 7 {
		t.Errorf("info = %+v", info)
	}
	if info.Connected {
		t.Error("new session reports a viewer")
	}
}

func TestSessionTicksAndCloses(t *testing.T) {
	m := &countingMetrics{}
	cfg := testConfig()
	cfg.Metrics = m
	s := New(context.Background(), cfg)

	waitFor(t, "ticks", func() bool { return m.ticks.Load() >= 3 })
	waitFor(t, "info frames", func() bool { return s.Info().Frames > 0 })

	s.Close()
	s.Close()

	select {
	case <-s.Done():
	default:
		t.Fatal("ticker still running after Close")
	}
	if m.started.Load() != 1 || m.ended.Load() != 1 {
		t.Errorf("started=%d ended=%d", m.started.Load(), m.ended.Load())
	}
	if err := s.Pointer(1, 1); !errors.Is(err, ErrClosed) {
		t.Errorf("Pointer after Close = %v", err)
	}
	if err := s.Attach(&recordingSink{}, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Attach after Close = %v", err)
	}
}

func TestSessionStreamsStateAndFrames(t *testing.T) {
	s := New(context.Background(), testConfig())
	defer s.Close()

	sink := &recordingSink{}
	if err := s.Attach(sink, nil); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if !s.Connected() {
		t.Fatal("not connected after Attach")
	}

	waitFor(t, "state frame", func() bool { _, ok := sink.find(streaming.FrameState); return ok })
	waitFor(t, "image frame", func() bool { _, ok := sink.find(streaming.FrameImage); return ok })

	f, _ := sink.find(streaming.FrameState)
	var msg StateMessage
	if err := json.Unmarshal(f.Data, &msg); err != nil {
		t.Fatalf("state frame is not JSON: %v", err)
	}
	if msg.Type != "state" || msg.SessionID != s.ID() || msg.Lives != 3 || msg.Status != game.StatusPlaying {
		t.Errorf("state = %+v", msg)
	}

	img, _ := sink.find(streaming.FrameImage)
	if !bytes.HasPrefix(img.Data, pngMagic) {
		t.Error("image frame is not a PNG")
	}

	s.Detach()
	if s.Connected() {
		t.Error("still connected after Detach")
	}
}

func TestSessionRestartAndResize(t *testing.T) {
	s := New(context.Background(), testConfig())
	defer s.Close()

	if err := s.Resize(320, 480, 2); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	waitFor(t, "resize", func() bool { i := s.Info(); return i.Width == 320 && i.Height == 480 })

	if err := s.Restart(); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	waitFor(t, "restart", func() bool { return s.Info().Restarts == 1 })

	info := s.Info()
	if info.Width != 320 || info.Height != 480 {
		t.Errorf("restart lost the field size: %gx%g", info.Width, info.Height)
	}
	if info.State.Lives != 3 || info.State.Status != game.StatusPlaying {
		t.Errorf("restart state = %+v", info.State)
	}

	var buf bytes.Buffer
	if err := s.EncodePNG(&buf); err != nil {
		t.Fatalf("EncodePNG: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), pngMagic) {
		t.Error("EncodePNG did not write a PNG")
	}
}

func TestSessionStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(ctx, testConfig())
	cancel()

	select {
	case <-s.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("ticker did not stop with its context")
	}
	s.Close()
}
