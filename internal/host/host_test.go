package host

import (
	"testing"
	"time"

	"flight-arcade/internal/game"
)

const frameTime = 16 * time.Millisecond

// lethalTuning spawns a field-wide meteor every frame that reaches the
// plane within one frame.
func lethalTuning() game.Tuning {
	t := game.DefaultTuning()
	t.FirstSpawn = time.Millisecond
	t.SpawnDelayMin = time.Millisecond
	t.SpawnDelayMax = time.Millisecond
	t.RadiusMin, t.RadiusMax = 400, 400
	t.SpeedMin, t.SpeedMax = 30000, 30000
	return t
}

func TestHostStartAndPointer(t *testing.T) {
	h := New(Config{Width: 200, Height: 300, Seed: 1})
	defer h.Close()

	if !h.Start(0) {
		t.Fatal("Start returned false")
	}
	if h.Start(0) {
		t.Error("second Start returned true")
	}

	start := h.Loop().Player()
	if start.X != 100 || start.Y != 225 {
		t.Fatalf("player starts at %+v", start)
	}

	h.Pointer(20, 225)
	for i := 1; i <= 5; i++ {
		if n := h.Advance(time.Duration(i) * frameTime); n != 1 {
			t.Fatalf("frame %d ran %d callbacks", i, n)
		}
	}
	if p := h.Loop().Player(); p.X >= start.X {
		t.Errorf("player did not move toward pointer: %+v", p)
	}
	if h.Canvas().Frames() != 5 {
		t.Errorf("canvas rendered %d frames", h.Canvas().Frames())
	}
}

func TestHostResize(t *testing.T) {
	h := New(Config{Width: 200, Height: 300, Seed: 1})
	defer h.Close()
	h.Start(0)

	h.Resize(400, 500, 2)
	if f := h.Loop().Field(); f.Width != 400 || f.Height != 500 {
		t.Errorf("field = %+v", f)
	}
	if pw, ph := h.Canvas().PixelSize(); pw != 800 || ph != 1000 {
		t.Errorf("pixel size = %dx%d", pw, ph)
	}

	h.Resize(0, 100, 1)
	if f := h.Loop().Field(); f.Width != 400 {
		t.Errorf("zero-width resize applied: %+v", f)
	}
}

func TestHostGameOverAndRestart(t *testing.T) {
	overs := 0
	h := New(Config{
		Width:  200,
		Height: 300,
		Seed:   1,
		Tuning: lethalTuning(),
		Hooks: game.Hooks{
			OnGameOver: func(game.GameState) { overs++ },
		},
	})
	defer h.Close()
	h.Start(0)

	now := time.Duration(0)
	for i := 0; i < 10 && h.State().Status == game.StatusPlaying; i++ {
		now += frameTime
		h.Advance(now)
	}

	state := h.State()
	if state.Status != game.StatusOver || state.Lives != 0 {
		t.Fatalf("state = %+v", state)
	}
	if overs != 1 {
		t.Errorf("OnGameOver ran %d times", overs)
	}
	if n := h.Advance(now + frameTime); n != 0 {
		t.Errorf("frames keep running after game over: %d", n)
	}

	// Input is detached once the game is over
	h.Pointer(10, 10)
	h.Resize(300, 300, 1)
	if f := h.Loop().Field(); f.Width != 200 {
		t.Errorf("finished loop resized to %+v", f)
	}

	if !h.Restart(now) {
		t.Fatal("Restart returned false")
	}
	if h.Restarts() != 1 {
		t.Errorf("restarts = %d", h.Restarts())
	}
	state = h.State()
	if state.Status != game.StatusPlaying || state.Lives != 3 || state.Score != 0 {
		t.Errorf("restarted state = %+v", state)
	}
	if f := h.Loop().Field(); f.Width != 300 || f.Height != 300 {
		t.Errorf("restart ignored the canvas size: %+v", f)
	}
}
