package game

import (
	"math"
	"testing"
	"time"

	"flight-arcade/internal/frame"
)

const (
	testWidth  = 400.0
	testHeight = 300.0
)

// recordingSurface keeps a copy of every rendered frame's state
type recordingSurface struct {
	w, h    float64
	renders int
	last    Snapshot
}

func (s *recordingSurface) Size() (float64, float64) { return s.w, s.h }

func (s *recordingSurface) Render(snap *Snapshot) {
	s.renders++
	s.last = snap.Clone()
}

type fakeInput struct {
	pointer  func(x, y float64)
	resize   func(w, h float64)
	detached int
}

func (f *fakeInput) Observe(pointer func(x, y float64), resize func(w, h float64)) func() {
	f.pointer = pointer
	f.resize = resize
	return func() { f.detached++ }
}

func startTestLoop(t *testing.T, cfg LoopConfig) (*Loop, *frame.Queue, *recordingSurface) {
	t.Helper()
	if cfg.Width == 0 {
		cfg.Width, cfg.Height = testWidth, testHeight
	}
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}
	loop := NewLoop(cfg)
	queue := frame.NewQueue()
	surface := &recordingSurface{w: cfg.Width, h: cfg.Height}
	if !loop.Start(surface, queue, nil, 0) {
		t.Fatal("Start returned false")
	}
	return loop, queue, surface
}

// holdSpawns keeps the spawner quiet so tests control the obstacle set.
func holdSpawns(l *Loop) {
	l.nextSpawn = time.Duration(math.MaxInt64)
}

func inject(l *Loop, o Obstacle) {
	l.nextID++
	o.ID = l.nextID
	if o.Label == "" {
		o.Label = "Research"
	}
	l.obstacles = append(l.obstacles, o)
}

func TestNewLoopDefaults(t *testing.T) {
	loop := NewLoop(LoopConfig{Width: testWidth, Height: testHeight, Seed: 1})

	state := loop.State()
	if state.Score != 0 || state.Lives != 3 || state.Status != StatusPlaying {
		t.Fatalf("unexpected initial state %+v", state)
	}
	if got := loop.Player(); got != (Vec2{X: 200, Y: 225}) {
		t.Errorf("player at %+v, want (200, 225)", got)
	}
	if loop.ObstacleCount() != 0 {
		t.Errorf("expected no obstacles, got %d", loop.ObstacleCount())
	}
}

func TestStartPreconditions(t *testing.T) {
	tests := []struct {
		name      string
		surface   Surface
		scheduler FrameScheduler
	}{
		{"missing surface", nil, frame.NewQueue()},
		{"missing scheduler", &recordingSurface{w: 100, h: 100}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loop := NewLoop(LoopConfig{Width: testWidth, Height: testHeight, Seed: 1})
			before := loop.State()

			if loop.Start(tt.surface, tt.scheduler, nil, 0) {
				t.Fatal("Start should refuse to run")
			}
			if loop.Scheduled() {
				t.Error("no frame should be requested")
			}
			if loop.State() != before {
				t.Errorf("state changed: %+v", loop.State())
			}
			// Ticks on an unstarted loop are ignored
			loop.Tick(time.Second)
			if loop.Frames() != 0 {
				t.Errorf("unstarted loop ran %d frames", loop.Frames())
			}
		})
	}
}

func TestStartTwice(t *testing.T) {
	loop, queue, surface := startTestLoop(t, LoopConfig{})
	if loop.Start(surface, queue, nil, 0) {
		t.Error("second Start should return false")
	}
	if queue.Pending() != 1 {
		t.Errorf("expected exactly 1 pending frame, got %d", queue.Pending())
	}
}

func TestStartUsesSurfaceSize(t *testing.T) {
	loop := NewLoop(LoopConfig{Width: 100, Height: 100, Seed: 1})
	queue := frame.NewQueue()
	loop.Start(&recordingSurface{w: 640, h: 480}, queue, nil, 0)

	if got := loop.Field(); got != (PlayField{Width: 640, Height: 480}) {
		t.Errorf("field %+v, want 640x480", got)
	}
	if got := loop.Player(); got != (Vec2{X: 320, Y: 360}) {
		t.Errorf("player at %+v, want (320, 360)", got)
	}
}

func TestDeltaTimeCap(t *testing.T) {
	loop, queue, _ := startTestLoop(t, LoopConfig{})
	holdSpawns(loop)

	queue.Fire(16 * time.Millisecond)
	inject(loop, Obstacle{X: 20, Y: 0, Radius: 20, Speed: 100})
	scoreBefore := loop.State().Score

	// 500ms stall
	queue.Fire(516 * time.Millisecond)

	o := loop.obstacles[0]
	if want := 100 * 0.032; math.Abs(o.Y-want) > 1e-9 {
		t.Errorf("obstacle moved to y=%v, want %v (one 32ms step)", o.Y, want)
	}
	if got, want := loop.State().Score-scoreBefore, 32*0.02; math.Abs(got-want) > 1e-9 {
		t.Errorf("score grew by %v, want %v", got, want)
	}
}

func TestNegativeElapsedCountsAsZero(t *testing.T) {
	loop, queue, _ := startTestLoop(t, LoopConfig{})
	holdSpawns(loop)

	queue.Fire(100 * time.Millisecond)
	inject(loop, Obstacle{X: 20, Y: 50, Radius: 20, Speed: 100})
	score := loop.State().Score

	queue.Fire(50 * time.Millisecond)

	if loop.obstacles[0].Y != 50 {
		t.Errorf("obstacle moved on a backwards clock: y=%v", loop.obstacles[0].Y)
	}
	if loop.State().Score != score {
		t.Errorf("score changed on a backwards clock")
	}
}

func TestPlayerSmoothing(t *testing.T) {
	loop, queue, _ := startTestLoop(t, LoopConfig{})
	holdSpawns(loop)

	loop.SetPointer(300, 225)
	queue.Fire(16 * time.Millisecond)

	if got, want := loop.Player().X, 200+100*0.12; math.Abs(got-want) > 1e-9 {
		t.Errorf("player x=%v, want %v", got, want)
	}
}

func TestPlayerStaysInBounds(t *testing.T) {
	targets := []Vec2{
		{X: -500, Y: -500},
		{X: 0, Y: 0},
		{X: testWidth, Y: testHeight},
		{X: 5000, Y: 10},
		{X: 10, Y: 5000},
		{X: 200, Y: 150},
	}

	loop, queue, _ := startTestLoop(t, LoopConfig{})
	holdSpawns(loop)
	r := loop.player.Radius

	now := time.Duration(0)
	for _, target := range targets {
		loop.SetPointer(target.X, target.Y)
		for i := 0; i < 120; i++ {
			now += 16 * time.Millisecond
			queue.Fire(now)

			p := loop.Player()
			if p.X < r || p.X > testWidth-r || p.Y < r || p.Y > testHeight-r {
				t.Fatalf("player escaped bounds at %+v (target %+v)", p, target)
			}
		}
	}
}

func TestSetPointerClamps(t *testing.T) {
	loop, _, _ := startTestLoop(t, LoopConfig{})

	loop.SetPointer(-10, 1e6)
	if loop.target != (Vec2{X: 0, Y: testHeight}) {
		t.Errorf("target %+v not clamped to field", loop.target)
	}
}

func TestObstacleExitBoundary(t *testing.T) {
	const r = 20.0
	tests := []struct {
		name    string
		y       float64
		removed bool
	}{
		{"inside", testHeight, false},
		{"exactly at height+r+30", testHeight + r + 30, false},
		{"past height+r+30", testHeight + r + 30.5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loop, queue, _ := startTestLoop(t, LoopConfig{})
			holdSpawns(loop)
			inject(loop, Obstacle{X: 20, Y: tt.y, Radius: r, Speed: 150})

			// dt = 0, so the obstacle stays where it was placed
			queue.Fire(0)

			if removed := loop.ObstacleCount() == 0; removed != tt.removed {
				t.Errorf("removed=%v, want %v", removed, tt.removed)
			}
			if loop.State().Lives != 3 {
				t.Errorf("exit must not cost a life")
			}
		})
	}
}

func TestCollisionThreshold(t *testing.T) {
	const obstacleRadius = 19.0
	sum := obstacleRadius + 14

	tests := []struct {
		name     string
		distance float64
		hit      bool
	}{
		{"overlap by one", sum - 1, true},
		{"centred", 0, true},
		{"gap of one", sum + 1, false},
		{"touching", sum, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loop, queue, _ := startTestLoop(t, LoopConfig{})
			holdSpawns(loop)
			p := loop.Player()
			inject(loop, Obstacle{X: p.X + tt.distance, Y: p.Y, Radius: obstacleRadius, Speed: 120})

			queue.Fire(0)

			wantLives := 3
			if tt.hit {
				wantLives = 2
			}
			if got := loop.State().Lives; got != wantLives {
				t.Errorf("lives=%d, want %d", got, wantLives)
			}
			if tt.hit && loop.ObstacleCount() != 0 {
				t.Error("colliding obstacle must be removed")
			}
		})
	}
}

func TestHitTriggersFlash(t *testing.T) {
	loop, queue, surface := startTestLoop(t, LoopConfig{})
	holdSpawns(loop)
	p := loop.Player()
	inject(loop, Obstacle{X: p.X, Y: p.Y, Radius: 20})

	queue.Fire(16 * time.Millisecond)
	if surface.last.Flash != 1 {
		t.Fatalf("flash rendered at %v, want 1", surface.last.Flash)
	}

	queue.Fire(32 * time.Millisecond)
	if want := 1 - 0.06; math.Abs(surface.last.Flash-want) > 1e-9 {
		t.Errorf("flash %v after one frame, want %v", surface.last.Flash, want)
	}

	for i := 0; i < 30; i++ {
		queue.Fire(time.Duration(48+16*i) * time.Millisecond)
	}
	if surface.last.Flash != 0 {
		t.Errorf("flash should have decayed to 0, got %v", surface.last.Flash)
	}
}

func TestSpawnRanges(t *testing.T) {
	var spawned []Obstacle
	loop, queue, _ := startTestLoop(t, LoopConfig{
		Hooks: Hooks{OnSpawn: func(o Obstacle) { spawned = append(spawned, o) }},
	})
	// Park the plane in a corner so the first obstacles survive
	loop.player.Pos = Vec2{X: 14, Y: testHeight - 14}
	loop.target = loop.player.Pos

	queue.Fire(600 * time.Millisecond)
	if len(spawned) != 0 {
		t.Fatal("nothing may spawn before 600ms")
	}

	now := 600 * time.Millisecond
	for i := 0; i < 600 && loop.Status() == StatusPlaying; i++ {
		now += 16 * time.Millisecond
		queue.Fire(now)
	}
	if len(spawned) == 0 {
		t.Fatal("expected spawns after 600ms")
	}

	labels := map[string]bool{}
	for _, l := range DefaultLabels {
		labels[l] = true
	}
	for _, o := range spawned {
		if o.Radius < 18 || o.Radius >= 28 {
			t.Errorf("radius %v out of range", o.Radius)
		}
		if o.X < o.Radius || o.X > testWidth-o.Radius {
			t.Errorf("x %v not fully inside field (r=%v)", o.X, o.Radius)
		}
		if o.Y != -o.Radius-10 {
			t.Errorf("y %v, want %v", o.Y, -o.Radius-10)
		}
		if o.Speed < 90 || o.Speed >= 200 {
			t.Errorf("speed %v out of range", o.Speed)
		}
		if math.Abs(o.Spin) > 0.02 {
			t.Errorf("spin %v out of range", o.Spin)
		}
		if !labels[o.Label] {
			t.Errorf("unexpected label %q", o.Label)
		}
	}
}

func TestSpawnCadence(t *testing.T) {
	loop, queue, _ := startTestLoop(t, LoopConfig{})
	loop.player.Pos = Vec2{X: 14, Y: 14}
	loop.target = loop.player.Pos

	queue.Fire(601 * time.Millisecond)
	if loop.ObstacleCount() != 1 {
		t.Fatalf("expected first spawn just after 600ms, got %d obstacles", loop.ObstacleCount())
	}
	delay := loop.nextSpawn - 601*time.Millisecond
	if delay < 500*time.Millisecond || delay >= 1100*time.Millisecond {
		t.Errorf("next spawn in %v, want [500ms, 1100ms)", delay)
	}
}

func TestSpawnCap(t *testing.T) {
	loop, queue, _ := startTestLoop(t, LoopConfig{Limits: ResourceLimits{MaxObstacles: 1}})
	inject(loop, Obstacle{X: 380, Y: 0, Radius: 18})

	queue.Fire(601 * time.Millisecond)
	if loop.ObstacleCount() != 1 {
		t.Errorf("cap exceeded: %d obstacles", loop.ObstacleCount())
	}
	if loop.nextSpawn <= 601*time.Millisecond {
		t.Error("a capped spawn must still reschedule")
	}
}

func TestScoreMonotonicAndFrozen(t *testing.T) {
	loop, queue, _ := startTestLoop(t, LoopConfig{})
	holdSpawns(loop)

	prev := loop.State().Score
	now := time.Duration(0)
	for i := 0; i < 50; i++ {
		now += time.Duration(i%40) * time.Millisecond
		queue.Fire(now)
		score := loop.State().Score
		if score < prev {
			t.Fatalf("score decreased from %v to %v", prev, score)
		}
		prev = score
	}

	loop.state.Lives = 1
	p := loop.Player()
	inject(loop, Obstacle{X: p.X, Y: p.Y, Radius: 20})
	now += 16 * time.Millisecond
	queue.Fire(now)

	if loop.Status() != StatusOver {
		t.Fatal("expected game over")
	}
	frozen := loop.State().Score

	loop.Tick(now + time.Second)
	queue.Fire(now + 2*time.Second)
	if loop.State().Score != frozen {
		t.Errorf("score changed after Over: %v -> %v", frozen, loop.State().Score)
	}
}

func TestMultipleHitsInOneTick(t *testing.T) {
	loop, queue, _ := startTestLoop(t, LoopConfig{})
	holdSpawns(loop)
	p := loop.Player()
	inject(loop, Obstacle{X: p.X, Y: p.Y, Radius: 20})
	inject(loop, Obstacle{X: p.X + 5, Y: p.Y, Radius: 20})

	queue.Fire(0)
	if got := loop.State().Lives; got != 1 {
		t.Fatalf("lives=%d, want 1 after two simultaneous hits", got)
	}

	// More colliders than lives left: floored at zero, every collider removed
	for i := 0; i < 3; i++ {
		inject(loop, Obstacle{X: p.X - float64(i), Y: p.Y, Radius: 20})
	}
	gameOvers := 0
	loop.hooks.OnGameOver = func(GameState) { gameOvers++ }
	queue.Fire(0)

	if got := loop.State().Lives; got != 0 {
		t.Errorf("lives=%d, want 0", got)
	}
	if loop.ObstacleCount() != 0 {
		t.Errorf("colliding obstacles left behind: %d", loop.ObstacleCount())
	}
	if gameOvers != 1 {
		t.Errorf("game over fired %d times", gameOvers)
	}
}

func TestGameOverScenario(t *testing.T) {
	var lives []int
	gameOvers := 0
	loop, queue, surface := startTestLoop(t, LoopConfig{
		Hooks: Hooks{
			OnHit:      func(_ Obstacle, left int) { lives = append(lives, left) },
			OnGameOver: func(GameState) { gameOvers++ },
		},
	})
	holdSpawns(loop)
	lives = append(lives, loop.State().Lives)

	now := time.Duration(0)
	for i := 0; i < 3; i++ {
		if loop.Status() != StatusPlaying {
			t.Fatalf("status %v before hit %d", loop.Status(), i+1)
		}
		p := loop.Player()
		inject(loop, Obstacle{X: p.X, Y: p.Y - 10, Radius: 22, Speed: 100})
		now += 16 * time.Millisecond
		if n := queue.Fire(now); n != 1 {
			t.Fatalf("tick %d ran %d callbacks", i+1, n)
		}
	}

	want := []int{3, 2, 1, 0}
	if len(lives) != len(want) {
		t.Fatalf("lives sequence %v, want %v", lives, want)
	}
	for i := range want {
		if lives[i] != want[i] {
			t.Fatalf("lives sequence %v, want %v", lives, want)
		}
	}
	if loop.Status() != StatusOver || gameOvers != 1 {
		t.Fatalf("status=%v gameOvers=%d", loop.Status(), gameOvers)
	}
	if surface.last.Lives != 0 {
		t.Errorf("final frame shows %d lives", surface.last.Lives)
	}

	// Nothing is scheduled after Over
	if queue.Pending() != 0 || loop.Scheduled() {
		t.Fatal("a frame is still scheduled after Over")
	}
	state := loop.State()
	renders := surface.renders
	loop.nextSpawn = 0
	for i := 0; i < 5; i++ {
		now += 500 * time.Millisecond
		queue.Fire(now)
		loop.Tick(now)
	}
	if loop.State() != state || loop.ObstacleCount() != 0 || surface.renders != renders {
		t.Error("loop mutated after Over")
	}
}

func TestTeardown(t *testing.T) {
	loop := NewLoop(LoopConfig{Width: testWidth, Height: testHeight, Seed: 3})
	queue := frame.NewQueue()
	input := &fakeInput{}
	surface := &recordingSurface{w: testWidth, h: testHeight}
	loop.Start(surface, queue, input, 0)

	loop.Teardown()
	if queue.Pending() != 0 {
		t.Fatal("pending frame not cancelled")
	}
	if input.detached != 1 {
		t.Fatalf("detach called %d times", input.detached)
	}

	loop.Teardown()
	if input.detached != 1 {
		t.Errorf("second teardown detached again")
	}

	// A stale callback must not render
	loop.Tick(time.Second)
	if surface.renders != 0 {
		t.Errorf("rendered %d frames after teardown", surface.renders)
	}
}

func TestTeardownWithoutStart(t *testing.T) {
	loop := NewLoop(LoopConfig{Width: testWidth, Height: testHeight, Seed: 3})
	loop.Teardown()
	loop.Teardown()

	if loop.Start(&recordingSurface{w: 10, h: 10}, frame.NewQueue(), nil, 0) {
		t.Error("a torn down loop must not start")
	}
}

func TestGameOverDetachesInput(t *testing.T) {
	loop := NewLoop(LoopConfig{Width: testWidth, Height: testHeight, Seed: 3})
	queue := frame.NewQueue()
	input := &fakeInput{}
	loop.Start(&recordingSurface{w: testWidth, h: testHeight}, queue, input, 0)
	holdSpawns(loop)

	loop.state.Lives = 1
	p := loop.Player()
	inject(loop, Obstacle{X: p.X, Y: p.Y, Radius: 20})
	queue.Fire(16 * time.Millisecond)

	if input.detached != 1 {
		t.Fatalf("input not detached on game over")
	}
	loop.Teardown()
	if input.detached != 1 {
		t.Errorf("teardown after Over detached twice")
	}

	target := loop.target
	input.pointer(10, 10)
	if loop.target != target {
		t.Error("pointer accepted after Over")
	}
}

func TestInputObservers(t *testing.T) {
	loop := NewLoop(LoopConfig{Width: testWidth, Height: testHeight, Seed: 3})
	input := &fakeInput{}
	loop.Start(&recordingSurface{w: testWidth, h: testHeight}, frame.NewQueue(), input, 0)

	input.pointer(50, 60)
	if loop.target != (Vec2{X: 50, Y: 60}) {
		t.Errorf("pointer not observed: %+v", loop.target)
	}
	input.resize(200, 100)
	if loop.Field() != (PlayField{Width: 200, Height: 100}) {
		t.Errorf("resize not observed: %+v", loop.Field())
	}
}

func TestResize(t *testing.T) {
	loop, queue, surface := startTestLoop(t, LoopConfig{})
	holdSpawns(loop)
	inject(loop, Obstacle{X: 390, Y: 290, Radius: 20})

	loop.Resize(0, 100)
	loop.Resize(100, -1)
	loop.Resize(math.NaN(), 100)
	if loop.Field() != (PlayField{Width: testWidth, Height: testHeight}) {
		t.Fatalf("invalid size accepted: %+v", loop.Field())
	}

	loop.Resize(160, 120)
	p := loop.Player()
	if p.X > 160-14 || p.Y > 120-14 {
		t.Errorf("player %+v not clamped into 160x120", p)
	}
	if loop.target.X > 160 || loop.target.Y > 120 {
		t.Errorf("target %+v not clamped", loop.target)
	}
	if o := loop.obstacles[0]; o.X != 390 || o.Y != 290 {
		t.Errorf("obstacle moved on resize: %+v", o)
	}

	// Out-of-bounds obstacles are pruned by the exit rule
	queue.Fire(0)
	if loop.ObstacleCount() != 0 {
		t.Error("obstacle below the new field should be pruned")
	}
	if surface.last.Field != (PlayField{Width: 160, Height: 120}) {
		t.Errorf("rendered field %+v", surface.last.Field)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	loop, queue, _ := startTestLoop(t, LoopConfig{})
	holdSpawns(loop)
	inject(loop, Obstacle{X: 20, Y: 20, Radius: 20, Label: "BD"})
	queue.Fire(16 * time.Millisecond)

	snap := loop.Snapshot()
	if len(snap.Obstacles) != 1 || snap.Obstacles[0].Label != "BD" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	snap.Obstacles[0].Label = "changed"
	if loop.Snapshot().Obstacles[0].Label != "BD" {
		t.Error("snapshot aliases loop state")
	}
}

func TestSeededLoopsAreDeterministic(t *testing.T) {
	run := func() []Obstacle {
		var spawned []Obstacle
		loop, queue, _ := startTestLoop(t, LoopConfig{
			Seed:  99,
			Hooks: Hooks{OnSpawn: func(o Obstacle) { spawned = append(spawned, o) }},
		})
		loop.player.Pos = Vec2{X: 14, Y: 14}
		loop.target = loop.player.Pos
		for now := time.Duration(0); now < 5*time.Second; now += 16 * time.Millisecond {
			queue.Fire(now)
		}
		return spawned
	}

	a, b := run(), run()
	if len(a) == 0 || len(a) != len(b) {
		t.Fatalf("spawn counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("spawn %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestEventsEmitted(t *testing.T) {
	events := NewEventLog()
	if err := events.Start(""); err != nil {
		t.Fatal(err)
	}
	defer events.Stop()

	loop, queue, _ := startTestLoop(t, LoopConfig{SessionID: "s1", Events: events})
	holdSpawns(loop)
	loop.state.Lives = 1
	p := loop.Player()
	inject(loop, Obstacle{X: p.X, Y: p.Y, Radius: 20})
	queue.Fire(16 * time.Millisecond)

	// start, hit, game_over
	if got := events.Total(); got != 3 {
		t.Errorf("expected 3 events, got %d", got)
	}
}

type nopSurface struct{ w, h float64 }

func (s nopSurface) Size() (float64, float64) { return s.w, s.h }
func (nopSurface) Render(*Snapshot)           {}

func BenchmarkLoopTick(b *testing.B) {
	loop := NewLoop(LoopConfig{Width: 1280, Height: 720, Seed: 7})
	queue := frame.NewQueue()
	loop.Start(nopSurface{w: 1280, h: 720}, queue, nil, 0)
	holdSpawns(loop)
	for i := 0; i < 32; i++ {
		inject(loop, Obstacle{X: float64(20 + i*30), Y: -1e9, Radius: 20})
	}

	b.ResetTimer()
	b.ReportAllocs()

	now := time.Duration(0)
	for i := 0; i < b.N; i++ {
		now += 16 * time.Millisecond
		queue.Fire(now)
	}
}
