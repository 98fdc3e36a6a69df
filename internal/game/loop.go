package game

import (
	"log"
	"math"
	"math/rand"
	"time"
)

// Surface is the rendering target of a loop.
// Render receives a snapshot that is only valid for the duration of the call.
type Surface interface {
	Size() (width, height float64)
	Render(snap *Snapshot)
}

// FrameScheduler mirrors an animation-frame API: callbacks run once, on the
// host's frame thread, with a monotonically increasing timestamp.
type FrameScheduler interface {
	RequestFrame(cb func(now time.Duration)) uint64
	CancelFrame(id uint64)
}

// InputSource delivers pointer and resize notifications to the loop.
// The returned detach function unregisters both observers.
type InputSource interface {
	Observe(pointer func(x, y float64), resize func(width, height float64)) (detach func())
}

// Hooks are invoked synchronously on the frame thread.
// They must not call back into the loop.
type Hooks struct {
	OnSpawn    func(o Obstacle)
	OnHit      func(o Obstacle, lives int)
	OnGameOver func(state GameState)
	OnRender   func(d time.Duration)
}

// LoopConfig configures a new loop
type LoopConfig struct {
	Width  float64
	Height float64

	Tuning Tuning
	Limits ResourceLimits
	Labels []string

	// Seed for the spawn RNG. Zero picks a time-based seed.
	Seed int64

	SessionID string
	Events    *EventLog
	Hooks     Hooks
}

// Loop is the arcade simulation: one plane, falling obstacles, score and lives.
// It is single-threaded: every method must be called from the frame thread.
type Loop struct {
	field  PlayField
	tuning Tuning
	limits ResourceLimits
	labels []string

	player    Player
	target    Vec2
	obstacles []Obstacle
	state     GameState
	flash     HitFlash

	startTime time.Duration
	lastFrame time.Duration
	nextSpawn time.Duration
	frames    uint64
	sequence  uint64
	nextID    uint64

	surface   Surface
	scheduler FrameScheduler
	pending   uint64
	scheduled bool
	detach    func()
	started   bool
	tornDown  bool

	snap Snapshot

	rng       *rand.Rand
	seed      int64
	sessionID string
	events    *EventLog
	hooks     Hooks
}

// NewLoop creates a loop in the Playing state with the player at its start
// position. Nothing runs until Start.
func NewLoop(cfg LoopConfig) *Loop {
	tuning := cfg.Tuning
	if tuning == (Tuning{}) {
		tuning = DefaultTuning()
	}
	limits := cfg.Limits
	if limits.MaxObstacles <= 0 {
		limits = DefaultLimits
	}
	labels := cfg.Labels
	if len(labels) == 0 {
		labels = DefaultLabels
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	l := &Loop{
		field:     PlayField{Width: cfg.Width, Height: cfg.Height},
		tuning:    tuning,
		limits:    limits,
		labels:    labels,
		obstacles: make([]Obstacle, 0, limits.MaxObstacles),
		state: GameState{
			Lives:  tuning.StartLives,
			Status: StatusPlaying,
		},
		player:    Player{Radius: tuning.PlayerRadius},
		snap:      Snapshot{Obstacles: make([]ObstacleSnapshot, 0, limits.MaxObstacles)},
		rng:       rand.New(rand.NewSource(seed)),
		seed:      seed,
		sessionID: cfg.SessionID,
		events:    cfg.Events,
		hooks:     cfg.Hooks,
	}
	l.resetPositions()
	return l
}

// resetPositions puts plane and pointer target at the start point.
func (l *Loop) resetPositions() {
	start := Vec2{X: l.field.Width / 2, Y: l.field.Height * l.tuning.StartY}
	l.player.Pos = l.field.Clamp(start, l.player.Radius)
	l.target = l.player.Pos
}

// Start attaches the loop to its host and requests the first frame.
// A missing surface or scheduler leaves the loop untouched and returns false.
// input may be nil when the host feeds SetPointer/Resize directly.
func (l *Loop) Start(surface Surface, scheduler FrameScheduler, input InputSource, now time.Duration) bool {
	if surface == nil || scheduler == nil {
		return false
	}
	if l.started || l.tornDown {
		return false
	}

	if w, h := surface.Size(); w > 0 && h > 0 {
		l.field = PlayField{Width: w, Height: h}
		l.resetPositions()
	}

	l.surface = surface
	l.scheduler = scheduler
	l.started = true
	l.startTime = now
	l.lastFrame = now
	l.nextSpawn = now + l.tuning.FirstSpawn

	if input != nil {
		l.detach = input.Observe(l.SetPointer, l.Resize)
	}

	l.events.EmitSimple(EventTypeStart, l.frames, l.sessionID, StartPayload{
		Seed:   l.seed,
		Width:  l.field.Width,
		Height: l.field.Height,
	})

	l.requestFrame()
	return true
}

// Tick runs one frame: update, render, then either schedule the next
// frame or finish the game. Ticks after Over or teardown are ignored.
func (l *Loop) Tick(now time.Duration) {
	l.scheduled = false
	if !l.started || l.tornDown || l.state.Status != StatusPlaying {
		return
	}

	l.update(now)
	l.render(now)

	if l.state.Lives <= 0 {
		l.finish(now)
		return
	}
	l.requestFrame()
}

// update advances the simulation by one frame.
// Order: dt → player → spawn → obstacles/collisions → score.
func (l *Loop) update(now time.Duration) {
	l.frames++

	dt := now - l.lastFrame
	if dt < 0 {
		dt = 0
	}
	if dt > l.tuning.MaxFrameDelta {
		dt = l.tuning.MaxFrameDelta
	}
	l.lastFrame = now

	l.player.Pos.X += (l.target.X - l.player.Pos.X) * l.tuning.Smoothing
	l.player.Pos.Y += (l.target.Y - l.player.Pos.Y) * l.tuning.Smoothing
	l.player.Pos = l.field.Clamp(l.player.Pos, l.player.Radius)

	if now > l.nextSpawn {
		l.spawn(now)
	}

	// Zero-allocation in-place filtering
	n := 0
	for i := range l.obstacles {
		o := l.obstacles[i]
		o.Advance(dt)
		if o.Exited(l.field.Height, l.tuning.ExitMargin) {
			continue
		}
		if o.Hits(l.player.Pos, l.player.Radius) {
			l.hit(o)
			continue
		}
		l.obstacles[n] = o
		n++
	}
	l.obstacles = l.obstacles[:n]

	l.state.Score += float64(dt) / float64(time.Millisecond) * l.tuning.ScoreRate
}

// spawn creates one obstacle above the top edge and schedules the next.
func (l *Loop) spawn(now time.Duration) {
	l.nextSpawn = now + l.tuning.SpawnDelayMin +
		time.Duration(l.rng.Float64()*float64(l.tuning.SpawnDelayMax-l.tuning.SpawnDelayMin))

	// HARD CAP: a stalled field never grows without bound
	if len(l.obstacles) >= l.limits.MaxObstacles {
		return
	}

	radius := l.tuning.RadiusMin + l.rng.Float64()*(l.tuning.RadiusMax-l.tuning.RadiusMin)
	x := l.field.Width / 2
	if span := l.field.Width - radius*2; span > 0 {
		x = radius + l.rng.Float64()*span
	}

	l.nextID++
	o := Obstacle{
		ID:       l.nextID,
		X:        x,
		Y:        -radius - l.tuning.SpawnOffset,
		Radius:   radius,
		Speed:    l.tuning.SpeedMin + l.rng.Float64()*(l.tuning.SpeedMax-l.tuning.SpeedMin),
		Label:    l.labels[l.rng.Intn(len(l.labels))],
		Rotation: l.rng.Float64() * math.Pi * 2,
		Spin:     (l.rng.Float64() - 0.5) * 2 * l.tuning.SpinMax,
	}
	l.obstacles = append(l.obstacles, o)

	l.events.EmitSimple(EventTypeSpawn, l.frames, l.sessionID, SpawnPayload{
		ObstacleID: o.ID,
		X:          o.X,
		Radius:     o.Radius,
		Speed:      o.Speed,
		Label:      o.Label,
	})
	if l.hooks.OnSpawn != nil {
		l.hooks.OnSpawn(o)
	}
}

// hit applies a collision. Lives never drop below zero.
func (l *Loop) hit(o Obstacle) {
	if l.state.Lives > 0 {
		l.state.Lives--
	}
	l.flash.Trigger()

	l.events.EmitSimple(EventTypeHit, l.frames, l.sessionID, HitPayload{
		ObstacleID: o.ID,
		Label:      o.Label,
		LivesLeft:  l.state.Lives,
		Score:      l.state.Score,
	})
	if l.hooks.OnHit != nil {
		l.hooks.OnHit(o, l.state.Lives)
	}
}

// render hands the frame to the surface, then decays the flash.
func (l *Loop) render(now time.Duration) {
	snap := l.produceSnapshot(now)

	start := time.Now()
	l.surface.Render(snap)
	if l.hooks.OnRender != nil {
		l.hooks.OnRender(time.Since(start))
	}

	l.flash.Update(l.tuning.FlashDecay)
}

// finish moves the loop to Over. Runs at most once.
func (l *Loop) finish(now time.Duration) {
	if l.state.Status == StatusOver {
		return
	}
	l.state.Status = StatusOver
	l.cancelFrame()
	l.detachInput()

	log.Printf("💥 Game over after %d frames (score %d)", l.frames, int(l.state.Score))
	l.events.EmitSimple(EventTypeGameOver, l.frames, l.sessionID, GameOverPayload{
		Score:    l.state.Score,
		Frames:   l.frames,
		Duration: (now - l.startTime).Milliseconds(),
	})
	if l.hooks.OnGameOver != nil {
		l.hooks.OnGameOver(l.state)
	}
}

// SetPointer updates the target the plane steers toward.
// Coordinates are clamped into the play field; ignored once Over.
func (l *Loop) SetPointer(x, y float64) {
	if l.tornDown || l.state.Status != StatusPlaying {
		return
	}
	l.target = Vec2{
		X: math.Max(0, math.Min(l.field.Width, x)),
		Y: math.Max(0, math.Min(l.field.Height, y)),
	}
}

// Resize changes the play field. The plane and pointer target keep their
// absolute coordinates and are clamped into the new bounds; obstacles are
// left alone and exit through the normal pruning rule.
func (l *Loop) Resize(width, height float64) {
	field := PlayField{Width: width, Height: height}
	if !field.Valid() || l.tornDown || field == l.field {
		return
	}
	l.field = field
	l.player.Pos = l.field.Clamp(l.player.Pos, l.player.Radius)
	l.target = Vec2{
		X: math.Max(0, math.Min(width, l.target.X)),
		Y: math.Max(0, math.Min(height, l.target.Y)),
	}

	l.events.EmitSimple(EventTypeResize, l.frames, l.sessionID, ResizePayload{Width: width, Height: height})
}

// Teardown cancels the pending frame and detaches input observers.
// Calling it again, or on a loop that never started, is a no-op.
func (l *Loop) Teardown() {
	if l.tornDown {
		return
	}
	l.tornDown = true
	l.cancelFrame()
	l.detachInput()

	if l.started {
		l.events.EmitSimple(EventTypeTeardown, l.frames, l.sessionID, nil)
	}
}

func (l *Loop) requestFrame() {
	if l.scheduled {
		return
	}
	l.pending = l.scheduler.RequestFrame(l.Tick)
	l.scheduled = true
}

func (l *Loop) cancelFrame() {
	if !l.scheduled {
		return
	}
	l.scheduler.CancelFrame(l.pending)
	l.scheduled = false
}

func (l *Loop) detachInput() {
	if l.detach != nil {
		l.detach()
		l.detach = nil
	}
}

// Status returns Playing or Over.
func (l *Loop) Status() Status {
	return l.state.Status
}

// State returns a copy of score, lives and status.
func (l *Loop) State() GameState {
	return l.state
}

// Field returns the current play field.
func (l *Loop) Field() PlayField {
	return l.field
}

// Player returns the plane position.
func (l *Loop) Player() Vec2 {
	return l.player.Pos
}

// ObstacleCount returns the number of live obstacles.
func (l *Loop) ObstacleCount() int {
	return len(l.obstacles)
}

// Frames returns the number of updates run so far.
func (l *Loop) Frames() uint64 {
	return l.frames
}

// Seed returns the spawn RNG seed for replay.
func (l *Loop) Seed() int64 {
	return l.seed
}

// Scheduled reports whether a frame callback is pending.
func (l *Loop) Scheduled() bool {
	return l.scheduled
}

// Snapshot returns a deep copy of the most recently rendered frame.
func (l *Loop) Snapshot() Snapshot {
	return l.snap.Clone()
}
