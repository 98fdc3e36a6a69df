package game

import "time"

// ObstacleSnapshot is an immutable obstacle for rendering
type ObstacleSnapshot struct {
	X, Y     float64
	Radius   float64
	Rotation float64
	Label    string
}

// Snapshot is a complete frame of loop state for rendering.
// Values only, so a copy never aliases loop internals.
type Snapshot struct {
	Sequence uint64        // Monotonic frame number
	Time     time.Duration // Frame timestamp from the host clock

	Field        PlayField
	Player       Vec2
	PlayerRadius float64
	Obstacles    []ObstacleSnapshot

	Score  float64
	Lives  int
	Status Status

	Flash        float64 // Hit-flash alpha, 0 when inactive
	FlashOverlay float64 // Overlay opacity at full flash
}

// FlashOpacity returns the overlay opacity for this frame, 0 when no
// flash is showing.
func (s *Snapshot) FlashOpacity() float64 {
	flash := HitFlash{Alpha: s.Flash}
	if !flash.Active() {
		return 0
	}
	return flash.Overlay(s.FlashOverlay)
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *Snapshot) Clone() Snapshot {
	out := *s
	out.Obstacles = append([]ObstacleSnapshot(nil), s.Obstacles...)
	return out
}

// State returns the scoring part of the snapshot.
func (s *Snapshot) State() GameState {
	return GameState{Score: s.Score, Lives: s.Lives, Status: s.Status}
}

// produceSnapshot fills the loop's reusable snapshot in place.
// Obstacles keep their capacity between frames (zero allocation once warm).
func (l *Loop) produceSnapshot(now time.Duration) *Snapshot {
	snap := &l.snap
	l.sequence++

	snap.Sequence = l.sequence
	snap.Time = now
	snap.Field = l.field
	snap.Player = l.player.Pos
	snap.PlayerRadius = l.player.Radius
	snap.Score = l.state.Score
	snap.Lives = l.state.Lives
	snap.Status = l.state.Status
	snap.Flash = l.flash.Alpha
	snap.FlashOverlay = l.tuning.FlashOverlay

	snap.Obstacles = snap.Obstacles[:0]
	for i := range l.obstacles {
		o := &l.obstacles[i]
		snap.Obstacles = append(snap.Obstacles, ObstacleSnapshot{
			X:        o.X,
			Y:        o.Y,
			Radius:   o.Radius,
			Rotation: o.Rotation,
			Label:    o.Label,
		})
	}
	return snap
}
