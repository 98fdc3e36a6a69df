package game

import (
	"fmt"
	"math"
	"time"
)

// Status is the lifecycle state of a loop.
type Status uint8

const (
	StatusPlaying Status = iota
	StatusOver
)

// String returns the wire name of the status.
func (s Status) String() string {
	switch s {
	case StatusPlaying:
		return "playing"
	case StatusOver:
		return "over"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name so JSON payloads stay readable.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "playing":
		*s = StatusPlaying
	case "over":
		*s = StatusOver
	default:
		return fmt.Errorf("unknown status %q", text)
	}
	return nil
}

// Vec2 is a point in surface-local pixels.
type Vec2 struct {
	X, Y float64
}

// PlayField is the simulation and render bounds.
type PlayField struct {
	Width  float64
	Height float64
}

// Valid reports whether both dimensions are positive.
func (f PlayField) Valid() bool {
	return f.Width > 0 && f.Height > 0
}

// Clamp keeps p at least margin away from every edge.
// A field narrower than 2*margin pins the axis to its centre.
func (f PlayField) Clamp(p Vec2, margin float64) Vec2 {
	return Vec2{
		X: clampAxis(p.X, margin, f.Width-margin, f.Width/2),
		Y: clampAxis(p.Y, margin, f.Height-margin, f.Height/2),
	}
}

func clampAxis(v, lo, hi, mid float64) float64 {
	if hi < lo {
		return mid
	}
	return math.Max(lo, math.Min(hi, v))
}

// Player is the pointer-controlled plane.
type Player struct {
	Pos    Vec2
	Radius float64
}

// Obstacle is a falling meteor.
type Obstacle struct {
	ID       uint64
	X, Y     float64
	Radius   float64
	Speed    float64 // px/s downward
	Label    string
	Rotation float64
	Spin     float64 // rad per frame
}

// Advance moves the obstacle by one frame of dt.
func (o *Obstacle) Advance(dt time.Duration) {
	o.Y += o.Speed * dt.Seconds()
	o.Rotation += o.Spin
}

// Exited reports whether the obstacle is fully below the field plus margin.
func (o *Obstacle) Exited(height, margin float64) bool {
	return o.Y-o.Radius > height+margin
}

// Hits reports a circle overlap with a body of radius r at p.
func (o *Obstacle) Hits(p Vec2, r float64) bool {
	return math.Hypot(o.X-p.X, o.Y-p.Y) < o.Radius+r
}

// GameState is the scoring state exposed to hosts.
type GameState struct {
	Score  float64 `json:"score"`
	Lives  int     `json:"lives"`
	Status Status  `json:"status"`
}
