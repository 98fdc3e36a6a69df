package game

import "time"

// Tuning holds the gameplay constants of a loop.
// DefaultTuning matches the shipped game; config overrides adjust single fields.
type Tuning struct {
	PlayerRadius float64 // Collision radius and clamp margin of the plane
	Smoothing    float64 // Fraction of the pointer distance covered per frame
	StartLives   int
	StartY       float64 // Vertical start position as a fraction of field height

	FirstSpawn    time.Duration // Delay from start to the first obstacle
	SpawnDelayMin time.Duration
	SpawnDelayMax time.Duration

	RadiusMin   float64
	RadiusMax   float64
	SpeedMin    float64 // px/s
	SpeedMax    float64 // px/s
	SpawnOffset float64 // Extra distance above the top edge
	SpinMax     float64 // rad per frame, both directions
	ExitMargin  float64 // Distance below the bottom edge before pruning

	MaxFrameDelta time.Duration // dt cap after stalls
	ScoreRate     float64       // Score per elapsed millisecond
	FlashDecay    float64       // Hit-flash alpha lost per rendered frame
	FlashOverlay  float64       // Overlay opacity at full flash
}

// DefaultTuning returns the tuning of the original mini-game.
func DefaultTuning() Tuning {
	return Tuning{
		PlayerRadius: 14,
		Smoothing:    0.12,
		StartLives:   3,
		StartY:       0.75,

		FirstSpawn:    600 * time.Millisecond,
		SpawnDelayMin: 500 * time.Millisecond,
		SpawnDelayMax: 1100 * time.Millisecond,

		RadiusMin:   18,
		RadiusMax:   28,
		SpeedMin:    90,
		SpeedMax:    200,
		SpawnOffset: 10,
		SpinMax:     0.02,
		ExitMargin:  30,

		MaxFrameDelta: 32 * time.Millisecond,
		ScoreRate:     0.02,
		FlashDecay:    0.06,
		FlashOverlay:  0.25,
	}
}

// ResourceLimits caps per-loop allocations.
type ResourceLimits struct {
	MaxObstacles int // Spawns are skipped while the field holds this many
}

// DefaultLimits is far above what the spawn cadence produces on a normal field.
var DefaultLimits = ResourceLimits{
	MaxObstacles: 64,
}

// DefaultLabels are the skill names painted on falling meteors.
var DefaultLabels = []string{"Product Management", "Smart Contract", "Research", "BD"}
