// Package config provides centralized configuration management.
// Defaults live in the Default* constructors; environment variables
// (ARCADE_*, PORT) override single fields through struct tags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"flight-arcade/internal/game"
)

// =============================================================================
// PLAY FIELD
// =============================================================================

// FieldConfig is the logical size of a new play field and its pixel ratio.
type FieldConfig struct {
	Width  float64 `env:"ARCADE_WIDTH"`
	Height float64 `env:"ARCADE_HEIGHT"`
	Ratio  float64 `env:"ARCADE_PIXEL_RATIO"` // Device pixels per logical pixel
}

// DefaultField returns a portrait field sized for a phone browser.
func DefaultField() FieldConfig {
	return FieldConfig{
		Width:  480,
		Height: 640,
		Ratio:  1,
	}
}

// =============================================================================
// GAMEPLAY TUNING
// =============================================================================

// TuningConfig mirrors game.Tuning with environment overrides.
type TuningConfig struct {
	PlayerRadius float64 `env:"ARCADE_PLAYER_RADIUS"`
	Smoothing    float64 `env:"ARCADE_SMOOTHING"`
	StartLives   int     `env:"ARCADE_START_LIVES"`

	FirstSpawn    time.Duration `env:"ARCADE_FIRST_SPAWN"`
	SpawnDelayMin time.Duration `env:"ARCADE_SPAWN_DELAY_MIN"`
	SpawnDelayMax time.Duration `env:"ARCADE_SPAWN_DELAY_MAX"`

	RadiusMin float64 `env:"ARCADE_RADIUS_MIN"`
	RadiusMax float64 `env:"ARCADE_RADIUS_MAX"`
	SpeedMin  float64 `env:"ARCADE_SPEED_MIN"`
	SpeedMax  float64 `env:"ARCADE_SPEED_MAX"`

	ScoreRate  float64 `env:"ARCADE_SCORE_RATE"`
	FlashDecay float64 `env:"ARCADE_FLASH_DECAY"`

	Labels []string `env:"ARCADE_LABELS" envSeparator:","`
}

// DefaultTuning returns the shipped gameplay constants.
func DefaultTuning() TuningConfig {
	t := game.DefaultTuning()
	return TuningConfig{
		PlayerRadius:  t.PlayerRadius,
		Smoothing:     t.Smoothing,
		StartLives:    t.StartLives,
		FirstSpawn:    t.FirstSpawn,
		SpawnDelayMin: t.SpawnDelayMin,
		SpawnDelayMax: t.SpawnDelayMax,
		RadiusMin:     t.RadiusMin,
		RadiusMax:     t.RadiusMax,
		SpeedMin:      t.SpeedMin,
		SpeedMax:      t.SpeedMax,
		ScoreRate:     t.ScoreRate,
		FlashDecay:    t.FlashDecay,
		Labels:        append([]string(nil), game.DefaultLabels...),
	}
}

// Game converts the overrides into a game.Tuning.
// Fields the config does not expose keep their game defaults.
func (c TuningConfig) Game() game.Tuning {
	t := game.DefaultTuning()
	t.PlayerRadius = c.PlayerRadius
	t.Smoothing = c.Smoothing
	t.StartLives = c.StartLives
	t.FirstSpawn = c.FirstSpawn
	t.SpawnDelayMin = c.SpawnDelayMin
	t.SpawnDelayMax = c.SpawnDelayMax
	t.RadiusMin = c.RadiusMin
	t.RadiusMax = c.RadiusMax
	t.SpeedMin = c.SpeedMin
	t.SpeedMax = c.SpeedMax
	t.ScoreRate = c.ScoreRate
	t.FlashDecay = c.FlashDecay
	return t
}

// =============================================================================
// RESOURCE LIMITS
// =============================================================================

// ResourceLimits controls DoS protection and performance limits.
type ResourceLimits struct {
	MaxObstacles       int           `env:"ARCADE_MAX_OBSTACLES"`        // Per loop
	MaxSessions        int           `env:"ARCADE_MAX_SESSIONS"`         // Concurrent server sessions
	SessionIdleTimeout time.Duration `env:"ARCADE_SESSION_IDLE_TIMEOUT"` // Reap sessions without input
	RequestsPerSecond  float64       `env:"ARCADE_RATE_LIMIT"`           // Per-IP HTTP rate
	RequestBurst       int           `env:"ARCADE_RATE_BURST"`
	WSMessagesPerSec   float64       `env:"ARCADE_WS_RATE_LIMIT"` // Per-connection input rate
}

// DefaultLimits returns the default resource limits.
func DefaultLimits() ResourceLimits {
	return ResourceLimits{
		MaxObstacles:       game.DefaultLimits.MaxObstacles,
		MaxSessions:        64,
		SessionIdleTimeout: 5 * time.Minute,
		RequestsPerSecond:  20,
		RequestBurst:       40,
		WSMessagesPerSec:   120, // Pointer moves arrive at display rate
	}
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port        int      `env:"PORT"`
	CORSOrigins []string `env:"ARCADE_CORS_ORIGINS" envSeparator:","`
	FPS         int      `env:"ARCADE_FPS"`          // Session tick rate
	FrameEvery  int      `env:"ARCADE_FRAME_EVERY"`  // Send a PNG every N rendered frames
	AdminToken  string   `env:"ARCADE_ADMIN_TOKEN"`  // Empty disables the admin routes
	TokenSecret string   `env:"ARCADE_TOKEN_SECRET"` // Signs session tokens; random when empty

	SecureCookies bool `env:"ARCADE_SECURE_COOKIES"` // Set behind HTTPS
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:        3000,
		CORSOrigins: []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		FPS:         60,
		FrameEvery:  4, // 15 PNG frames/s at 60 FPS
	}
}

// =============================================================================
// AUDIO CONFIGURATION
// =============================================================================

// AudioConfig holds audio mixer settings.
type AudioConfig struct {
	Enabled     bool    `env:"ARCADE_AUDIO"`
	Volume      float64 `env:"ARCADE_VOLUME"`
	MusicPath   string  `env:"ARCADE_MUSIC"`
	MusicVolume float64 `env:"ARCADE_MUSIC_VOLUME"`
}

// DefaultAudio returns the default audio configuration.
func DefaultAudio() AudioConfig {
	return AudioConfig{
		Enabled:     true,
		Volume:      0.5,
		MusicVolume: 0.15,
	}
}

// =============================================================================
// DEBUG / OBSERVABILITY
// =============================================================================

// DebugConfig configures the pprof/metrics server.
type DebugConfig struct {
	Enabled  bool   `env:"ARCADE_DEBUG"`
	Addr     string `env:"ARCADE_DEBUG_ADDR"`
	Username string `env:"ARCADE_DEBUG_USER"`
	Password string `env:"ARCADE_DEBUG_PASSWORD"`
}

// DefaultDebug binds to localhost only.
func DefaultDebug() DebugConfig {
	return DebugConfig{
		Enabled: true,
		Addr:    "127.0.0.1:6060",
	}
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Field  FieldConfig
	Tuning TuningConfig
	Limits ResourceLimits
	Server ServerConfig
	Audio  AudioConfig
	Debug  DebugConfig

	EventLogPath string `env:"ARCADE_EVENT_LOG"` // Empty keeps events in memory
	FontPath     string `env:"ARCADE_FONT"`      // Empty uses Go Regular
	Seed         int64  `env:"ARCADE_SEED"`      // Zero picks a time-based seed
}

// Default returns the configuration without environment overrides.
func Default() AppConfig {
	return AppConfig{
		Field:  DefaultField(),
		Tuning: DefaultTuning(),
		Limits: DefaultLimits(),
		Server: DefaultServer(),
		Audio:  DefaultAudio(),
		Debug:  DefaultDebug(),
	}
}

// Load returns the complete configuration with environment overrides.
func Load() (AppConfig, error) {
	return LoadFrom(nil)
}

// LoadFrom applies overrides from environ instead of the process environment.
// A nil map reads os.Environ.
func LoadFrom(environ map[string]string) (AppConfig, error) {
	cfg := Default()
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects values the loop or server cannot run with.
func (c AppConfig) Validate() error {
	switch {
	case c.Field.Width <= 0 || c.Field.Height <= 0:
		return fmt.Errorf("field size must be positive, got %gx%g", c.Field.Width, c.Field.Height)
	case c.Field.Ratio <= 0:
		return fmt.Errorf("pixel ratio must be positive, got %g", c.Field.Ratio)
	case c.Tuning.StartLives <= 0:
		return fmt.Errorf("start lives must be positive, got %d", c.Tuning.StartLives)
	case c.Tuning.SpawnDelayMin <= 0 || c.Tuning.SpawnDelayMax < c.Tuning.SpawnDelayMin:
		return fmt.Errorf("invalid spawn delay range %v..%v", c.Tuning.SpawnDelayMin, c.Tuning.SpawnDelayMax)
	case c.Tuning.RadiusMin <= 0 || c.Tuning.RadiusMax < c.Tuning.RadiusMin:
		return fmt.Errorf("invalid radius range %g..%g", c.Tuning.RadiusMin, c.Tuning.RadiusMax)
	case c.Tuning.SpeedMin <= 0 || c.Tuning.SpeedMax < c.Tuning.SpeedMin:
		return fmt.Errorf("invalid speed range %g..%g", c.Tuning.SpeedMin, c.Tuning.SpeedMax)
	case c.Tuning.Smoothing <= 0 || c.Tuning.Smoothing > 1:
		return fmt.Errorf("smoothing must be in (0,1], got %g", c.Tuning.Smoothing)
	case c.Tuning.FlashDecay <= 0:
		return fmt.Errorf("flash decay must be positive, got %g", c.Tuning.FlashDecay)
	case c.Limits.MaxObstacles <= 0:
		return fmt.Errorf("max obstacles must be positive, got %d", c.Limits.MaxObstacles)
	case c.Limits.MaxSessions <= 0:
		return fmt.Errorf("max sessions must be positive, got %d", c.Limits.MaxSessions)
	case c.Server.FPS <= 0 || c.Server.FPS > 240:
		return fmt.Errorf("fps must be in 1..240, got %d", c.Server.FPS)
	case c.Server.FrameEvery <= 0:
		return fmt.Errorf("frame interval must be positive, got %d", c.Server.FrameEvery)
	}
	for i, label := range c.Tuning.Labels {
		if strings.TrimSpace(label) == "" {
			return fmt.Errorf("label %d is blank", i)
		}
	}
	return nil
}

// GameLimits returns the per-loop limits.
func (c AppConfig) GameLimits() game.ResourceLimits {
	return game.ResourceLimits{MaxObstacles: c.Limits.MaxObstacles}
}
