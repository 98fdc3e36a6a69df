// Package audio plays the arcade's sound cues through the system speaker.
package audio

import (
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/speaker"
)

// SampleRate is shared by cues and music
const SampleRate = beep.SampleRate(44100)

const (
	hitNoteLength      = 60 * time.Millisecond
	gameOverNoteLength = 180 * time.Millisecond
	cueRelease         = 40 * time.Millisecond
)

// Config controls the speaker output
type Config struct {
	Enabled     bool
	Volume      float64 // 0.0-1.0 for cues
	MusicPath   string  // optional OGG Vorbis loop
	MusicVolume float64
}

// Player mixes cues (and optional music) into the speaker.
// A nil or disabled Player accepts every call and stays silent.
type Player struct {
	mu          sync.Mutex
	mixer       *beep.Mixer
	volume      float64
	music       *Music
	initialized bool
}

// NewPlayer opens the speaker. Audio is optional: when the device cannot
// be opened the error is returned together with a silent player.
func NewPlayer(cfg Config) (*Player, error) {
	p := &Player{
		mixer:  &beep.Mixer{},
		volume: cfg.Volume,
	}
	if !cfg.Enabled {
		return p, nil
	}

	if err := speaker.Init(SampleRate, SampleRate.N(100*time.Millisecond)); err != nil {
		return p, fmt.Errorf("init speaker: %w", err)
	}
	p.initialized = true

	if cfg.MusicPath != "" {
		music, err := OpenMusic(cfg.MusicPath, cfg.MusicVolume)
		if err != nil {
			log.Printf("⚠️ Background music disabled: %v", err)
		} else {
			p.music = music
			p.mixer.Add(music.Streamer())
		}
	}

	speaker.Play(p.mixer)
	log.Printf("🔊 Audio ready at %d Hz", SampleRate)
	return p, nil
}

// Enabled reports whether the speaker is open
func (p *Player) Enabled() bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initialized
}

// PlayHit plays the collision blip
func (p *Player) PlayHit() {
	p.play(func(vol float64) beep.Streamer { return HitCue(vol) })
}

// PlayGameOver plays the falling game-over phrase
func (p *Player) PlayGameOver() {
	p.play(func(vol float64) beep.Streamer { return GameOverCue(vol) })
}

func (p *Player) play(build func(vol float64) beep.Streamer) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.initialized {
		return
	}

	s := build(p.volume)
	speaker.Lock()
	p.mixer.Add(s)
	speaker.Unlock()
}

// Close stops playback and releases the music decoder.
func (p *Player) Close() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.initialized {
		return
	}

	speaker.Clear()
	if p.music != nil {
		if err := p.music.Close(); err != nil {
			log.Printf("⚠️ Music close: %v", err)
		}
		p.music = nil
	}
	p.initialized = false
}

// HitCue is a short square blip stepping down a fourth.
func HitCue(volume float64) beep.Streamer {
	high := note(660, hitNoteLength, squareTone)
	low := note(495, hitNoteLength+cueRelease, squareTone)
	return newVolume(beep.Seq(high, low), volume*0.5)
}

// GameOverCue is three falling sine notes.
func GameOverCue(volume float64) beep.Streamer {
	return newVolume(beep.Seq(
		note(523.25, gameOverNoteLength, sineTone),
		note(392.00, gameOverNoteLength, sineTone),
		note(261.63, gameOverNoteLength*2, sineTone),
	), volume)
}

type toneFunc func(sr beep.SampleRate, freq float64) (beep.Streamer, error)

func sineTone(sr beep.SampleRate, freq float64) (beep.Streamer, error) {
	return generators.SineTone(sr, freq)
}

func squareTone(sr beep.SampleRate, freq float64) (beep.Streamer, error) {
	return generators.SquareTone(sr, freq)
}

// note cuts a tone to length and shapes it with a short attack and release
func note(freq float64, length time.Duration, tone toneFunc) beep.Streamer {
	osc, err := tone(SampleRate, freq)
	if err != nil {
		log.Printf("⚠️ Tone %.1f Hz: %v", freq, err)
		return beep.Seq()
	}
	return newEnvelope(beep.Take(SampleRate.N(length), osc), length, 5*time.Millisecond, cueRelease)
}

// envelope applies a linear attack/release to a finite stream
type envelope struct {
	streamer beep.Streamer
	position int
	attack   int
	release  int
	total    int
}

func newEnvelope(s beep.Streamer, length, attack, release time.Duration) beep.Streamer {
	return &envelope{
		streamer: s,
		attack:   SampleRate.N(attack),
		release:  SampleRate.N(release),
		total:    SampleRate.N(length),
	}
}

func (e *envelope) Stream(samples [][2]float64) (n int, ok bool) {
	n, ok = e.streamer.Stream(samples)
	for i := 0; i < n; i++ {
		vol := 1.0
		if e.position < e.attack {
			vol = float64(e.position) / float64(e.attack)
		}
		if remaining := e.total - e.position; remaining < e.release {
			vol = math.Min(vol, float64(remaining)/float64(e.release))
		}
		samples[i][0] *= vol
		samples[i][1] *= vol
		e.position++
	}
	return n, ok
}

func (e *envelope) Err() error { return e.streamer.Err() }

// math.Log2(0) is -Inf, so zero volume is expressed as Silent
func newVolume(s beep.Streamer, vol float64) beep.Streamer {
	if vol <= 0 {
		return &effects.Volume{Streamer: s, Base: 2, Volume: 0, Silent: true}
	}
	return &effects.Volume{Streamer: s, Base: 2, Volume: math.Log2(vol), Silent: false}
}
