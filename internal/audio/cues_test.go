package audio

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/gopxl/beep"
)

// drain streams s to the end and returns the sample count and peak level.
func drain(t *testing.T, s beep.Streamer) (int, float64) {
	t.Helper()
	buf := make([][2]float64, 512)
	total := 0
	peak := 0.0
	for i := 0; i < 10000; i++ {
		n, ok := s.Stream(buf)
		for _, smp := range buf[:n] {
			if smp[0] > peak {
				peak = smp[0]
			}
			if -smp[0] > peak {
				peak = -smp[0]
			}
		}
		total += n
		if !ok {
			return total, peak
		}
	}
	t.Fatal("stream never ended")
	return 0, 0
}

func TestCueLengths(t *testing.T) {
	tests := []struct {
		name string
		cue  beep.Streamer
		want int
	}{
		{"hit", HitCue(1), SampleRate.N(hitNoteLength) + SampleRate.N(hitNoteLength+cueRelease)},
		{"game over", GameOverCue(1), 2*SampleRate.N(gameOverNoteLength) + SampleRate.N(2*gameOverNoteLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, peak := drain(t, tt.cue)
			if got != tt.want {
				t.Errorf("cue is %d samples, want %d", got, tt.want)
			}
			if peak == 0 || peak > 1.0001 {
				t.Errorf("peak level %v", peak)
			}
		})
	}
}

func TestSilentCue(t *testing.T) {
	_, peak := drain(t, HitCue(0))
	if peak != 0 {
		t.Errorf("zero volume cue peaked at %v", peak)
	}
}

func TestEnvelopeEnds(t *testing.T) {
	osc := note(440, 20*time.Millisecond, sineTone)
	buf := make([][2]float64, SampleRate.N(time.Second))
	n, _ := osc.Stream(buf)
	if n != SampleRate.N(20*time.Millisecond) {
		t.Fatalf("streamed %d samples", n)
	}
	// Release reaches silence on the last sample
	if last := buf[n-1][0]; last > 0.01 || last < -0.01 {
		t.Errorf("last sample %v not faded out", last)
	}
}

func TestDisabledPlayer(t *testing.T) {
	p, err := NewPlayer(Config{Enabled: false, Volume: 1})
	if err != nil {
		t.Fatal(err)
	}
	if p.Enabled() {
		t.Error("disabled player reports enabled")
	}
	p.PlayHit()
	p.PlayGameOver()
	p.Close()

	var nilPlayer *Player
	nilPlayer.PlayHit()
	nilPlayer.Close()
}

func TestOpenMusicMissing(t *testing.T) {
	if _, err := OpenMusic(filepath.Join(t.TempDir(), "none.ogg"), 0.2); err == nil {
		t.Error("expected error")
	}
}
