package audio

import (
	"fmt"
	"log"
	"os"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/vorbis"
)

// Music is a looping OGG Vorbis track decoded on demand.
type Music struct {
	decoder  beep.StreamSeekCloser
	streamer beep.Streamer
}

// OpenMusic opens path and prepares an endless loop at SampleRate.
func OpenMusic(path string, volume float64) (*Music, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open music: %w", err)
	}

	// Decode OGG Vorbis - this sets up streaming, NOT full decode
	decoder, format, err := vorbis.Decode(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("decode music: %w", err)
	}

	var s beep.Streamer = beep.Loop(-1, decoder)
	if format.SampleRate != SampleRate {
		log.Printf("   Resampling music from %d Hz to %d Hz", format.SampleRate, SampleRate)
		s = beep.Resample(4, format.SampleRate, SampleRate, s)
	}

	log.Printf("✅ Background music loaded: %s", path)
	return &Music{
		decoder:  decoder,
		streamer: newVolume(s, volume),
	}, nil
}

// Streamer returns the looping, volume-adjusted stream.
func (m *Music) Streamer() beep.Streamer {
	return m.streamer
}

// Close releases the decoder and its file.
func (m *Music) Close() error {
	return m.decoder.Close()
}
