package render

import (
	"fmt"
	"log"
	"os"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

const (
	labelFontSize = 11
	hudFontSize   = 12
)

// Faces are the text faces of one canvas.
// A font.Face is not safe for concurrent use, so canvases never share them.
type Faces struct {
	Label font.Face
	HUD   font.Face
}

var (
	parsedOnce sync.Once
	parsedFont *opentype.Font
	parseErr   error
)

// defaultFont parses the embedded Go Regular font once per process
func defaultFont() (*opentype.Font, error) {
	parsedOnce.Do(func() {
		parsedFont, parseErr = opentype.Parse(goregular.TTF)
	})
	return parsedFont, parseErr
}

// LoadFaces creates label and HUD faces from the TTF/OTF at path,
// or from the embedded Go Regular font when path is empty.
func LoadFaces(path string) (*Faces, error) {
	f, err := defaultFont()
	if path != "" {
		var data []byte
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read font: %w", err)
		}
		f, err = opentype.Parse(data)
	}
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}

	label, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    labelFontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("label face: %w", err)
	}

	hud, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    hudFontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("hud face: %w", err)
	}

	return &Faces{Label: label, HUD: hud}, nil
}

// mustFaces falls back to the embedded font if path cannot be loaded.
func mustFaces(path string) *Faces {
	faces, err := LoadFaces(path)
	if err == nil {
		return faces
	}
	log.Printf("⚠️ Font %q unavailable (%v), using Go Regular", path, err)

	faces, err = LoadFaces("")
	if err != nil {
		// The embedded font is part of the binary
		panic(err)
	}
	return faces
}
