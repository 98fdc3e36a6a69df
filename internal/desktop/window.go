// Package desktop hosts the arcade in a native window through ebiten.
package desktop

import (
	"errors"
	"fmt"
	"image/color"
	"log"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"flight-arcade/internal/audio"
	"flight-arcade/internal/game"
	"flight-arcade/internal/host"
)

// ErrQuit is returned by Run when the player closes the game with Escape.
var ErrQuit = errors.New("quit")

// Config configures the window.
type Config struct {
	Title  string
	Width  int
	Height int
	TPS    int

	Tuning   game.Tuning
	Limits   game.ResourceLimits
	Labels   []string
	FontPath string
	Seed     int64
	Events   *game.EventLog

	Audio *audio.Player
}

// Window implements ebiten.Game. Update, Layout and Draw all run on the
// ebiten game goroutine, which is the loop's frame thread.
type Window struct {
	cfg   Config
	host  *host.Host
	start time.Time

	offscreen *ebiten.Image
	touches   []ebiten.TouchID

	lastCursor [2]int
	width      int
	height     int
	ratio      float64
	started    bool
}

// New creates a window. The loop starts on the first Update so that the
// field matches the real window size.
func New(cfg Config) *Window {
	if cfg.Title == "" {
		cfg.Title = "Flight Arcade"
	}
	if cfg.TPS <= 0 {
		cfg.TPS = 60
	}
	w := &Window{cfg: cfg, width: cfg.Width, height: cfg.Height, ratio: 1}
	w.host = host.New(host.Config{
		Width:    float64(cfg.Width),
		Height:   float64(cfg.Height),
		Ratio:    1,
		Tuning:   cfg.Tuning,
		Limits:   cfg.Limits,
		Labels:   cfg.Labels,
		FontPath: cfg.FontPath,
		Seed:     cfg.Seed,
		Events:   cfg.Events,
		Hooks: game.Hooks{
			OnHit: func(o game.Obstacle, lives int) {
				cfg.Audio.PlayHit()
			},
			OnGameOver: func(state game.GameState) {
				cfg.Audio.PlayGameOver()
				log.Printf("💥 Game over, score %d", int(state.Score))
			},
		},
	})
	return w
}

// Run opens the window and blocks until it closes.
func (w *Window) Run() error {
	ebiten.SetWindowTitle(w.cfg.Title)
	ebiten.SetWindowSize(w.cfg.Width, w.cfg.Height)
	ebiten.SetWindowSizeLimits(160, 200, -1, -1)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetTPS(w.cfg.TPS)

	defer w.host.Close()
	err := ebiten.RunGame(w)
	if errors.Is(err, ErrQuit) {
		return nil
	}
	return err
}

func (w *Window) now() time.Duration {
	return time.Since(w.start)
}

// Update implements ebiten.Game.
func (w *Window) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		return ErrQuit
	}
	if !w.started {
		w.start = time.Now()
		w.started = true
		w.host.Start(0)
	}

	now := w.now()
	if w.host.State().Status == game.StatusOver && w.restartPressed() {
		w.host.Restart(now)
	}

	if x, y, ok := w.pointer(); ok {
		w.host.Pointer(x, y)
	}

	w.host.Advance(now)
	return nil
}

func (w *Window) restartPressed() bool {
	if inpututil.IsKeyJustPressed(ebiten.KeyR) || inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		return true
	}
	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		return true
	}
	w.touches = inpututil.AppendJustPressedTouchIDs(w.touches[:0])
	return len(w.touches) > 0
}

// pointer returns the latest pointer position in field units. A touch
// wins over the mouse; the mouse only counts when it moved or is held.
func (w *Window) pointer() (float64, float64, bool) {
	w.touches = ebiten.AppendTouchIDs(w.touches[:0])
	if len(w.touches) > 0 {
		x, y := ebiten.TouchPosition(w.touches[0])
		return w.toField(x, y)
	}

	x, y := ebiten.CursorPosition()
	moved := x != w.lastCursor[0] || y != w.lastCursor[1]
	w.lastCursor = [2]int{x, y}
	if !moved && !ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft) {
		return 0, 0, false
	}
	return w.toField(x, y)
}

func (w *Window) toField(x, y int) (float64, float64, bool) {
	if x < 0 || y < 0 {
		return 0, 0, false
	}
	return float64(x) / w.ratio, float64(y) / w.ratio, true
}

// Layout implements ebiten.Game. The screen is laid out in device pixels
// so the canvas backing store maps one to one.
func (w *Window) Layout(outsideWidth, outsideHeight int) (int, int) {
	ratio := ebiten.Monitor().DeviceScaleFactor()
	if ratio <= 0 {
		ratio = 1
	}
	if outsideWidth != w.width || outsideHeight != w.height || ratio != w.ratio {
		w.width, w.height, w.ratio = outsideWidth, outsideHeight, ratio
		w.host.Resize(float64(outsideWidth), float64(outsideHeight), ratio)
	}
	return w.host.Canvas().PixelSize()
}

// Draw implements ebiten.Game. Once the game is over the field is hidden
// behind the final score and a restart prompt.
func (w *Window) Draw(screen *ebiten.Image) {
	screen.Fill(color.Black)
	sw, sh := screen.Bounds().Dx(), screen.Bounds().Dy()

	if state := w.host.State(); state.Status == game.StatusOver {
		msg := fmt.Sprintf("Game over - score %d\nClick or press R to play again", int(state.Score))
		ebitenutil.DebugPrintAt(screen, msg, 12, sh/2-12)
		return
	}

	img := w.host.Canvas().Image()
	pw, ph := img.Bounds().Dx(), img.Bounds().Dy()
	if pw == 0 || ph == 0 {
		return
	}
	if w.offscreen == nil || w.offscreen.Bounds().Dx() != pw || w.offscreen.Bounds().Dy() != ph {
		if w.offscreen != nil {
			w.offscreen.Deallocate()
		}
		w.offscreen = ebiten.NewImage(pw, ph)
	}
	w.offscreen.WritePixels(img.Pix)

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(float64(sw)/float64(pw), float64(sh)/float64(ph))
	screen.DrawImage(w.offscreen, op)
}
