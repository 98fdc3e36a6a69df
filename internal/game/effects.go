package game

// HitFlash is the full-field overlay shown after a collision.
// Alpha jumps to 1 on a hit and decays linearly per rendered frame.
type HitFlash struct {
	Alpha float64
}

// Trigger restarts the flash at full strength.
func (f *HitFlash) Trigger() {
	f.Alpha = 1.0
}

// Active reports whether the overlay should be drawn.
func (f *HitFlash) Active() bool {
	return f.Alpha > 0
}

// Update decays the flash by rate and reports whether it is still visible.
func (f *HitFlash) Update(rate float64) bool {
	if f.Alpha <= 0 {
		return false
	}
	f.Alpha -= rate
	if f.Alpha < 0 {
		f.Alpha = 0
	}
	return f.Alpha > 0
}

// Overlay returns the overlay opacity for a given peak opacity.
func (f *HitFlash) Overlay(peak float64) float64 {
	return f.Alpha * peak
}
