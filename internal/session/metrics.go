package session

import "time"

// Metrics receives session telemetry. Calls come from ticker goroutines
// of many sessions at once, so implementations must be safe for concurrent use.
type Metrics interface {
	ObserveTick(d time.Duration)
	ObserveRender(d time.Duration)
	SessionStarted()
	SessionEnded()
	ObstacleSpawned()
	PlayerHit()
	GameOver()
	FrameDropped(kind string)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) ObserveTick(time.Duration)   {}
func (NopMetrics) ObserveRender(time.Duration) {}
func (NopMetrics) SessionStarted()             {}
func (NopMetrics) SessionEnded()               {}
func (NopMetrics) ObstacleSpawned()            {}
func (NopMetrics) PlayerHit()                  {}
func (NopMetrics) GameOver()                   {}
func (NopMetrics) FrameDropped(string)         {}
