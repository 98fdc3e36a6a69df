package game

import (
	"encoding/json"
	"time"
)

// EventType enum for event classification
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypeStart             // Loop started, carries the RNG seed
	EventTypeSpawn
	EventTypeHit
	EventTypeGameOver
	EventTypeResize
	EventTypeTeardown
)

// EventVersion for backwards compatibility in replay
const EventVersion uint8 = 1

// Event is the core event structure for the event log
type Event struct {
	Version   uint8     `json:"version"`
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"` // Unix nano
	Sequence  uint64    `json:"sequence"`  // Monotonic sequence
	Frame     uint64    `json:"frame"`     // Loop frame this occurred in
	SessionID string    `json:"sessionId"` // Source session (for rate limiting)
	Payload   []byte    `json:"payload"`   // JSON-encoded payload
}

// String returns human-readable event type
func (t EventType) String() string {
	switch t {
	case EventTypeStart:
		return "start"
	case EventTypeSpawn:
		return "spawn"
	case EventTypeHit:
		return "hit"
	case EventTypeGameOver:
		return "game_over"
	case EventTypeResize:
		return "resize"
	case EventTypeTeardown:
		return "teardown"
	default:
		return "unknown"
	}
}

// MarshalText writes the type name instead of its ordinal.
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// StartPayload records what is needed to replay a loop.
type StartPayload struct {
	Seed   int64   `json:"seed"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// SpawnPayload describes a new obstacle
type SpawnPayload struct {
	ObstacleID uint64  `json:"obstacleId"`
	X          float64 `json:"x"`
	Radius     float64 `json:"radius"`
	Speed      float64 `json:"speed"`
	Label      string  `json:"label"`
}

// HitPayload describes a collision
type HitPayload struct {
	ObstacleID uint64  `json:"obstacleId"`
	Label      string  `json:"label"`
	LivesLeft  int     `json:"livesLeft"`
	Score      float64 `json:"score"`
}

// GameOverPayload carries the final state
type GameOverPayload struct {
	Score    float64 `json:"score"`
	Frames   uint64  `json:"frames"`
	Duration int64   `json:"durationMs"`
}

// ResizePayload carries the new field size
type ResizePayload struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// EncodePayload marshals a payload to JSON bytes
func EncodePayload(payload interface{}) []byte {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

// NewEvent creates a new event with the current timestamp
func NewEvent(eventType EventType, frame uint64, sessionID string, payload interface{}) Event {
	return Event{
		Version:   EventVersion,
		Type:      eventType,
		Timestamp: time.Now().UnixNano(),
		Frame:     frame,
		SessionID: sessionID,
		Payload:   EncodePayload(payload),
	}
}
