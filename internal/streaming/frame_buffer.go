package streaming

import (
	"sync/atomic"
)

// BufferSize is the number of frame slots in the ring buffer.
// At 60fps with a PNG every 4th frame plus state messages, 32 slots
// cover roughly a quarter second of a stalled client.
const BufferSize = 32

// FrameKind tells the sink how to deliver a frame
type FrameKind uint8

const (
	FrameState FrameKind = iota // JSON text
	FrameImage                  // encoded PNG
)

// String returns the kind name
func (k FrameKind) String() string {
	switch k {
	case FrameState:
		return "state"
	case FrameImage:
		return "image"
	default:
		return "unknown"
	}
}

// Frame is one outbound message
type Frame struct {
	Kind FrameKind
	Data []byte
}

// RingStats counts frames through a ring buffer.
type RingStats struct {
	Written   uint64 `json:"written"`
	Dropped   uint64 `json:"dropped"`
	Read      uint64 `json:"read"`
	Available int    `json:"available"`
}

// FrameRingBuffer is a lock-free queue between one producer (the session
// ticker) and one consumer (the writer). Slots keep their capacity, so
// steady-state writes do not allocate. A full buffer drops the new frame
// instead of blocking the producer.
type FrameRingBuffer struct {
	slots [BufferSize]Frame
	read  atomic.Uint32 // next slot to read
	write atomic.Uint32 // next slot to write

	written atomic.Uint64
	dropped atomic.Uint64
	drained atomic.Uint64
}

// NewFrameRingBuffer creates an empty ring buffer.
func NewFrameRingBuffer() *FrameRingBuffer {
	return &FrameRingBuffer{}
}

// TryWrite copies data into the next free slot. It returns false and
// counts a drop when the buffer is full.
func (rb *FrameRingBuffer) TryWrite(kind FrameKind, data []byte) bool {
	w := rb.write.Load()
	next := (w + 1) % BufferSize
	if next == rb.read.Load() {
		rb.dropped.Add(1)
		return false
	}

	slot := &rb.slots[w]
	slot.Kind = kind
	slot.Data = append(slot.Data[:0], data...)

	rb.write.Store(next)
	rb.written.Add(1)
	return true
}

// TryRead appends the oldest frame's data to dst. ok is false when the
// buffer is empty. The slot is released after the copy, so the producer
// never overwrites data being read.
func (rb *FrameRingBuffer) TryRead(dst []byte) (kind FrameKind, data []byte, ok bool) {
	r := rb.read.Load()
	if r == rb.write.Load() {
		return 0, dst, false
	}

	slot := &rb.slots[r]
	kind, data = slot.Kind, append(dst, slot.Data...)

	rb.read.Store((r + 1) % BufferSize)
	rb.drained.Add(1)
	return kind, data, true
}

// Available returns the number of frames waiting to be read.
func (rb *FrameRingBuffer) Available() int {
	r, w := rb.read.Load(), rb.write.Load()
	return int((w + BufferSize - r) % BufferSize)
}

// Stats returns the buffer counters.
func (rb *FrameRingBuffer) Stats() RingStats {
	return RingStats{
		Written:   rb.written.Load(),
		Dropped:   rb.dropped.Load(),
		Read:      rb.drained.Load(),
		Available: rb.Available(),
	}
}
