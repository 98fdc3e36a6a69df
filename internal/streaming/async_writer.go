package streaming

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// MaxConsecutiveErrors before the connection is declared lost
	MaxConsecutiveErrors = 10
	// BackpressureWarningThreshold - warn if a write takes this multiple of the poll interval
	BackpressureWarningThreshold = 2.0
	// BackpressureLogInterval - minimum time between backpressure warnings
	BackpressureLogInterval = 5 * time.Second
)

// FrameSink receives frames in order. Implementations may block.
type FrameSink interface {
	WriteFrame(kind FrameKind, data []byte) error
}

// WriterStats reports delivery health for one viewer.
type WriterStats struct {
	Ring RingStats `json:"ring"`

	FramesWritten     uint64  `json:"framesWritten"`
	ImagesSkipped     uint64  `json:"imagesSkipped"`
	WriteErrors       uint64  `json:"writeErrors"`
	ConsecutiveErrors int32   `json:"consecutiveErrors"`
	ConnectionLost    bool    `json:"connectionLost"`
	AvgWriteMs        float64 `json:"avgWriteMs"`
	MaxWriteMs        float64 `json:"maxWriteMs"`
	Backpressure      int64   `json:"backpressureEvents"`
}

// AsyncFrameWriter drains a ring buffer into a sink on its own goroutine,
// so a slow client never stalls the session ticker. State frames are
// delivered in order; when several images are queued only the newest one
// is sent.
type AsyncFrameWriter struct {
	ring     *FrameRingBuffer
	sink     FrameSink
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  atomic.Bool

	pending []Frame // drain scratch, writer goroutine only

	written      atomic.Uint64
	skipped      atomic.Uint64
	writeErrors  atomic.Uint64
	avgWriteNs   atomic.Int64
	maxWriteNs   atomic.Int64
	backpressure atomic.Int64
	lastWarning  time.Time

	consecutiveErrors atomic.Int32
	lost              atomic.Bool

	mu     sync.RWMutex // protects onLost
	onLost func()
}

// NewAsyncFrameWriter creates a stopped writer.
func NewAsyncFrameWriter(ring *FrameRingBuffer, sink FrameSink) *AsyncFrameWriter {
	return &AsyncFrameWriter{
		ring:     ring,
		sink:     sink,
		stopChan: make(chan struct{}),
	}
}

// SetOnConnectionLost sets a callback run once, on its own goroutine,
// after MaxConsecutiveErrors failed writes in a row.
func (w *AsyncFrameWriter) SetOnConnectionLost(callback func()) {
	w.mu.Lock()
	w.onLost = callback
	w.mu.Unlock()
}

// IsConnectionLost reports whether the sink has been given up on.
func (w *AsyncFrameWriter) IsConnectionLost() bool {
	return w.lost.Load()
}

// Start begins polling the ring fps times per second.
func (w *AsyncFrameWriter) Start(fps int) {
	if !w.running.CompareAndSwap(false, true) {
		return
	}
	if fps <= 0 {
		fps = 60
	}

	w.lost.Store(false)
	w.consecutiveErrors.Store(0)
	w.stopChan = make(chan struct{})
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()

		interval := time.Second / time.Duration(fps)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-w.stopChan:
				// Final drain so the last state reaches the client
				w.drain(interval)
				return
			case <-ticker.C:
				w.drain(interval)
			}
		}
	}()
}

// collect moves every queued frame into w.pending, reusing slot buffers.
func (w *AsyncFrameWriter) collect() {
	w.pending = w.pending[:0]
	for {
		n := len(w.pending)
		if n < cap(w.pending) {
			w.pending = w.pending[:n+1]
		} else {
			w.pending = append(w.pending, Frame{})
		}
		f := &w.pending[n]
		kind, data, ok := w.ring.TryRead(f.Data[:0])
		if !ok {
			w.pending = w.pending[:n]
			return
		}
		f.Kind, f.Data = kind, data
	}
}

func (w *AsyncFrameWriter) drain(interval time.Duration) {
	w.collect()

	newestImage := -1
	for i := range w.pending {
		if w.pending[i].Kind == FrameImage {
			newestImage = i
		}
	}

	for i := range w.pending {
		if w.lost.Load() {
			return
		}
		f := &w.pending[i]
		if f.Kind == FrameImage && i != newestImage {
			w.skipped.Add(1)
			continue
		}
		w.write(f.Kind, f.Data, interval)
	}
}

func (w *AsyncFrameWriter) write(kind FrameKind, data []byte, interval time.Duration) {
	start := time.Now()
	err := w.sink.WriteFrame(kind, data)
	took := time.Since(start)

	if err != nil {
		w.writeErrors.Add(1)
		n := w.consecutiveErrors.Add(1)
		if n <= 3 {
			log.Printf("❌ Frame write error (%d/%d): %v", n, MaxConsecutiveErrors, err)
		}
		if n >= MaxConsecutiveErrors && w.lost.CompareAndSwap(false, true) {
			log.Printf("🔴 Viewer lost after %d consecutive errors", n)
			w.mu.RLock()
			callback := w.onLost
			w.mu.RUnlock()
			// Callback may Stop this writer, so never call it inline
			if callback != nil {
				go callback()
			}
		}
		return
	}

	w.consecutiveErrors.Store(0)
	w.written.Add(1)

	// Exponential moving average
	w.avgWriteNs.Store((w.avgWriteNs.Load()*9 + took.Nanoseconds()) / 10)
	if took.Nanoseconds() > w.maxWriteNs.Load() {
		w.maxWriteNs.Store(took.Nanoseconds())
	}

	if float64(took)/float64(interval) >= BackpressureWarningThreshold {
		w.backpressure.Add(1)
		if time.Since(w.lastWarning) > BackpressureLogInterval {
			w.lastWarning = time.Now()
			log.Printf("⚠️ Backpressure detected: %s frame write took %.0fms (poll: %.1fms)",
				kind, took.Seconds()*1000, interval.Seconds()*1000)
		}
	}
}

// Stop performs a final drain and waits for the goroutine to exit.
func (w *AsyncFrameWriter) Stop() {
	if !w.running.CompareAndSwap(true, false) {
		return
	}
	close(w.stopChan)
	w.wg.Wait()
}

// IsRunning returns whether the writer is currently running.
func (w *AsyncFrameWriter) IsRunning() bool {
	return w.running.Load()
}

// Stats returns delivery counters together with the ring's.
func (w *AsyncFrameWriter) Stats() WriterStats {
	return WriterStats{
		Ring:              w.ring.Stats(),
		FramesWritten:     w.written.Load(),
		ImagesSkipped:     w.skipped.Load(),
		WriteErrors:       w.writeErrors.Load(),
		ConsecutiveErrors: w.consecutiveErrors.Load(),
		ConnectionLost:    w.lost.Load(),
		AvgWriteMs:        float64(w.avgWriteNs.Load()) / 1e6,
		MaxWriteMs:        float64(w.maxWriteNs.Load()) / 1e6,
		Backpressure:      w.backpressure.Load(),
	}
}
