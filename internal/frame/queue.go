// Package frame provides animation-frame style schedulers for hosts that
// drive a game loop: a manual queue fired by the host and a ticker that
// owns its own goroutine.
package frame

import (
	"sync"
	"time"
)

// Callback receives the frame timestamp.
type Callback func(now time.Duration)

type request struct {
	id uint64
	cb Callback
}

// Queue collects frame callbacks until the host fires them.
// Callbacks requested while firing run on the next Fire, never the current one.
type Queue struct {
	mu      sync.Mutex
	nextID  uint64
	pending []request
	firing  []request
}

// NewQueue creates an empty queue
func NewQueue() *Queue {
	return &Queue{
		pending: make([]request, 0, 4),
		firing:  make([]request, 0, 4),
	}
}

// RequestFrame registers cb for the next Fire and returns its id.
// Ids are never reused.
func (q *Queue) RequestFrame(cb func(now time.Duration)) uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.nextID++
	q.pending = append(q.pending, request{id: q.nextID, cb: cb})
	return q.nextID
}

// CancelFrame removes a pending callback. Unknown or already fired ids are ignored.
func (q *Queue) CancelFrame(id uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.pending {
		if q.pending[i].id == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}

// Pending returns the number of callbacks waiting for the next Fire.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Fire runs every pending callback with now and returns how many ran.
// Must be called from the thread that owns the loop.
func (q *Queue) Fire(now time.Duration) int {
	q.mu.Lock()
	q.firing, q.pending = q.pending, q.firing[:0]
	batch := q.firing
	q.mu.Unlock()

	for _, r := range batch {
		r.cb(now)
	}

	q.mu.Lock()
	for i := range q.firing {
		q.firing[i].cb = nil
	}
	q.mu.Unlock()
	return len(batch)
}
