package frame

import (
	"context"
	"sync"
	"time"
)

// DefaultTaskQueueSize bounds input tasks waiting for the loop goroutine.
const DefaultTaskQueueSize = 64

// Ticker fires a Queue at a fixed rate on its own goroutine.
// Posted tasks run on the same goroutine between frames, so a game loop
// driven by a Ticker never sees concurrent access.
type Ticker struct {
	*Queue

	interval time.Duration
	tasks    chan func()
	start    time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewTicker creates a ticker running at fps frames per second.
// Non-positive values fall back to 60.
func NewTicker(fps int) *Ticker {
	if fps <= 0 {
		fps = 60
	}
	return &Ticker{
		Queue:    NewQueue(),
		interval: time.Second / time.Duration(fps),
		tasks:    make(chan func(), DefaultTaskQueueSize),
		start:    time.Now(),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Interval returns the frame period.
func (t *Ticker) Interval() time.Duration {
	return t.interval
}

// Now returns the monotonic time since the ticker was created.
func (t *Ticker) Now() time.Duration {
	return time.Since(t.start)
}

// Post queues fn to run on the ticker goroutine.
// Returns false without blocking if the task queue is full or the ticker stopped.
func (t *Ticker) Post(fn func()) bool {
	select {
	case <-t.stopCh:
		return false
	default:
	}

	select {
	case t.tasks <- fn:
		return true
	default:
		return false
	}
}

// Run fires frames until ctx is cancelled or Stop is called.
func (t *Ticker) Run(ctx context.Context) {
	defer close(t.done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case fn := <-t.tasks:
			fn()
		case <-ticker.C:
			t.Fire(t.Now())
		}
	}
}

// Stop signals Run to return; wait on Done for it to finish.
// Safe to call more than once.
func (t *Ticker) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
	})
}

// Done is closed once Run returns.
func (t *Ticker) Done() <-chan struct{} {
	return t.done
}
