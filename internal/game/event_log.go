package game

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	EventRingSize       = 1024 // Pending events kept before the oldest is dropped
	MaxEventsPerSec     = 2000 // Across all sessions
	MaxEventsPerSession = 50   // Per session per second
	EventBatchSize      = 64   // Events per write
	EventFlushInterval  = 100 * time.Millisecond
	LimiterIdleTimeout  = 5 * time.Minute // Session limiters unused this long are pruned
)

const eventTypeCount = int(EventTypeTeardown) + 1

// EventLogStats is a point-in-time view of the log counters.
type EventLogStats struct {
	Total   uint64            `json:"total"`
	Dropped uint64            `json:"dropped"`
	Pending uint64            `json:"pending"`
	Running bool              `json:"running"`
	ByType  map[string]uint64 `json:"byType"`
}

// EventLog records loop events as JSON lines. Emit is called from frame
// callbacks and never blocks: events over the rate limits, or pushed out
// of a full ring, are counted as dropped.
type EventLog struct {
	mu   sync.Mutex // serializes producers and the drain
	ring [EventRingSize]Event
	head uint64 // last sequence written
	tail uint64 // last sequence drained

	globalLimiter   *rate.Limiter
	sessionLimiters sync.Map // session id -> *sessionLimiter

	out   *bufio.Writer
	enc   *json.Encoder
	close func() error

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	total   atomic.Uint64
	dropped atomic.Uint64
	byType  [eventTypeCount]atomic.Uint64
}

type sessionLimiter struct {
	*rate.Limiter
	lastUsed atomic.Int64 // unix nano
}

// NewEventLog creates a stopped log. Emit is a no-op until Start.
func NewEventLog() *EventLog {
	return &EventLog{
		globalLimiter: rate.NewLimiter(MaxEventsPerSec, MaxEventsPerSec/10),
		stopChan:      make(chan struct{}),
	}
}

// Start appends events to the file at path. An empty path counts events
// without writing them anywhere.
func (el *EventLog) Start(path string) error {
	if path == "" {
		return el.StartWriter(nil)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	if err := el.StartWriter(file); err != nil {
		file.Close()
		return err
	}
	return nil
}

// StartWriter streams events to w. If w is an io.Closer it is closed by Stop.
func (el *EventLog) StartWriter(w io.Writer) error {
	if el.running.Load() {
		return fmt.Errorf("event log already running")
	}
	select {
	case <-el.stopChan:
		return fmt.Errorf("event log stopped")
	default:
	}

	if w != nil {
		el.out = bufio.NewWriter(w)
		el.enc = json.NewEncoder(el.out)
		if c, ok := w.(io.Closer); ok {
			el.close = c.Close
		}
	}

	el.running.Store(true)
	el.wg.Add(2)
	go el.writeLoop()
	go el.pruneLoop()
	return nil
}

// Stop drains pending events and closes the output. Safe to call twice.
func (el *EventLog) Stop() {
	el.stopOnce.Do(func() {
		wasRunning := el.running.Swap(false)
		close(el.stopChan)
		if !wasRunning {
			return
		}
		el.wg.Wait()
		if el.close != nil {
			if err := el.close(); err != nil {
				log.Printf("⚠️ Event log close: %v", err)
			}
		}
	})
}

// Emit queues an event. It returns false when the log is nil or stopped,
// or when a rate limit rejected the event.
func (el *EventLog) Emit(event Event) bool {
	if el == nil || !el.running.Load() {
		return false
	}
	if !el.globalLimiter.Allow() {
		el.dropped.Add(1)
		return false
	}
	if event.SessionID != "" && !el.limiterFor(event.SessionID).Allow() {
		el.dropped.Add(1)
		return false
	}

	el.mu.Lock()
	el.head++
	if el.head-el.tail > EventRingSize {
		el.tail++
		el.dropped.Add(1)
	}
	event.Sequence = el.head
	el.ring[el.head%EventRingSize] = event
	el.mu.Unlock()

	el.total.Add(1)
	if int(event.Type) < eventTypeCount {
		el.byType[event.Type].Add(1)
	}
	return true
}

// EmitSimple builds and queues an event in one call.
func (el *EventLog) EmitSimple(eventType EventType, frame uint64, sessionID string, payload interface{}) bool {
	if el == nil || !el.running.Load() {
		return false
	}
	return el.Emit(NewEvent(eventType, frame, sessionID, payload))
}

func (el *EventLog) limiterFor(sessionID string) *sessionLimiter {
	now := time.Now().UnixNano()
	if v, ok := el.sessionLimiters.Load(sessionID); ok {
		l := v.(*sessionLimiter)
		l.lastUsed.Store(now)
		return l
	}
	l := &sessionLimiter{Limiter: rate.NewLimiter(MaxEventsPerSession, MaxEventsPerSession)}
	l.lastUsed.Store(now)
	v, _ := el.sessionLimiters.LoadOrStore(sessionID, l)
	return v.(*sessionLimiter)
}

func (el *EventLog) writeLoop() {
	defer el.wg.Done()

	ticker := time.NewTicker(EventFlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, EventBatchSize)
	for {
		select {
		case <-el.stopChan:
			for {
				if batch = el.drain(batch[:0]); len(batch) == 0 {
					return
				}
				el.write(batch)
			}
		case <-ticker.C:
			for {
				if batch = el.drain(batch[:0]); len(batch) == 0 {
					break
				}
				el.write(batch)
			}
		}
	}
}

func (el *EventLog) pruneLoop() {
	defer el.wg.Done()

	ticker := time.NewTicker(LimiterIdleTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-el.stopChan:
			return
		case <-ticker.C:
			el.pruneLimiters(time.Now().Add(-LimiterIdleTimeout))
		}
	}
}

// pruneLimiters forgets sessions not seen since cutoff.
func (el *EventLog) pruneLimiters(cutoff time.Time) {
	el.sessionLimiters.Range(func(key, value interface{}) bool {
		if value.(*sessionLimiter).lastUsed.Load() < cutoff.UnixNano() {
			el.sessionLimiters.Delete(key)
		}
		return true
	})
}

// drain moves up to EventBatchSize pending events, oldest first, into batch.
func (el *EventLog) drain(batch []Event) []Event {
	el.mu.Lock()
	defer el.mu.Unlock()

	for el.tail < el.head && len(batch) < EventBatchSize {
		el.tail++
		batch = append(batch, el.ring[el.tail%EventRingSize])
	}
	return batch
}

func (el *EventLog) write(batch []Event) {
	if el.enc == nil {
		return
	}
	for i := range batch {
		if err := el.enc.Encode(&batch[i]); err != nil {
			log.Printf("⚠️ Event log write: %v", err)
			return
		}
	}
	if err := el.out.Flush(); err != nil {
		log.Printf("⚠️ Event log flush: %v", err)
	}
}

// Stats returns the current counters.
func (el *EventLog) Stats() EventLogStats {
	el.mu.Lock()
	pending := el.head - el.tail
	el.mu.Unlock()

	byType := make(map[string]uint64, eventTypeCount)
	for t := range el.byType {
		if n := el.byType[t].Load(); n > 0 {
			byType[EventType(t).String()] = n
		}
	}
	return EventLogStats{
		Total:   el.total.Load(),
		Dropped: el.dropped.Load(),
		Pending: pending,
		Running: el.running.Load(),
		ByType:  byType,
	}
}

// Total returns the number of accepted events.
func (el *EventLog) Total() uint64 { return el.total.Load() }

// Dropped returns the number of rate-limited or overwritten events.
func (el *EventLog) Dropped() uint64 { return el.dropped.Load() }

// Count returns how many events of type t were accepted.
func (el *EventLog) Count(t EventType) uint64 {
	if int(t) >= eventTypeCount {
		return 0
	}
	return el.byType[t].Load()
}
