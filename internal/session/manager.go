package session

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"
)

// ErrTooManySessions is returned by Create when the cap is reached.
var ErrTooManySessions = errors.New("too many sessions")

// Options override the manager's base config for one session.
// Zero fields keep the base values.
type Options struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Ratio  float64 `json:"ratio"`
	Seed   int64   `json:"seed"`
}

// Manager owns every live session.
type Manager struct {
	ctx  context.Context
	base Config
	max  int

	mu       sync.RWMutex
	sessions map[string]*Session

	created int64
	reaped  int64
}

// NewManager creates a manager. Sessions stop when ctx is cancelled.
func NewManager(ctx context.Context, base Config, maxSessions int) *Manager {
	if maxSessions <= 0 {
		maxSessions = 64
	}
	return &Manager{
		ctx:      ctx,
		base:     base,
		max:      maxSessions,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session.
func (m *Manager) Create(opts Options) (*Session, error) {
	cfg := m.base
	if opts.Width > 0 && opts.Height > 0 {
		cfg.Width, cfg.Height = opts.Width, opts.Height
	}
	if opts.Ratio > 0 {
		cfg.Ratio = opts.Ratio
	}
	if opts.Seed != 0 {
		cfg.Seed = opts.Seed
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sessions) >= m.max {
		return nil, ErrTooManySessions
	}
	s := New(m.ctx, cfg)
	m.sessions[s.ID()] = s
	m.created++
	return s, nil
}

// Get looks a session up by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Remove closes and forgets a session. Returns false for unknown ids.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.Close()
	}
	return ok
}

// List returns every session ordered by creation time.
func (m *Manager) List() []Info {
	m.mu.RLock()
	out := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Info())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Stats returns counters for the health endpoint.
func (m *Manager) Stats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	connected := 0
	for _, s := range m.sessions {
		if s.Connected() {
			connected++
		}
	}
	return map[string]interface{}{
		"active":    len(m.sessions),
		"connected": connected,
		"max":       m.max,
		"created":   m.created,
		"reaped":    m.reaped,
	}
}

// Reap closes sessions without a viewer that have been idle longer than maxIdle.
func (m *Manager) Reap(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	m.mu.Lock()
	var stale []*Session
	for id, s := range m.sessions {
		if !s.Connected() && s.LastActive().Before(cutoff) {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.reaped += int64(len(stale))
	m.mu.Unlock()

	for _, s := range stale {
		s.Close()
	}
	if len(stale) > 0 {
		log.Printf("🧹 Reaped %d idle sessions", len(stale))
	}
	return len(stale)
}

// Run reaps idle sessions every interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval, maxIdle time.Duration) {
	if interval <= 0 || maxIdle <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Reap(maxIdle)
		}
	}
}

// CloseAll closes every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
}
