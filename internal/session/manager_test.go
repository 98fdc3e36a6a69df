package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestManagerCap(t *testing.T) {
	m := NewManager(context.Background(), testConfig(), 2)
	defer m.CloseAll()

	a, err := m.Create(Options{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := m.Create(Options{Width: 320, Height: 240, Seed: 3}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := m.Create(Options{}); !errors.Is(err, ErrTooManySessions) {
		t.Fatalf("third Create = %v, want ErrTooManySessions", err)
	}

	if !m.Remove(a.ID()) {
		t.Fatal("Remove returned false")
	}
	if m.Remove(a.ID()) {
		t.Error("second Remove returned true")
	}
	if _, ok := m.Get(a.ID()); ok {
		t.Error("removed session still listed")
	}
	if _, err := m.Create(Options{}); err != nil {
		t.Errorf("Create after Remove: %v", err)
	}
}

func TestManagerListAndOptions(t *testing.T) {
	m := NewManager(context.Background(), testConfig(), 4)
	defer m.CloseAll()

	first, _ := m.Create(Options{})
	time.Sleep(2 * time.Millisecond)
	second, _ := m.Create(Options{Width: 320, Height: 240, Ratio: 2, Seed: 3})

	list := m.List()
	if len(list) != 2 || m.Count() != 2 {
		t.Fatalf("list = %d, count = %d", len(list), m.Count())
	}
	if list[0].ID != first.ID() || list[1].ID != second.ID() {
		t.Error("list not ordered by creation")
	}
	if list[1].Width != 320 || list[1].Height != 240 || list[1].Seed != 3 {
		t.Errorf("options not applied: %+v", list[1])
	}

	stats := m.Stats()
	if stats["active"] != 2 || stats["max"] != 4 {
		t.Errorf("stats = %v", stats)
	}
}

func TestManagerReapSkipsConnected(t *testing.T) {
	m := NewManager(context.Background(), testConfig(), 4)
	defer m.CloseAll()

	idle, _ := m.Create(Options{})
	watched, _ := m.Create(Options{})
	if err := watched.Attach(&recordingSink{}, nil); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	if n := m.Reap(time.Millisecond); n != 1 {
		t.Fatalf("reaped %d, want 1", n)
	}
	if _, ok := m.Get(idle.ID()); ok {
		t.Error("idle session survived")
	}
	if _, ok := m.Get(watched.ID()); !ok {
		t.Error("connected session was reaped")
	}
	select {
	case <-idle.Done():
	default:
		t.Error("reaped session still ticking")
	}
}

func TestManagerCloseAll(t *testing.T) {
	m := NewManager(context.Background(), testConfig(), 4)
	s, _ := m.Create(Options{})
	m.CloseAll()

	if m.Count() != 0 {
		t.Errorf("count = %d", m.Count())
	}
	select {
	case <-s.Done():
	default:
		t.Error("session still ticking after CloseAll")
	}
}
