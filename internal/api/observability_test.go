package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"flight-arcade/internal/game"
)

func TestDebugHandler(t *testing.T) {
	PromMetrics{}.SessionStarted()
	PromMetrics{}.ObserveTick(time.Millisecond)
	PromMetrics{}.FrameDropped("image")
	defer PromMetrics{}.SessionEnded()

	el := game.NewEventLog()
	RegisterEventLog(el)
	RegisterEventLog(el) // second registration is ignored

	h := DebugHandler(ObservabilityConfig{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("health = %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{
		"arcade_sessions_active",
		"arcade_tick_duration_seconds",
		"arcade_frames_dropped_total",
		"arcade_event_log_total",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics missing %s", name)
		}
	}
}

func TestDebugHandlerBasicAuth(t *testing.T) {
	h := DebugHandler(ObservabilityConfig{BasicAuthUser: "ops", BasicAuthPass: "pw"})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.SetBasicAuth("ops", "pw")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("authorized = %d", rec.Code)
	}
}

func TestIsLoopback(t *testing.T) {
	tests := map[string]bool{
		"127.0.0.1:6060": true,
		"localhost:6060": true,
		"[::1]:6060":     true,
		"0.0.0.0:6060":   false,
		":6060":          false,
		"10.1.2.3:6060":  false,
		"garbage":        false,
	}
	for addr, want := range tests {
		if got := isLoopback(addr); got != want {
			t.Errorf("isLoopback(%q) = %v, want %v", addr, got, want)
		}
	}
}

func TestStartDebugServerDisabled(t *testing.T) {
	if srv := StartDebugServer(ObservabilityConfig{Enabled: false}); srv != nil {
		t.Error("disabled debug server started")
	}
}
