package health

import (
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dropDatabas3/igloo/internal/clock"
	"github.com/dropDatabas3/igloo/internal/observability/logger"
)

func newTestMonitor(timeout time.Duration) (*Monitor, *clock.FakeClock) {
	fc := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return New(Config{Timeout: timeout, Clock: fc}), fc
}

func TestMonitor_StartsUnhealthy(t *testing.T) {
	m, _ := newTestMonitor(time.Second)
	if m.IsHealthy() {
		t.Fatalf("expected unhealthy at start")
	}
}

func TestMonitor_DecaysWithoutRenewal(t *testing.T) {
	m, fc := newTestMonitor(10 * time.Second)
	m.MarkHealthy()
	if !m.IsHealthy() {
		t.Fatalf("expected healthy")
	}
	fc.Advance(9 * time.Second)
	if !m.IsHealthy() {
		t.Fatalf("decayed too early")
	}
	fc.Advance(2 * time.Second)
	if m.IsHealthy() {
		t.Fatalf("expected automatic unhealthy after timeout")
	}
}

func TestMonitor_RenewalDoesNotStack(t *testing.T) {
	m, fc := newTestMonitor(10 * time.Second)
	m.MarkHealthy()
	fc.Advance(8 * time.Second)
	m.MarkHealthy()
	if fc.PendingCount() != 1 {
		t.Fatalf("expected a single pending timer, got %d", fc.PendingCount())
	}
	// el primer timer habría vencido en t=10s
	fc.Advance(4 * time.Second)
	if !m.IsHealthy() {
		t.Fatalf("stale timer flipped state")
	}
	fc.Advance(7 * time.Second)
	if m.IsHealthy() {
		t.Fatalf("renewed timer did not fire")
	}
}

func TestMonitor_MarkUnhealthyCancelsTimer(t *testing.T) {
	m, fc := newTestMonitor(10 * time.Second)
	m.MarkHealthy()
	m.MarkUnhealthy()
	if m.IsHealthy() {
		t.Fatalf("expected unhealthy")
	}
	if fc.PendingCount() != 0 {
		t.Fatalf("timer still armed")
	}
}

func TestMonitor_Hooks(t *testing.T) {
	fc := clock.Fake(time.Unix(0, 0))
	var healthyCalls, changes int32
	var last atomic.Value
	m := New(Config{
		Timeout:   time.Second,
		Clock:     fc,
		OnHealthy: func() { atomic.AddInt32(&healthyCalls, 1) },
		OnChange: func(s State) {
			atomic.AddInt32(&changes, 1)
			last.Store(s)
		},
	})

	m.MarkHealthy()
	m.MarkHealthy()
	if atomic.LoadInt32(&healthyCalls) != 2 {
		t.Fatalf("OnHealthy should run on every MarkHealthy")
	}
	if atomic.LoadInt32(&changes) != 1 {
		t.Fatalf("OnChange should run only on transitions, got %d", changes)
	}
	fc.Advance(2 * time.Second)
	if atomic.LoadInt32(&changes) != 2 || last.Load().(State) != Unhealthy {
		t.Fatalf("expected expiry transition")
	}
}

func TestMonitor_NegativeTimeoutNeverDecays(t *testing.T) {
	m, fc := newTestMonitor(-1)
	m.MarkHealthy()
	fc.Advance(24 * time.Hour)
	if !m.IsHealthy() {
		t.Fatalf("expected no decay")
	}
}

func TestMonitor_LogsStateChanges(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := logger.Replace(zap.New(core))
	defer restore()

	m, fc := newTestMonitor(time.Second)
	m.MarkHealthy()
	m.MarkHealthy() // sin cambio, sin log
	m.MarkUnhealthy()
	m.MarkHealthy()
	fc.Advance(2 * time.Second)

	entries := logs.All()
	want := []bool{true, false, true, false}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i, e := range entries {
		if got, ok := e.ContextMap()["healthy"].(bool); !ok || got != want[i] {
			t.Fatalf("entry %d (%s): healthy=%v want %v", i, e.Message, e.ContextMap()["healthy"], want[i])
		}
	}
	if entries[3].Level != zapcore.WarnLevel {
		t.Fatalf("expiry should log at warn, got %v", entries[3].Level)
	}
}
