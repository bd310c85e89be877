package rate

import (
	"context"
	"sync"
	"time"

	"github.com/dropDatabas3/igloo/internal/clock"
)

// sweepEvery fuerza una limpieza de ventanas viejas cuando el mapa crece.
const sweepEvery = 1024

// MemoryLimiter: fixed window en memoria, por key.
type MemoryLimiter struct {
	Max    int64
	Window time.Duration

	clock   clock.Clock
	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	start time.Time
	hits  int64
}

func NewMemoryLimiter(max int, win time.Duration, clk clock.Clock) *MemoryLimiter {
	if max <= 0 {
		max = DefaultMax
	}
	if win <= 0 {
		win = DefaultWindow
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &MemoryLimiter{
		Max:     int64(max),
		Window:  win,
		clock:   clk,
		windows: make(map[string]*window),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := l.clock.Now()
	winStart := now.Truncate(l.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !w.start.Equal(winStart) {
		if len(l.windows) >= sweepEvery {
			l.sweepLocked(winStart)
		}
		w = &window{start: winStart}
		l.windows[key] = w
	}
	w.hits++

	ttl := winStart.Add(l.Window).Sub(now)
	return compute(w.hits, l.Max, ttl, l.Window), nil
}

func (l *MemoryLimiter) Reset(context.Context) error {
	l.mu.Lock()
	l.windows = make(map[string]*window)
	l.mu.Unlock()
	return nil
}

// Len retorna cuántas keys tienen ventana registrada.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

func (l *MemoryLimiter) sweepLocked(current time.Time) {
	for k, w := range l.windows {
		if w.start.Before(current) {
			delete(l.windows, k)
		}
	}
}
