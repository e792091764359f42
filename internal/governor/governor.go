package governor

import (
	"context"
	"sync"
	"time"
)

// Admitter decides whether one more request for key may proceed now.
type Admitter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type window struct {
	mu    sync.Mutex
	times []time.Time
	refs  int // holders between acquire and release, guarded by Governor.mu
}

// Governor is an in-process sliding-window limiter. Each key has its own
// mutex so distinct keys never contend beyond the brief map lookup.
type Governor struct {
	Window   time.Duration
	MaxCalls int
	Now      func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

func New(windowSize time.Duration, maxCalls int) *Governor {
	return &Governor{
		Window:   windowSize,
		MaxCalls: maxCalls,
		Now:      time.Now,
		windows:  make(map[string]*window),
	}
}

func (g *Governor) acquire(key string) *window {
	g.mu.Lock()
	w, ok := g.windows[key]
	if !ok {
		w = &window{}
		g.windows[key] = w
	}
	w.refs++
	g.mu.Unlock()

	w.mu.Lock()
	return w
}

func (g *Governor) release(w *window) {
	w.mu.Unlock()
	g.mu.Lock()
	w.refs--
	g.mu.Unlock()
}

// Admit records now against key and reports true, unless key already has
// MaxCalls timestamps inside the trailing window, in which case nothing is
// stored and it reports false.
func (g *Governor) Admit(key string, now time.Time) bool {
	w := g.acquire(key)
	defer g.release(w)

	w.times = prune(w.times, now, g.Window)
	if len(w.times) >= g.MaxCalls {
		return false
	}
	w.times = append(w.times, now)
	return true
}

// Allow implements Admitter using the governor's clock.
func (g *Governor) Allow(_ context.Context, key string) (bool, error) {
	return g.Admit(key, g.Now()), nil
}

// Sweep drops keys with no timestamps left inside the window and returns
// how many were removed.
func (g *Governor) Sweep(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for key, w := range g.windows {
		if w.refs > 0 || !w.mu.TryLock() {
			continue
		}
		w.times = prune(w.times, now, g.Window)
		if len(w.times) == 0 {
			delete(g.windows, key)
			removed++
		}
		w.mu.Unlock()
	}
	return removed
}

// Len returns the number of tracked keys.
func (g *Governor) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.windows)
}

// prune keeps timestamps t with now - t < size.
func prune(times []time.Time, now time.Time, size time.Duration) []time.Time {
	kept := times[:0]
	for _, t := range times {
		if now.Sub(t) < size {
			kept = append(kept, t)
		}
	}
	return kept
}
