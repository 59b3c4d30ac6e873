package orchestrator

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// throttle runs fn at most once per interval. Calls that arrive while fn
// is running or inside the interval are coalesced into one pending run,
// executed by the next allowed Trigger or by Flush.
type throttle struct {
	fn      func()
	limiter *rate.Limiter

	mu      sync.Mutex
	running bool
	queued  bool
}

func newThrottle(interval time.Duration, fn func()) *throttle {
	return &throttle{fn: fn, limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

func (t *throttle) Trigger() {
	t.mu.Lock()
	if t.running || !t.limiter.Allow() {
		t.queued = true
		t.mu.Unlock()
		return
	}
	t.running = true
	t.queued = false
	t.mu.Unlock()

	t.fn()

	t.mu.Lock()
	t.running = false
	t.mu.Unlock()
}

// Flush runs a pending call, if any.
func (t *throttle) Flush() {
	t.mu.Lock()
	if !t.queued || t.running {
		t.mu.Unlock()
		return
	}
	t.queued = false
	t.running = true
	t.mu.Unlock()

	t.fn()

	t.mu.Lock()
	t.running = false
	t.mu.Unlock()
}
