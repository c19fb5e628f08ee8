package dispatch

import (
	"sync"
	"time"

	"github.com/example/shared-ride/internal/clock"
)

type RateLimiter interface {
	// Allow reports whether key may act now and, if so, starts a new window for it.
	Allow(key string, window time.Duration) bool
	// Release ends the window Allow started, for an action that did not happen.
	Release(key string)
}

// CooldownLimiter keeps per-key cooldowns in process memory. State is lost on restart.
type CooldownLimiter struct {
	mu    sync.Mutex
	clock clock.Clock
	until map[string]time.Time
}

func NewCooldownLimiter(clk clock.Clock) *CooldownLimiter {
	if clk == nil {
		clk = clock.System{}
	}
	return &CooldownLimiter{clock: clk, until: make(map[string]time.Time)}
}

func (l *CooldownLimiter) Allow(key string, window time.Duration) bool {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if t, ok := l.until[key]; ok && now.Before(t) {
		return false
	}
	l.until[key] = now.Add(window)
	return true
}

func (l *CooldownLimiter) Release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.until, key)
}

// Prune drops expired cooldowns and returns how many were removed.
func (l *CooldownLimiter) Prune() int {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, t := range l.until {
		if !now.Before(t) {
			delete(l.until, k)
			n++
		}
	}
	return n
}
