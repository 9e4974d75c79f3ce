package guard

import (
	"sync"
	"time"
)

// Limiter is a sliding-window rate limiter keyed by identity (account email,
// or network origin for anonymous callers). Each key holds the instants of
// its requests within the trailing window; a check prunes expired instants,
// rejects at the ceiling, and records the new instant otherwise. Keys are
// guarded independently so concurrent requests for different identities
// never contend on the same lock.
type Limiter struct {
	ceiling int
	window  time.Duration
	now     func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	mu       sync.Mutex
	instants []time.Time
}

func NewLimiter(ceiling int, windowSize time.Duration) *Limiter {
	return &Limiter{
		ceiling: ceiling,
		window:  windowSize,
		now:     time.Now,
		windows: make(map[string]*window),
	}
}

// Allow reports whether the identity may proceed, recording the request
// instant when it does.
func (l *Limiter) Allow(key string) bool {
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	w, ok := l.windows[key]
	if !ok {
		w = &window{}
		l.windows[key] = w
	}
	l.mu.Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()

	kept := w.instants[:0]
	for _, instant := range w.instants {
		if instant.After(cutoff) {
			kept = append(kept, instant)
		}
	}
	w.instants = kept

	if len(w.instants) >= l.ceiling {
		return false
	}
	w.instants = append(w.instants, now)
	return true
}
