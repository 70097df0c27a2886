package authapi

import (
	"sync"
	"time"
)

// failureLimiter throttles login attempts per client key (IP) using a
// sliding window of recorded failures. Successful logins do not count.
type failureLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	hits   map[string][]time.Time
}

func newFailureLimiter(max int, window time.Duration) *failureLimiter {
	return &failureLimiter{
		max:    max,
		window: window,
		hits:   make(map[string][]time.Time),
	}
}

// Blocked reports whether key has accumulated too many recent failures and,
// if so, how long the caller should wait.
func (l *failureLimiter) Blocked(key string, now time.Time) (bool, time.Duration) {
	if l == nil || key == "" || l.max <= 0 {
		return false, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.prune(key, now)
	if len(recent) < l.max {
		return false, 0
	}
	retryAfter := recent[0].Add(l.window).Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return true, retryAfter
}

// RecordFailure notes a failed attempt for key.
func (l *failureLimiter) RecordFailure(key string, now time.Time) {
	if l == nil || key == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.hits[key] = append(l.prune(key, now), now)
}

func (l *failureLimiter) prune(key string, now time.Time) []time.Time {
	cut := now.Add(-l.window)
	recent := l.hits[key][:0]
	for _, t := range l.hits[key] {
		if t.After(cut) {
			recent = append(recent, t)
		}
	}
	if len(recent) == 0 {
		delete(l.hits, key)
		return nil
	}
	l.hits[key] = recent
	return recent
}
