package handlers

import (
	"strings"
	"sync"
	"time"
)

// rateLimiter admits at most limit calls per key in a fixed window.
type rateLimiter interface {
	Allow(key string) bool
}

type windowLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	buckets map[string]*window
}

type window struct {
	used    int
	resetAt time.Time
}

func newSimpleRateLimiter(limit int, span time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || span <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &windowLimiter{
		limit:   limit,
		window:  span,
		clock:   clock,
		buckets: make(map[string]*window),
	}
}

func (l *windowLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		l.evictLocked(now)
		l.buckets[key] = &window{used: 1, resetAt: now.Add(l.window)}
		return true
	}
	if b.used >= l.limit {
		return false
	}
	b.used++
	return true
}

// evictLocked drops expired buckets so idle shoppers do not accumulate.
func (l *windowLimiter) evictLocked(now time.Time) {
	for key, b := range l.buckets {
		if !now.Before(b.resetAt) {
			delete(l.buckets, key)
		}
	}
}
