package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LocalLimiter keeps one token bucket per key in process memory.
type LocalLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rps     float64
	burst   int
	idle    time.Duration
	sweeps  int
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalLimiter allows rps sustained requests per key with the given burst.
// Non-positive values fall back to 5 rps and a burst of 10.
func NewLocalLimiter(rps float64, burst int) *LocalLimiter {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &LocalLimiter{
		buckets: make(map[string]*bucket),
		rps:     rps,
		burst:   burst,
		idle:    10 * time.Minute,
	}
}

// Check consumes one token for key. A refused request consumes nothing.
func (l *LocalLimiter) Check(key string) Decision {
	if l == nil {
		return Decision{Allowed: true}
	}
	key = normalizeKey(key)
	now := time.Now()
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(l.rps), l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.sweeps++
	if l.sweeps >= 1024 {
		l.sweeps = 0
		for k, other := range l.buckets {
			if now.Sub(other.lastSeen) > l.idle {
				delete(l.buckets, k)
			}
		}
	}
	l.mu.Unlock()

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return Decision{RetryAfter: l.idle}
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Decision{RetryAfter: delay}
	}
	return Decision{Allowed: true}
}

// Allow is Check without the retry hint.
func (l *LocalLimiter) Allow(key string) bool {
	return l.Check(key).Allowed
}
