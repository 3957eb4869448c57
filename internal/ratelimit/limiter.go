package ratelimit

import (
	"context"
	"sync"
	"time"
)

type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter allows at most a fixed number of requests per key per window.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

type bucket struct {
	start time.Time
	count int
}

// MemoryLimiter is a fixed-window limiter for a single process.
type MemoryLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	buckets map[string]*bucket
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok || now.Sub(b.start) >= l.window {
		if len(l.buckets) > 10000 {
			l.pruneLocked(now)
		}
		b = &bucket{start: now}
		l.buckets[key] = b
	}
	if b.count >= l.limit {
		return Decision{RetryAfter: b.start.Add(l.window).Sub(now)}, nil
	}
	b.count++
	return Decision{Allowed: true, Remaining: l.limit - b.count}, nil
}

func (l *MemoryLimiter) pruneLocked(now time.Time) {
	for k, b := range l.buckets {
		if now.Sub(b.start) >= l.window {
			delete(l.buckets, k)
		}
	}
}
