// Package ratelimit provides sliding-window request limiters keyed by an
// arbitrary string (client IP or user ID).
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Rule is a named limit of Max requests per Window.
type Rule struct {
	Name   string
	Max    int
	Window time.Duration
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter records a request against key under rule. Denied requests are
// not recorded.
type Limiter interface {
	Allow(ctx context.Context, rule Rule, key string) (Decision, error)
}

// pruneEvery bounds how often MemoryLimiter scans for idle buckets.
const pruneEvery = time.Minute

type bucket struct {
	window time.Duration
	hits   []time.Time
}

// MemoryLimiter is a process-local sliding window log. Buckets whose window
// has emptied are dropped so per-IP keys do not accumulate.
type MemoryLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	lastPrune time.Time
	now       func() time.Time
}

// NewMemoryLimiter returns an empty limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{buckets: make(map[string]*bucket), now: time.Now}
}

// WithClock replaces the limiter's time source.
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	l.now = now
	return l
}

func (l *MemoryLimiter) Allow(_ context.Context, rule Rule, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	name := rule.Name + ":" + key
	b, ok := l.buckets[name]
	if !ok {
		b = &bucket{}
		l.buckets[name] = b
	}
	b.window = rule.Window
	cutoff := now.Add(-rule.Window)
	kept := b.hits[:0]
	for _, at := range b.hits {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	b.hits = kept

	if len(kept) >= rule.Max {
		retry := time.Duration(0)
		if len(kept) > 0 {
			retry = kept[0].Add(rule.Window).Sub(now)
		} else {
			delete(l.buckets, name)
		}
		return Decision{Allowed: false, Limit: rule.Max, Remaining: 0, RetryAfter: retry}, nil
	}

	b.hits = append(kept, now)
	return Decision{Allowed: true, Limit: rule.Max, Remaining: rule.Max - len(b.hits)}, nil
}

// prune drops every bucket with no hit inside its window.
func (l *MemoryLimiter) prune(now time.Time) {
	if now.Sub(l.lastPrune) < pruneEvery {
		return
	}
	l.lastPrune = now
	for name, b := range l.buckets {
		if len(b.hits) == 0 || !b.hits[len(b.hits)-1].After(now.Add(-b.window)) {
			delete(l.buckets, name)
		}
	}
}
