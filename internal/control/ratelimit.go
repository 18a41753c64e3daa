package control

import (
	"sync"

	"golang.org/x/time/rate"
)

// TokenBuckets hands out a per-token golang.org/x/time/rate limiter for
// mutating verbs, per spec.md §4.9: "Mutating verbs consume from a
// per-token token-bucket (per-minute rate)".
type TokenBuckets struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rpm      int
}

func NewTokenBuckets(rpm int) *TokenBuckets {
	if rpm <= 0 {
		rpm = 60
	}
	return &TokenBuckets{limiters: make(map[string]*rate.Limiter), rpm: rpm}
}

// Allow reports whether token may proceed with a mutating request right
// now, consuming one token from its bucket if so.
func (b *TokenBuckets) Allow(token string) bool {
	b.mu.Lock()
	l, ok := b.limiters[token]
	if !ok {
		// burst == rpm keeps behavior close to "N mutations per minute,
		// smoothed continuously" rather than all-at-once-then-starve.
		l = rate.NewLimiter(rate.Limit(float64(b.rpm)/60.0), b.rpm)
		b.limiters[token] = l
	}
	b.mu.Unlock()
	return l.Allow()
}
