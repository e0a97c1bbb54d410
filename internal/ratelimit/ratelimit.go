package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const idleEviction = 10 * time.Minute

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter is a token-bucket admission gate keyed by an arbitrary string
// (account id, remote address). It is shared between the API surface and the
// background execution paths.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
}

func New(perSecond float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(perSecond),
		burst:   burst,
	}
}

// TryAcquire reserves cost tokens for the key. When the bucket does not hold
// enough tokens the reservation is cancelled and the caller receives
// allowed=false plus a retry-after hint. Throttling is never silent.
func (l *Limiter) TryAcquire(key string, cost int) (allowed bool, retryAfter time.Duration) {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	now := time.Now()
	b.lastSeen = now
	if len(l.buckets) > 1024 {
		l.evictIdle(now)
	}
	l.mu.Unlock()

	r := b.limiter.ReserveN(now, cost)
	if !r.OK() {
		return false, time.Duration(float64(cost)/float64(l.limit)) * time.Second
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (l *Limiter) evictIdle(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > idleEviction {
			delete(l.buckets, key)
		}
	}
}
