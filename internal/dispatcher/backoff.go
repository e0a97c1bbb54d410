package dispatcher

import (
	"time"

	"github.com/sethvargo/go-retry"
)

// BackoffPolicy computes the redelivery delay for a given attempt number.
// There is exactly one policy, owned by the dispatcher; handlers and provider
// clients never retry on their own.
type BackoffPolicy struct {
	Base time.Duration
	Max  time.Duration
}

func NewBackoffPolicy(base, max time.Duration) BackoffPolicy {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	return BackoffPolicy{Base: base, Max: max}
}

// Delay returns the wait before redelivering an item that failed on the given
// attempt (1-based). Exponential with jitter, capped at Max.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	b := retry.WithCappedDuration(p.Max, retry.NewExponential(p.Base))
	b = retry.WithJitterPercent(20, b)

	var delay time.Duration
	for i := 0; i < attempt; i++ {
		next, stop := b.Next()
		if stop {
			break
		}
		delay = next
	}
	if delay > p.Max {
		delay = p.Max
	}
	return delay
}
