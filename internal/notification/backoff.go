package notification

import (
	"math/rand"
	"time"
)

// nextBackoff computes the delay before a transient failure is retried:
// base * 2^attempts, capped, plus random jitter so retrying jobs spread out
// instead of herding onto the same tick.
func nextBackoff(attempts int, base, cap time.Duration, jitter float64) time.Duration {
	if base <= 0 {
		base = time.Second
	}

	shift := attempts
	if shift > 16 {
		shift = 16
	}

	d := base * time.Duration(1<<shift)
	if cap > 0 && d > cap {
		d = cap
	}

	if jitter > 0 {
		d += time.Duration(rand.Float64() * jitter * float64(d))
	}
	return d
}
