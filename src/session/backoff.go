package session

import (
	"math/rand"
	"time"
)

// backoffDelay returns the wait before reconnect attempt n (starting at 1):
// min(base * 2^n, cap) plus up to half the base of jitter. The cap and the
// jitter keep a fleet of clients from hammering a recovering server in
// lockstep.
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if max > 0 && d >= max {
			d = max
			break
		}
	}
	jitter := time.Duration(rand.Float64() * float64(base) * 0.5)
	if max > 0 && d+jitter > max {
		return max
	}
	return d + jitter
}
