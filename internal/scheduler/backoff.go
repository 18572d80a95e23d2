package scheduler

import (
	"math"
	"time"
)

// failureBackoff returns the wait added after n consecutive failures.
// Uses exponential backoff: base * factor^(n-1), capped at BackoffMax.
func failureBackoff(cfg Config, failures int) time.Duration {
	if failures <= 0 {
		return 0
	}
	base := cfg.BackoffBase
	if base <= 0 {
		base = 10 * time.Minute
	}
	factor := cfg.BackoffFactor
	if factor <= 0 {
		factor = 2.0
	}
	backoff := float64(base) * math.Pow(factor, float64(failures-1))
	if max := float64(cfg.BackoffMax); cfg.BackoffMax > 0 && backoff > max {
		backoff = max
	}
	return time.Duration(backoff)
}
