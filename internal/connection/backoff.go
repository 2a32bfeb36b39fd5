package connection

import (
	"math/rand/v2"
	"time"
)

// BackoffPolicy computes reconnect delays: jittered exponential backoff,
// sampled uniformly from [base, min(base·2^attempt, max)·jitterSpread].
// The policy holds no mutable state; attempt counting lives in the session.
type BackoffPolicy struct {
	Base         time.Duration // Lower bound of every delay
	Max          time.Duration // Exponential growth cap (before jitter spread)
	JitterSpread float64       // Widens the sampling window, >= 1
	MaxAttempts  uint          // Consecutive failures before the session gives up
}

// DefaultBackoffPolicy returns the venue-tuned defaults.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		Base:         5 * time.Second,
		Max:          120 * time.Second,
		JitterSpread: 1.0,
		MaxAttempts:  15,
	}
}

// Delay returns the wait before reconnect attempt number attempt
// (0-based count of consecutive failures since the last success).
func (p BackoffPolicy) Delay(attempt uint) time.Duration {
	// Cap the shift so the multiplication cannot overflow.
	if attempt > 20 {
		attempt = 20
	}

	upper := p.Base << attempt
	if upper > p.Max || upper <= 0 {
		upper = p.Max
	}

	spread := p.JitterSpread
	if spread < 1 {
		spread = 1
	}
	upper = time.Duration(float64(upper) * spread)

	if upper <= p.Base {
		return p.Base
	}
	return p.Base + rand.N(upper-p.Base)
}

// Exhausted reports whether attempt meets or exceeds the attempt budget.
func (p BackoffPolicy) Exhausted(attempt uint) bool {
	return attempt >= p.MaxAttempts
}
