package transport

import (
	"math"
	"math/rand"
	"time"
)

// Delay returns the wait before dial attempt N (1-based). The first retry
// waits InitialDelay; later ones grow by Multiplier up to MaxDelay. Jitter
// scales the result by a factor in [0.5, 1.5).
func (b BackoffConfig) Delay(attempt int, rng *rand.Rand) time.Duration {
	if b.InitialDelay <= 0 {
		return 0
	}
	delay := float64(b.InitialDelay)
	if attempt > 1 {
		delay *= math.Pow(math.Max(b.Multiplier, 1.0), float64(attempt-1))
	}
	if b.MaxDelay > 0 {
		delay = math.Min(delay, float64(b.MaxDelay))
	}
	if b.Jitter {
		f := 0.5
		if rng != nil {
			f += rng.Float64()
		}
		delay *= f
	}
	return time.Duration(delay)
}
