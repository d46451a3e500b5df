package scheduler

import (
	"math/rand/v2"
	"time"
)

// jitterRatio spreads retry delays by ±20% so tasks that failed together do
// not retry in lockstep.
const jitterRatio = 0.2

// backoff returns the eligibility delay before retry number attempt,
// doubling from the configured base up to the cap.
func (s *Scheduler) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := s.backoffBase
	for i := 1; i < attempt && delay < s.backoffCap; i++ {
		delay *= 2
	}
	if delay > s.backoffCap {
		delay = s.backoffCap
	}
	return jittered(delay)
}

func jittered(delay time.Duration) time.Duration {
	if delay <= 0 {
		return 0
	}
	spread := 1 + jitterRatio*(2*rand.Float64()-1)
	return time.Duration(float64(delay) * spread)
}
