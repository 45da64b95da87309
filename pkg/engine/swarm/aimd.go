// Package swarm runs ingestion tasks under an adaptive concurrency limit.
// The limit grows additively while tasks complete quickly and halves when
// they hit contention, which for the temporal store means transaction
// conflicts between batches racing the same identities.
package swarm

import (
	"sync"
	"time"
)

// AIMD is the additive-increase / multiplicative-decrease limiter.
type AIMD struct {
	mu          sync.Mutex
	concurrency int
	min         int
	max         int
	lastChange  time.Time
}

func NewAIMD(start, min, max int) *AIMD {
	if start < min {
		start = min
	}
	if start > max {
		start = max
	}
	return &AIMD{concurrency: start, min: min, max: max, lastChange: time.Now()}
}

// Concurrency returns the current limit.
func (a *AIMD) Concurrency() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.concurrency
}

// Feedback folds one task outcome into the limit. Adjustments are dampened
// to one per 100ms to avoid oscillation.
func (a *AIMD) Feedback(lat time.Duration, contended bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	if now.Sub(a.lastChange) < 100*time.Millisecond {
		return
	}

	if contended {
		a.concurrency /= 2
		if a.concurrency < a.min {
			a.concurrency = a.min
		}
		a.lastChange = now
		return
	}

	if lat < 250*time.Millisecond && a.concurrency < a.max {
		a.concurrency++
		a.lastChange = now
	}
}
