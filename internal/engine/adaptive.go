package engine

import "sync"

// AdaptiveBackoff stretches a monitor's effective check period after a
// run of consecutive successes, and snaps back to the configured
// period_minutes on the first failure. It is opt-in: nil on Executor
// by default, so the fixed 60-second-tick/period_minutes contract in
// SPEC_FULL.md §9 holds unless a caller explicitly enables it via
// Scheduler.WithAdaptiveBackoff.
type AdaptiveBackoff struct {
	maxMultiplier float64

	mu      sync.Mutex
	streaks map[int64]int
}

// NewAdaptiveBackoff builds a backoff tracker that never stretches a
// monitor's effective period beyond maxMultiplier times period_minutes.
func NewAdaptiveBackoff(maxMultiplier float64) *AdaptiveBackoff {
	if maxMultiplier < 1 {
		maxMultiplier = 1
	}
	return &AdaptiveBackoff{maxMultiplier: maxMultiplier, streaks: make(map[int64]int)}
}

// Multiplier returns the current period multiplier for a monitor: it
// doubles every 5 consecutive successes, capped at maxMultiplier.
func (b *AdaptiveBackoff) Multiplier(monitorID int64) float64 {
	b.mu.Lock()
	streak := b.streaks[monitorID]
	b.mu.Unlock()

	m := 1.0
	for i := 0; i < streak/5; i++ {
		m *= 2
		if m >= b.maxMultiplier {
			return b.maxMultiplier
		}
	}
	return m
}

// Record updates a monitor's streak: success extends it, any failure
// snaps it back to zero so the next due check happens at the
// configured period_minutes rather than a stretched one.
func (b *AdaptiveBackoff) Record(monitorID int64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if success {
		b.streaks[monitorID]++
	} else {
		b.streaks[monitorID] = 0
	}
}
