package utils

import (
	"math/rand/v2"
	"time"
)

// Jitter spreads a duration by plus or minus fraction so that periodic
// workers do not fire in lockstep.
func Jitter(base time.Duration, fraction float64) time.Duration {
	if fraction <= 0 {
		return base
	}
	if fraction > 1 {
		fraction = 1
	}
	jitterRange := float64(base) * fraction
	jitter := (rand.Float64()*2 - 1) * jitterRange
	return base + time.Duration(jitter)
}

// JitteredTicker returns a channel that ticks at jittered intervals,
// each tick drawing fresh jitter. The stop function must be called to
// release the ticker goroutine.
func JitteredTicker(base time.Duration, fraction float64) (<-chan time.Time, func()) {
	ch := make(chan time.Time, 1)
	done := make(chan struct{})

	go func() {
		for {
			timer := time.NewTimer(Jitter(base, fraction))
			select {
			case t := <-timer.C:
				select {
				case ch <- t:
				default:
					// Drop if receiver is slow
				}
			case <-done:
				timer.Stop()
				close(ch)
				return
			}
		}
	}()

	return ch, func() { close(done) }
}
