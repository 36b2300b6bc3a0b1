package core

import "time"

// Backoff computes retry intervals as min(Base * 2^attempts, Cap).
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
}

// Interval returns the wait before the next call after attempts consecutive
// failures. Zero attempts yields Base.
func (b Backoff) Interval(attempts int) time.Duration {
	if attempts <= 0 {
		return b.Base
	}
	d := b.Base
	for i := 0; i < attempts; i++ {
		// Doubling past Cap (or overflowing) can stop early.
		if d >= b.Cap || d > time.Duration(1<<62) {
			return b.Cap
		}
		d *= 2
	}
	if d > b.Cap {
		return b.Cap
	}
	return d
}
