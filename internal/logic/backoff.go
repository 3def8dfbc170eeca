package logic

import "time"

// Backoff is the retry policy for transient sensor bus failures.
type Backoff struct {
	Initial     time.Duration
	Max         time.Duration
	MaxFailures int // consecutive failures before the fault is surfaced
}

// Delay returns how long to wait before the next attempt after the given
// number of consecutive failures: Initial * 2^(failures-1), capped at Max.
func (b Backoff) Delay(failures int) time.Duration {
	if failures <= 0 {
		return 0
	}
	d := b.Initial
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= b.Max {
			return b.Max
		}
	}
	if d > b.Max {
		return b.Max
	}
	return d
}

// Exhausted reports whether the failure count has reached the escalation point.
func (b Backoff) Exhausted(failures int) bool {
	return b.MaxFailures > 0 && failures >= b.MaxFailures
}
