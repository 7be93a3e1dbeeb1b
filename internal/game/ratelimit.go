package game

import "time"

// inputLimiter enforces a per-player cap on direction changes within a
// rolling window. Input beyond the cap is dropped by the caller — never
// queued and never errored back to the sender.
type inputLimiter struct {
	window time.Duration
	max    int
	stamps []time.Time
}

func newInputLimiter(max int, window time.Duration) *inputLimiter {
	return &inputLimiter{
		window: window,
		max:    max,
		stamps: make([]time.Time, 0, max),
	}
}

// Allow records the event at now and reports whether it fits in the window.
func (l *inputLimiter) Allow(now time.Time) bool {
	cutoff := now.Add(-l.window)
	keep := l.stamps[:0]
	for _, ts := range l.stamps {
		if ts.After(cutoff) {
			keep = append(keep, ts)
		}
	}
	l.stamps = keep

	if len(l.stamps) >= l.max {
		return false
	}
	l.stamps = append(l.stamps, now)
	return true
}
