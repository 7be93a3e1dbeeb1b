package game

import (
	"testing"
	"time"
)

func TestLimiterAllowsUpToCap(t *testing.T) {
	l := newInputLimiter(3, time.Second)
	now := time.Now()

	for i := 0; i < 3; i++ {
		if !l.Allow(now) {
			t.Fatalf("call %d under the cap was rejected", i+1)
		}
	}
	if l.Allow(now) {
		t.Errorf("call over the cap was accepted")
	}
}

func TestLimiterWindowSlides(t *testing.T) {
	l := newInputLimiter(2, time.Second)
	base := time.Now()

	if !l.Allow(base) || !l.Allow(base) {
		t.Fatalf("initial calls rejected")
	}
	if l.Allow(base.Add(500 * time.Millisecond)) {
		t.Errorf("window still full at +500ms")
	}
	if !l.Allow(base.Add(1100 * time.Millisecond)) {
		t.Errorf("window should have slid past the first stamps")
	}
}

func TestLimiterRejectionLeavesNoStamp(t *testing.T) {
	l := newInputLimiter(1, time.Second)
	base := time.Now()

	l.Allow(base)
	// Hammering while full must not extend the lockout.
	for i := 0; i < 10; i++ {
		l.Allow(base.Add(time.Duration(i*50) * time.Millisecond))
	}
	if !l.Allow(base.Add(1050 * time.Millisecond)) {
		t.Errorf("rejected calls should not count against the window")
	}
}
