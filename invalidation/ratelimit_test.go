package invalidation

import "testing"

func TestCallerLimiter_BurstThenThrottles(t *testing.T) {
	l := newCallerLimiter(1, 3)
	for i := 0; i < 3; i++ {
		if !l.allow("caller-a") {
			t.Fatalf("expected burst token %d to be allowed", i)
		}
	}
	if l.allow("caller-a") {
		t.Fatal("expected the 4th request within the burst window to be throttled")
	}
}

func TestCallerLimiter_PerCallerIsolation(t *testing.T) {
	l := newCallerLimiter(1, 1)
	if !l.allow("caller-a") {
		t.Fatal("expected caller-a's first request to be allowed")
	}
	if !l.allow("caller-b") {
		t.Fatal("caller-b must not be throttled by caller-a's usage")
	}
}

func TestCallerLimiter_NilIsAlwaysAllowed(t *testing.T) {
	var l *callerLimiter
	for i := 0; i < 50; i++ {
		if !l.allow("anyone") {
			t.Fatal("a nil limiter must never throttle")
		}
	}
}

func TestCallerLimiter_EmptyKeyNeverThrottled(t *testing.T) {
	l := newCallerLimiter(1, 1)
	for i := 0; i < 20; i++ {
		if !l.allow("") {
			t.Fatal("an empty TriggeredBy key must never be throttled")
		}
	}
}
