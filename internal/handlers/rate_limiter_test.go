package handlers

import (
	"testing"
	"time"
)

func TestRateLimiterWindow(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter := newRateLimiter(2, time.Minute, func() time.Time { return now })

	for i := 0; i < 2; i++ {
		if ok, _ := limiter.allow("user-1"); !ok {
			t.Fatalf("request %d should pass", i)
		}
	}
	ok, wait := limiter.allow("user-1")
	if ok || wait != time.Minute {
		t.Fatalf("expected block for a minute, got ok=%v wait=%s", ok, wait)
	}
	if ok, _ := limiter.allow("user-2"); !ok {
		t.Fatalf("other shoppers keep their own window")
	}

	now = now.Add(time.Minute)
	if ok, _ := limiter.allow("user-1"); !ok {
		t.Fatalf("window should reset")
	}
	if len(limiter.windows) != 1 {
		t.Fatalf("expired windows should be pruned, have %d", len(limiter.windows))
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	limiter := newRateLimiter(0, time.Minute, nil)
	if limiter != nil {
		t.Fatalf("expected nil limiter when disabled")
	}
	if ok, _ := limiter.allow("user-1"); !ok {
		t.Fatalf("nil limiter must allow")
	}
}
