package handlers

import (
	"testing"
	"time"
)

func TestWindowLimiter(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	limiter := newSimpleRateLimiter(2, time.Minute, func() time.Time { return now })

	if !limiter.Allow("a") || !limiter.Allow("a") {
		t.Fatalf("expected first two calls admitted")
	}
	if limiter.Allow("a") {
		t.Fatalf("expected third call rejected")
	}
	if !limiter.Allow("b") {
		t.Fatalf("expected independent key admitted")
	}

	now = now.Add(time.Minute)
	if !limiter.Allow("a") {
		t.Fatalf("expected window reset")
	}
}

func TestWindowLimiterDisabled(t *testing.T) {
	if newSimpleRateLimiter(0, time.Minute, nil) != nil {
		t.Fatalf("expected nil limiter for zero limit")
	}
}
