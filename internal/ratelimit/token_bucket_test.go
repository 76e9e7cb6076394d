package ratelimit

import (
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestTokenBucket_StartsFullAndRefills(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	b := NewTokenBucket(clk, 2, 1)

	if !b.Allow(1) || !b.Allow(1) {
		t.Fatalf("expected initial burst of 2 to be allowed")
	}
	if b.Allow(1) {
		t.Fatalf("expected empty bucket to reject")
	}

	clk.Advance(999 * time.Millisecond)
	if b.Allow(1) {
		t.Fatalf("expected rejection just before a full token refilled")
	}
	clk.Advance(1 * time.Millisecond)
	if !b.Allow(1) {
		t.Fatalf("expected 1 token after 1s at rate 1/s")
	}
}

func TestTokenBucket_RefillClampsToBurst(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	b := NewTokenBucket(clk, 3, 10)

	if !b.Allow(3) {
		t.Fatalf("expected full burst allowed")
	}
	clk.Advance(time.Hour)
	if !b.Allow(3) {
		t.Fatalf("expected bucket refilled to burst")
	}
	if b.Allow(1) {
		t.Fatalf("expected refill to clamp at burst, not accumulate")
	}
}

func TestTokenBucket_TimeGoingBackwardsDoesNotRefill(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	b := NewTokenBucket(clk, 1, 1000)

	if !b.Allow(1) {
		t.Fatalf("expected initial token")
	}
	clk.now = clk.now.Add(-time.Minute)
	if b.Allow(1) {
		t.Fatalf("expected no refill when clock moves backwards")
	}
}

func TestTokenBucket_NonPositiveCostAlwaysAllowed(t *testing.T) {
	b := NewTokenBucket(&fakeClock{now: time.Unix(0, 0)}, 0, 0)
	if !b.Allow(0) || !b.Allow(-5) {
		t.Fatalf("expected n <= 0 to always succeed")
	}
	if b.Allow(1) {
		t.Fatalf("expected zero-capacity bucket to reject")
	}
}
