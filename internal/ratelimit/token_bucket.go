package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket is a deterministic token bucket refilling at an integer
// rate (tokens/sec) using the provided Clock.
//
// Refill is computed in nanosecond ticks to avoid float drift: a rate of
// R tokens/sec adds R nano-tokens per elapsed nanosecond, where one token
// is 1e9 nano-tokens.
type TokenBucket struct {
	mu sync.Mutex

	clock Clock

	burst int64 // tokens
	rate  int64 // tokens/sec

	availableNano int64
	last          time.Time
}

const nanoPerToken = int64(time.Second)

// NewTokenBucket returns a bucket that starts full.
//
// rate <= 0 disables refill; burst <= 0 means every Allow fails once the
// initial (zero) budget is spent.
func NewTokenBucket(clock Clock, burst, rate int64) *TokenBucket {
	if clock == nil {
		clock = RealClock{}
	}
	if burst < 0 {
		burst = 0
	}
	if rate < 0 {
		rate = 0
	}
	return &TokenBucket{
		clock:         clock,
		burst:         burst,
		rate:          rate,
		availableNano: burst * nanoPerToken,
		last:          clock.Now(),
	}
}

// Allow consumes n tokens if available. n <= 0 always succeeds.
func (b *TokenBucket) Allow(n int64) bool {
	if n <= 0 {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()

	cost := n * nanoPerToken
	if cost/nanoPerToken != n {
		// Overflow; a request this large can never be satisfied.
		return false
	}
	if b.availableNano < cost {
		return false
	}
	b.availableNano -= cost
	return true
}

func (b *TokenBucket) refillLocked() {
	now := b.clock.Now()
	if now.Before(b.last) {
		// Time went backwards; move the reference point without refilling.
		b.last = now
		return
	}
	elapsed := now.Sub(b.last)
	b.last = now
	if elapsed <= 0 || b.rate <= 0 || b.burst <= 0 {
		return
	}

	capNano := b.burst * nanoPerToken
	need := capNano - b.availableNano
	if need <= 0 {
		b.availableNano = capNano
		return
	}

	// rate tokens/sec equals rate nano-tokens per nanosecond.
	if elapsed.Nanoseconds() >= need/b.rate {
		b.availableNano = capNano
		return
	}
	b.availableNano += elapsed.Nanoseconds() * b.rate
}
