package backend

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER - Token Bucket implementation
// ══════════════════════════════════════════════════════════════════════════════

// RateLimiter is a token bucket shared by every request of the client. A
// roster load issues up to twelve requests per student, so the bucket is what
// keeps a large class from flooding the backend.
type RateLimiter struct {
	mu sync.Mutex

	maxTokens   float64
	refillRate  float64 // tokens per second
	baseRate    float64
	tokens      float64
	lastRefill  time.Time
	waitTimeout time.Duration
	pausedUntil time.Time
}

// RateLimiterConfig contains configuration for the rate limiter.
type RateLimiterConfig struct {
	// RequestsPerSecond is the maximum sustained request rate
	RequestsPerSecond float64

	// BurstSize is the maximum number of requests that can be made in a burst
	BurstSize int

	// WaitTimeout is the maximum time to wait for a token
	WaitTimeout time.Duration
}

// DefaultRateLimiterConfig returns defaults sized for one college backend.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 20,
		BurstSize:         10,
		WaitTimeout:       30 * time.Second,
	}
}

// NewRateLimiter creates a new RateLimiter with the given configuration.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = DefaultRateLimiterConfig().RequestsPerSecond
	}
	if config.BurstSize < 1 {
		config.BurstSize = 1
	}
	return &RateLimiter{
		maxTokens:   float64(config.BurstSize),
		refillRate:  config.RequestsPerSecond,
		baseRate:    config.RequestsPerSecond,
		tokens:      float64(config.BurstSize), // start full
		lastRefill:  time.Now(),
		waitTimeout: config.WaitTimeout,
	}
}

// RateLimitError is returned when no token became available in time.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

// Wait blocks until a token is available, the context ends or the wait
// timeout passes.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	deadline := time.Now().Add(rl.waitTimeout)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		waitTime, ok := rl.tryAcquire()
		if ok {
			return nil
		}

		if rl.waitTimeout > 0 && time.Now().Add(waitTime).After(deadline) {
			return &RateLimitError{RetryAfter: waitTime}
		}

		timer := time.NewTimer(waitTime)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tryAcquire returns (0, true) when a token was taken, otherwise how long to wait.
func (rl *RateLimiter) tryAcquire() (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Before(rl.pausedUntil) {
		return rl.pausedUntil.Sub(now), false
	}

	rl.refillTokens(now)

	if rl.tokens < 1.0 {
		needed := 1.0 - rl.tokens
		return time.Duration(needed / rl.refillRate * float64(time.Second)), false
	}

	rl.tokens--
	return 0, true
}

// refillTokens must be called with the lock held.
func (rl *RateLimiter) refillTokens(now time.Time) {
	elapsed := now.Sub(rl.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	rl.tokens += elapsed * rl.refillRate
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}
	rl.lastRefill = now

	// Recover slowly from a 429 slowdown.
	if rl.refillRate < rl.baseRate {
		rl.refillRate = min(rl.baseRate, rl.refillRate*(1+0.1*elapsed))
	}
}

// RecordRateLimitHit reacts to a 429: the bucket is emptied, requests pause
// for retryAfter and the refill rate drops by a fifth until it recovers.
func (rl *RateLimiter) RecordRateLimitHit(retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.tokens = 0
	rl.refillRate *= 0.8
	if retryAfter > 0 {
		rl.pausedUntil = time.Now().Add(retryAfter)
	}
}

// RateLimiterStatus is a snapshot of the limiter for health output.
type RateLimiterStatus struct {
	AvailableTokens float64   `json:"available_tokens"`
	MaxTokens       float64   `json:"max_tokens"`
	RefillRate      float64   `json:"refill_rate"`
	PausedUntil     time.Time `json:"paused_until,omitempty"`
}

// Status returns the current status of the rate limiter.
func (rl *RateLimiter) Status() RateLimiterStatus {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refillTokens(time.Now())

	return RateLimiterStatus{
		AvailableTokens: rl.tokens,
		MaxTokens:       rl.maxTokens,
		RefillRate:      rl.refillRate,
		PausedUntil:     rl.pausedUntil,
	}
}
