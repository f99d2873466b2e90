package ergast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noJitter makes limiter delays deterministic for assertions.
func noJitter(l *Limiter) *Limiter {
	l.jitter = func(time.Duration) time.Duration { return 0 }
	return l
}

func TestLimiterDelayDoublesUnderConsecutiveRateLimits(t *testing.T) {
	limiter := noJitter(NewLimiter(LimiterConfig{
		BaseDelay:  time.Second,
		MaxBackoff: 20 * time.Second,
	}))

	var previous time.Duration

	// Monotone non-decreasing across a 429 streak, capped at MaxBackoff.
	for i := 0; i < 8; i++ {
		delay := limiter.NextDelay(OutcomeRateLimited, 0)
		require.GreaterOrEqual(t, delay, previous, "delay must never decrease during a 429 streak")
		require.LessOrEqual(t, delay, 20*time.Second+limiter.baseDelay)
		previous = delay
	}

	assert.Equal(t, 20*time.Second, limiter.Delay())
}

func TestLimiterResetsOnSuccess(t *testing.T) {
	limiter := noJitter(NewLimiter(LimiterConfig{BaseDelay: time.Second}))

	limiter.NextDelay(OutcomeTransientError, 0)
	limiter.NextDelay(OutcomeTransientError, 0)
	require.Equal(t, 4*time.Second, limiter.Delay())
	require.Equal(t, 2, limiter.Streak())

	delay := limiter.NextDelay(OutcomeSuccess, 0)

	assert.Equal(t, time.Second, delay)
	assert.Equal(t, time.Second, limiter.Delay())
	assert.Zero(t, limiter.Streak())
}

func TestLimiterHonorsLargerRetryAfter(t *testing.T) {
	limiter := noJitter(NewLimiter(LimiterConfig{
		BaseDelay:  time.Second,
		MaxBackoff: 20 * time.Second,
	}))

	// Doubled delay would be 2s; the server's explicit 10s wins.
	delay := limiter.NextDelay(OutcomeRateLimited, 10*time.Second)
	assert.Equal(t, 10*time.Second, delay)

	// A smaller retry-after never shrinks the backoff.
	delay = limiter.NextDelay(OutcomeRateLimited, time.Second)
	assert.Equal(t, 20*time.Second, delay)
}

func TestLimiterBaseDelayCreepsUnderRateLimiting(t *testing.T) {
	limiter := noJitter(NewLimiter(LimiterConfig{
		BaseDelay:    2 * time.Second,
		MaxBaseDelay: 8 * time.Second,
	}))

	// Every 429 without an explicit Retry-After nudges the base up 25%.
	limiter.NextDelay(OutcomeRateLimited, 0)
	require.Equal(t, 2500*time.Millisecond, limiter.BaseDelay())

	limiter.NextDelay(OutcomeRateLimited, 0)
	assert.Equal(t, 3125*time.Millisecond, limiter.BaseDelay())

	// Success resets the working delay but keeps the crept base: the API
	// told us to slow down for good.
	limiter.NextDelay(OutcomeSuccess, 0)
	assert.Equal(t, 3125*time.Millisecond, limiter.Delay())

	// Creep is capped at MaxBaseDelay.
	for i := 0; i < 10; i++ {
		limiter.NextDelay(OutcomeRateLimited, 0)
	}
	assert.Equal(t, 8*time.Second, limiter.BaseDelay())
}

func TestLimiterRetryAfterRaisesBaseDelay(t *testing.T) {
	limiter := noJitter(NewLimiter(LimiterConfig{
		BaseDelay:    time.Second,
		MaxBaseDelay: 8 * time.Second,
	}))

	// The server's explicit pause becomes the new sustained floor.
	limiter.NextDelay(OutcomeRateLimited, 5*time.Second)
	assert.Equal(t, 5*time.Second, limiter.BaseDelay())

	// A shorter Retry-After never lowers it.
	limiter.NextDelay(OutcomeRateLimited, time.Second)
	assert.Equal(t, 5*time.Second, limiter.BaseDelay())
}

func TestLimiterTransientBackoffUsesIndependentCap(t *testing.T) {
	limiter := noJitter(NewLimiter(LimiterConfig{
		BaseDelay:           time.Second,
		MaxBackoff:          20 * time.Second,
		MaxTransientBackoff: 4 * time.Second,
	}))

	for i := 0; i < 5; i++ {
		limiter.NextDelay(OutcomeTransientError, 0)
	}

	assert.Equal(t, 4*time.Second, limiter.Delay())
	assert.Equal(t, time.Second, limiter.BaseDelay(), "transient errors never creep the base delay")
}

func TestLimiterShouldAbort(t *testing.T) {
	limiter := NewLimiter(LimiterConfig{MaxRetries: 3})

	assert.False(t, limiter.ShouldAbort(2))
	assert.True(t, limiter.ShouldAbort(3))
	assert.True(t, limiter.ShouldAbort(10))
}

func TestLimiterDefaults(t *testing.T) {
	limiter := NewLimiter(LimiterConfig{})

	assert.Equal(t, 1500*time.Millisecond, limiter.BaseDelay())
	assert.Equal(t, 1500*time.Millisecond, limiter.Delay())
	assert.False(t, limiter.ShouldAbort(5))
	assert.True(t, limiter.ShouldAbort(6))
}

func TestLimiterJitterStaysBounded(t *testing.T) {
	limiter := NewLimiter(LimiterConfig{BaseDelay: time.Second})

	for i := 0; i < 50; i++ {
		delay := limiter.NextDelay(OutcomeRateLimited, 0)
		base := limiter.Delay()
		require.GreaterOrEqual(t, delay, base)
		require.Less(t, delay, base+250*time.Millisecond)
		limiter.NextDelay(OutcomeSuccess, 0)
	}
}
