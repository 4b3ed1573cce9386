package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, limit int, window time.Duration) RateLimiter {
	t.Helper()

	mr := miniredis.RunT(t)
	limiter, err := NewRedisRateLimiter("redis://"+mr.Addr(), limit, window, false)
	require.NoError(t, err)
	t.Cleanup(func() { limiter.Close() })
	return limiter
}

func TestNoOpRateLimiter(t *testing.T) {
	limiter := &NoOpRateLimiter{}
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		allowed, err := limiter.Allow(ctx, "any-key")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	assert.NoError(t, limiter.Close())
}

func TestNewRedisRateLimiter_Disabled(t *testing.T) {
	limiter, err := NewRedisRateLimiter("", 100, time.Minute, true)
	require.NoError(t, err)
	defer limiter.Close()

	allowed, err := limiter.Allow(context.Background(), "key")
	require.NoError(t, err)
	assert.True(t, allowed, "disabled limiter admits everything")
}

func TestNewRedisRateLimiter_InvalidURL(t *testing.T) {
	_, err := NewRedisRateLimiter("not-a-valid-url", 100, time.Minute, false)
	assert.Error(t, err)
}

func TestNewRedisRateLimiter_ConnectionFailed(t *testing.T) {
	_, err := NewRedisRateLimiter("redis://localhost:1", 100, time.Minute, false)
	assert.Error(t, err)
}

func TestRedisRateLimiter_EnforcesLimit(t *testing.T) {
	limiter := newTestLimiter(t, 5, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		allowed, err := limiter.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d within limit", i+1)
	}

	allowed, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, allowed, "request over limit must be refused")
}

func TestRedisRateLimiter_IndependentKeys(t *testing.T) {
	limiter := newTestLimiter(t, 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, err := limiter.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = limiter.Allow(ctx, "10.0.0.2")
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = limiter.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestRedisRateLimiter_WindowSlides(t *testing.T) {
	// A tiny real-time window; the script scores entries with wall-clock
	// nanoseconds, so sleeping past the window frees the slots.
	limiter := newTestLimiter(t, 2, 50*time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, err := limiter.Allow(ctx, "sender")
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, err := limiter.Allow(ctx, "sender")
	require.NoError(t, err)
	assert.False(t, allowed)

	time.Sleep(80 * time.Millisecond)

	allowed, err = limiter.Allow(ctx, "sender")
	require.NoError(t, err)
	assert.True(t, allowed, "slots must free once the window passes")
}
