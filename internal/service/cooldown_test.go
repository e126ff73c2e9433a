package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCooldownLimiter_Allow(t *testing.T) {
	t.Run("first attempt is always allowed", func(t *testing.T) {
		limiter := NewCooldownLimiter()
		assert.True(t, limiter.Allow(1, "start", time.Second))
	})

	t.Run("second attempt inside the window is denied", func(t *testing.T) {
		limiter := NewCooldownLimiter()
		assert.True(t, limiter.Allow(1, "start", time.Second))
		assert.False(t, limiter.Allow(1, "start", time.Second))
	})

	t.Run("attempt after the window is allowed again", func(t *testing.T) {
		limiter := NewCooldownLimiter()
		now := time.Now()
		limiter.now = func() time.Time { return now }

		assert.True(t, limiter.Allow(1, "start", time.Second))

		limiter.now = func() time.Time { return now.Add(2 * time.Second) }
		assert.True(t, limiter.Allow(1, "start", time.Second))
	})

	t.Run("a denied attempt does not reset the window", func(t *testing.T) {
		limiter := NewCooldownLimiter()
		now := time.Now()
		limiter.now = func() time.Time { return now }

		assert.True(t, limiter.Allow(1, "start", 2*time.Second))

		limiter.now = func() time.Time { return now.Add(time.Second) }
		assert.False(t, limiter.Allow(1, "start", 2*time.Second))

		// 2s past the first allowed attempt; if the denial had reset the
		// window this would still be blocked.
		limiter.now = func() time.Time { return now.Add(2 * time.Second) }
		assert.True(t, limiter.Allow(1, "start", 2*time.Second))
	})

	t.Run("users and actions are independent", func(t *testing.T) {
		limiter := NewCooldownLimiter()
		assert.True(t, limiter.Allow(1, "start", time.Second))
		assert.True(t, limiter.Allow(2, "start", time.Second))
		assert.True(t, limiter.Allow(1, "stop", time.Second))
	})
}

func TestCooldownLimiter_Prune(t *testing.T) {
	t.Run("drops only entries past retention", func(t *testing.T) {
		limiter := NewCooldownLimiter()
		now := time.Now()

		limiter.now = func() time.Time { return now.Add(-10 * time.Minute) }
		limiter.Allow(1, "start", time.Second)

		limiter.now = func() time.Time { return now }
		limiter.Allow(2, "start", time.Second)

		removed := limiter.Prune(5 * time.Minute)
		assert.Equal(t, 1, removed)
		assert.Equal(t, 1, limiter.Size())
	})

	t.Run("empty limiter prunes nothing", func(t *testing.T) {
		limiter := NewCooldownLimiter()
		assert.Equal(t, 0, limiter.Prune(time.Minute))
	})
}
