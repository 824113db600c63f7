package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/raaihank/chrono-sentinel/internal/config"
)

func TestRateLimiter(t *testing.T) {
	now := time.Date(2024, 3, 3, 10, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(config.RateLimitConfig{
		Enabled:           true,
		RequestsPerSecond: 1,
		Burst:             2,
		ClientTTL:         time.Minute,
	})
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"), "buckets are per client")

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("10.0.0.1"), "one token refilled")
	assert.False(t, rl.Allow("10.0.0.1"))

	t.Run("Cleanup", func(t *testing.T) {
		assert.Equal(t, 2, rl.Clients())
		now = now.Add(30 * time.Second)
		rl.Allow("10.0.0.2")

		now = now.Add(45 * time.Second)
		rl.Cleanup()
		assert.Equal(t, 1, rl.Clients())
	})

	t.Run("Disabled", func(t *testing.T) {
		off := NewRateLimiter(config.RateLimitConfig{Enabled: false})
		for i := 0; i < 10; i++ {
			assert.True(t, off.Allow("10.0.0.1"))
		}
		assert.Equal(t, 0, off.Clients())
	})
}
