package middleware

import (
	"testing"
	"time"

	"app/internal/entitlement"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterBlocksOverLimit(t *testing.T) {
	rl := NewRateLimiter()

	assert.True(t, rl.Allow("user-1", 2))
	assert.True(t, rl.Allow("user-1", 2))
	assert.False(t, rl.Allow("user-1", 2))
	assert.True(t, rl.Allow("user-2", 2))
}

func TestRateLimiterUnlimitedRole(t *testing.T) {
	rl := NewRateLimiter()
	for i := 0; i < 1000; i++ {
		assert.True(t, rl.Allow("user-1", entitlement.Unlimited))
	}
}

func TestRateLimiterWindowResets(t *testing.T) {
	rl := NewRateLimiter()
	clock := time.Now()
	rl.now = func() time.Time { return clock }

	assert.True(t, rl.Allow("user-1", 1))
	assert.False(t, rl.Allow("user-1", 1))

	clock = clock.Add(61 * time.Second)
	assert.True(t, rl.Allow("user-1", 1))
}

func TestRateLimiterEvictsExpiredWindows(t *testing.T) {
	rl := NewRateLimiter()
	clock := time.Now()
	rl.now = func() time.Time { return clock }

	rl.Allow("user-1", 10)
	rl.Allow("user-2", 10)
	assert.Len(t, rl.windows, 2)

	clock = clock.Add(2 * time.Minute)
	rl.Allow("user-3", 10)

	// Expired windows are dropped so the map tracks active users only.
	assert.Len(t, rl.windows, 1)
	_, ok := rl.windows["user-3"]
	assert.True(t, ok)
}
