package httpmiddleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterBurstThenRefuse(t *testing.T) {
	rl := NewRateLimiter(3)
	now := time.Now()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.take("10.0.0.1", now), "request %d should pass", i)
	}
	assert.False(t, rl.take("10.0.0.1", now))
}

func TestRateLimiterRefillsOverTime(t *testing.T) {
	rl := NewRateLimiter(60) // one token per second
	now := time.Now()

	for i := 0; i < 60; i++ {
		rl.take("10.0.0.1", now)
	}
	assert.False(t, rl.take("10.0.0.1", now))
	assert.True(t, rl.take("10.0.0.1", now.Add(1500*time.Millisecond)))
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(1)
	now := time.Now()

	assert.True(t, rl.take("10.0.0.1", now))
	assert.False(t, rl.take("10.0.0.1", now))
	assert.True(t, rl.take("10.0.0.2", now))
}
