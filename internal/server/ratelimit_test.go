package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClientRateLimiterBuckets(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rl := NewClientRateLimiter(RateLimits{MaxVotes: 2, MaxChatMessages: 1})
	rl.now = func() time.Time { return now }
	rl.lastRefill = now

	assert.True(t, rl.Allow("submit_vote"))
	assert.True(t, rl.Allow("submit_vote"))
	assert.False(t, rl.Allow("submit_vote"))

	assert.True(t, rl.Allow("send_message"))
	assert.False(t, rl.Allow("send_message"))

	assert.False(t, rl.Allow("create_poll"), "zero budget")
	assert.True(t, rl.Allow("unknown"), "unclassified events are not limited")

	now = now.Add(time.Minute)
	assert.True(t, rl.Allow("submit_vote"))
}

func TestConnectionRateLimiter(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rl := NewConnectionRateLimiter(2)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.AllowConnection("10.0.0.1"))
	assert.True(t, rl.AllowConnection("10.0.0.1"))
	assert.False(t, rl.AllowConnection("10.0.0.1"))
	assert.True(t, rl.AllowConnection("10.0.0.2"))

	now = now.Add(61 * time.Second)
	assert.True(t, rl.AllowConnection("10.0.0.1"))

	now = now.Add(20 * time.Minute)
	rl.cleanup()
	assert.Empty(t, rl.connectionsPerIP)

	unlimited := NewConnectionRateLimiter(0)
	for i := 0; i < 100; i++ {
		assert.True(t, unlimited.AllowConnection("10.0.0.1"))
	}
}
