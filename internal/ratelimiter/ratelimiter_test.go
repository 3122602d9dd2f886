package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllow(t *testing.T) {
	limiter := New(10, 10)

	for i := 0; i < 10; i++ {
		require.True(t, limiter.Allow(), "request %d should be within burst", i)
	}
	assert.False(t, limiter.Allow(), "bucket should be empty")

	time.Sleep(150 * time.Millisecond)
	assert.True(t, limiter.Allow(), "token should be replenished")
}

func TestUnlimited(t *testing.T) {
	limiter := New(0, 0)
	for i := 0; i < 10_000; i++ {
		require.True(t, limiter.Allow())
	}
}

func TestWaitCancelled(t *testing.T) {
	limiter := New(1, 1)
	require.True(t, limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.Error(t, limiter.Wait(ctx))
}

func TestKeyed(t *testing.T) {
	t.Run("clients have separate buckets", func(t *testing.T) {
		k := NewKeyed(0, 1, 1, time.Minute)

		assert.True(t, k.Allow("alice"))
		assert.False(t, k.Allow("alice"))
		assert.True(t, k.Allow("bob"))
		assert.Equal(t, 2, k.Clients())
	})

	t.Run("global limit applies across clients", func(t *testing.T) {
		k := NewKeyed(1, 0, 1, time.Minute)

		assert.True(t, k.Allow("alice"))
		assert.False(t, k.Allow("bob"))
		assert.Equal(t, 0, k.Clients())
	})

	t.Run("tokens reports the tighter bucket", func(t *testing.T) {
		k := NewKeyed(10, 2, 2, time.Minute)

		assert.InDelta(t, 2, k.Tokens("alice"), 0.01, "unknown client sees the global bucket")
		require.True(t, k.Allow("alice"))
		require.True(t, k.Allow("alice"))
		assert.Less(t, k.Tokens("alice"), 1.0)
		assert.InDelta(t, 0, k.Tokens("bob"), 0.5, "global burst shared with alice")
	})

	t.Run("sweep drops idle buckets", func(t *testing.T) {
		k := NewKeyed(0, 5, 5, time.Minute)
		k.Allow("alice")
		k.Allow("bob")

		assert.Equal(t, 0, k.Sweep(time.Now()))
		assert.Equal(t, 2, k.Sweep(time.Now().Add(2*time.Minute)))
		assert.Equal(t, 0, k.Clients())
	})
}
