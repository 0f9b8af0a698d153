package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/console-gate/internal/testutil"
)

func TestConnCounterAcquireRelease(t *testing.T) {
	client, _ := testutil.SetupRedis(t)
	counter := NewConnCounter(client, ConnCounterConfig{PerSessionMax: 2, CounterTTL: time.Hour})
	ctx := context.Background()

	ok, count, err := counter.Acquire(ctx, "s-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, count)

	ok, count, err = counter.Acquire(ctx, "s-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, count)

	// At capacity: rejected without inflating the count.
	ok, count, err = counter.Acquire(ctx, "s-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, count)

	// Other sessions have their own budget.
	ok, _, err = counter.Acquire(ctx, "s-2")
	require.NoError(t, err)
	assert.True(t, ok)

	// Releasing frees a slot.
	remaining, err := counter.Release(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)

	ok, count, err = counter.Acquire(ctx, "s-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, count)
}

func TestConnCounterReleaseClampsAtZero(t *testing.T) {
	client, _ := testutil.SetupRedis(t)
	counter := NewConnCounter(client, ConnCounterConfig{PerSessionMax: 4, CounterTTL: time.Hour})
	ctx := context.Background()

	_, _, err := counter.Acquire(ctx, "s-1")
	require.NoError(t, err)

	remaining, err := counter.Release(ctx, "s-1")
	require.NoError(t, err)
	assert.Zero(t, remaining)

	// Double release: still zero, and the key is gone.
	remaining, err = counter.Release(ctx, "s-1")
	require.NoError(t, err)
	assert.Zero(t, remaining)

	exists, err := client.Exists(ctx, connKey("s-1")).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)

	// Admission still works after the clamp.
	ok, count, err := counter.Acquire(ctx, "s-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, count)
}

func TestConnCounterTTLBoundsLeaks(t *testing.T) {
	client, srv := testutil.SetupRedis(t)
	counter := NewConnCounter(client, ConnCounterConfig{PerSessionMax: 1, CounterTTL: time.Minute})
	ctx := context.Background()

	ok, _, err := counter.Acquire(ctx, "s-1")
	require.NoError(t, err)
	require.True(t, ok)

	// A crashed holder never releases; the TTL reclaims the slot.
	srv.FastForward(2 * time.Minute)

	ok, count, err := counter.Acquire(ctx, "s-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, count)
}

func TestConnCounterCount(t *testing.T) {
	client, _ := testutil.SetupRedis(t)
	counter := NewConnCounter(client, ConnCounterConfig{PerSessionMax: 8, CounterTTL: time.Hour})
	ctx := context.Background()

	count, err := counter.Count(ctx, "s-1")
	require.NoError(t, err)
	assert.Zero(t, count)

	_, _, err = counter.Acquire(ctx, "s-1")
	require.NoError(t, err)
	_, _, err = counter.Acquire(ctx, "s-1")
	require.NoError(t, err)

	count, err = counter.Count(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
