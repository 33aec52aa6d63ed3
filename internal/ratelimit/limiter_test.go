package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	l := New(10, 5, "beacon")
	require.NotNil(t, l)
	assert.InDelta(t, 10.0, float64(l.limiter.Limit()), 0.001)
	assert.Equal(t, 5, l.limiter.Burst())
	assert.Equal(t, "beacon", l.api)
}

func TestWaitWithinBurst(t *testing.T) {
	l := New(100, 3, "relay")
	for i := 0; i < 3; i++ {
		start := time.Now()
		require.NoError(t, l.Wait(context.Background()))
		assert.Less(t, time.Since(start), 50*time.Millisecond)
	}
}

func TestWaitCancelled(t *testing.T) {
	l := New(0.001, 1, "snapshot")
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Wait(ctx), context.DeadlineExceeded)
}

func TestUnlimitedAndNil(t *testing.T) {
	var nilLimiter *Limiter
	assert.NoError(t, nilLimiter.Wait(context.Background()))

	l := New(0, 0, "orders")
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
}
