package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_AdmitsUpToMaxCallsImmediately(t *testing.T) {
	l := New(3, 100*time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		waited, err := l.Wait(ctx)
		require.NoError(t, err)
		assert.Less(t, waited, 10*time.Millisecond)
	}
	assert.Equal(t, 3, l.Len())
}

func TestLimiter_BlocksNextCallerAtCeiling(t *testing.T) {
	period := 80 * time.Millisecond
	l := New(2, period)
	ctx := context.Background()

	_, err := l.Wait(ctx)
	require.NoError(t, err)
	_, err = l.Wait(ctx)
	require.NoError(t, err)

	start := time.Now()
	waited, err := l.Wait(ctx)
	require.NoError(t, err)
	elapsed := time.Since(start)

	// The third call must have been blocked for close to the period.
	assert.GreaterOrEqual(t, elapsed, period-20*time.Millisecond)
	assert.GreaterOrEqual(t, waited, period-20*time.Millisecond)
}

func TestLimiter_ContextCancellationUnblocks(t *testing.T) {
	l := New(1, time.Hour)
	ctx := context.Background()
	_, err := l.Wait(ctx)
	require.NoError(t, err)

	cctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = l.Wait(cctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLimiter_UpdateFromHeadersPadsTowardCeiling(t *testing.T) {
	l := New(10, time.Minute)
	l.UpdateFromHeaders(1, 10)
	assert.Equal(t, 9, l.Len())
}

func TestLimiter_UpdateFromHeadersIgnoresHighBudget(t *testing.T) {
	l := New(10, time.Minute)
	l.UpdateFromHeaders(8, 10)
	assert.Equal(t, 0, l.Len())
}
