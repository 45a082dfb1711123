package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantleaf/optrader/internal/errs"
)

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	p := Default()
	p.BaseDelay = time.Millisecond
	p.Sleep = func(ctx context.Context, d time.Duration) error { return nil }

	attempts := 0
	err := Do(context.Background(), p, func() error {
		attempts++
		if attempts < 3 {
			return errs.New(errs.KindProviderTransient, "flaky")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_DoesNotRetry4xx(t *testing.T) {
	p := Default()
	attempts := 0
	err := Do(context.Background(), p, func() error {
		attempts++
		return NewHTTPStatusError(404, "not found")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDo_RetriesOn5xxAndExhausts(t *testing.T) {
	p := Default()
	p.MaxRetries = 2
	p.BaseDelay = time.Millisecond
	p.Sleep = func(ctx context.Context, d time.Duration) error { return nil }

	attempts := 0
	err := Do(context.Background(), p, func() error {
		attempts++
		return NewHTTPStatusError(503, "unavailable")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts) // initial + 2 retries
}

func TestDo_DoesNotRetryAuthOrOrderRejected(t *testing.T) {
	p := Default()
	attempts := 0
	err := Do(context.Background(), p, func() error {
		attempts++
		return errs.AuthError("sandbox", "bad token")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)

	attempts = 0
	err = Do(context.Background(), p, func() error {
		attempts++
		return errs.OrderRejected("ord-1", "insufficient funds")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestBackoffDelay_Sequence(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, backoffDelay(100*time.Millisecond, 2.0, 0))
	assert.Equal(t, 200*time.Millisecond, backoffDelay(100*time.Millisecond, 2.0, 1))
	assert.Equal(t, 400*time.Millisecond, backoffDelay(100*time.Millisecond, 2.0, 2))
}
