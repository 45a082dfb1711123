// Package retry wraps any fallible operation with exponential-backoff retry,
// classifying errors into retryable and non-retryable.
package retry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/quantleaf/optrader/internal/errs"
)

// Policy configures the retry wrapper.
type Policy struct {
	MaxRetries    int
	BaseDelay     time.Duration
	BackoffFactor float64

	// Sleep is overridable for tests; defaults to time.Sleep via a timer
	// that respects context cancellation.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Default returns a Policy with conservative production defaults.
func Default() Policy {
	return Policy{
		MaxRetries:    3,
		BaseDelay:     250 * time.Millisecond,
		BackoffFactor: 2.0,
		Sleep:         sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do runs fn, retrying on retryable errors per Retryable, up to MaxRetries
// additional attempts. The delay before attempt n (1-indexed retry count) is
// BaseDelay * BackoffFactor^(n-1). After exhaustion the last error is
// returned unchanged.
func Do(ctx context.Context, p Policy, fn func() error) error {
	if p.Sleep == nil {
		p.Sleep = sleepCtx
	}

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !Retryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxRetries {
			break
		}

		delay := backoffDelay(p.BaseDelay, p.BackoffFactor, attempt)
		if err := p.Sleep(ctx, delay); err != nil {
			return lastErr
		}
	}
	return lastErr
}

func backoffDelay(base time.Duration, factor float64, attempt int) time.Duration {
	multiplier := 1.0
	for i := 0; i < attempt; i++ {
		multiplier *= factor
	}
	return time.Duration(float64(base) * multiplier)
}

// Retryable classifies an error as transient: a net.Error (connection
// error, socket reset, timeout; this includes the *url.Error values an
// http.Client returns), context.DeadlineExceeded, an HTTP 5xx
// HTTPStatusError, or an errs kind of ProviderTransient or Timeout. Other
// I/O errors, such as a malformed chunked body or io.ErrUnexpectedEOF while
// reading a response, are not retried. It never retries HTTP 4xx,
// programming errors, or explicit data-rejection errors.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	if kind, ok := errs.KindOf(err); ok {
		switch kind {
		case errs.KindProviderTransient, errs.KindTimeout:
			return true
		default:
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 && statusErr.StatusCode < 600
	}

	return false
}

// HTTPStatusError wraps a non-2xx HTTP response for retry classification.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return http.StatusText(e.StatusCode) + ": " + e.Body
}

func NewHTTPStatusError(code int, body string) *HTTPStatusError {
	return &HTTPStatusError{StatusCode: code, Body: body}
}
