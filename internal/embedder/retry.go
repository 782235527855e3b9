package embedder

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// RetryPolicy controls how often a failed embeddings call is repeated.
// Attempts counts every call, so 1 means no retry.
type RetryPolicy struct {
	Attempts   int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

// DefaultRetryPolicy is a single attempt with backoff settings ready for
// callers that raise Attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:   1,
		BaseDelay:  DefaultRetryBaseDelay,
		MaxDelay:   DefaultRetryMaxDelay,
		Multiplier: DefaultRetryMultiplier,
	}
}

// delay is the wait after failed attempt n (0-based). A Retry-After hint
// from the server wins over the exponential delay, capped at MaxDelay.
func (p RetryPolicy) delay(n int, err error) time.Duration {
	if hint := retryAfter(err); hint > 0 {
		return min(hint, p.MaxDelay)
	}
	d := p.BaseDelay
	for range n {
		d = time.Duration(float64(d) * p.Multiplier)
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

// retryable reports whether repeating the call could succeed. Client errors
// other than timeouts and throttling, and malformed vectors, are final.
func retryable(err error) bool {
	if errors.Is(err, ErrDimensionMismatch) {
		return false
	}
	var statusErr *apiStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.Code == http.StatusRequestTimeout, statusErr.Code == http.StatusTooManyRequests:
			return true
		case statusErr.Code >= 400 && statusErr.Code < 500:
			return false
		}
	}
	return true
}

// withRetry calls fn until it succeeds, fails permanently, runs out of
// attempts or ctx ends. It returns the number of calls made.
func withRetry[T any](ctx context.Context, p RetryPolicy, fn func() (T, error)) (T, int, error) {
	var zero T
	attempts := max(p.Attempts, 1)

	for n := 0; ; n++ {
		result, err := fn()
		if err == nil {
			return result, n + 1, nil
		}
		if ctx.Err() != nil {
			return zero, n + 1, ctx.Err()
		}
		if n+1 >= attempts || !retryable(err) {
			return zero, n + 1, err
		}

		timer := time.NewTimer(p.delay(n, err))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, n + 1, ctx.Err()
		case <-timer.C:
		}
	}
}
