package embedder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		Attempts:   attempts,
		BaseDelay:  time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
		Multiplier: 2.0,
	}
}

func TestWithRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds after transient error", func(t *testing.T) {
		calls := 0
		result, n, err := withRetry(ctx, fastPolicy(3), func() (string, error) {
			calls++
			if calls < 2 {
				return "", errors.New("connection reset")
			}
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", result)
		assert.Equal(t, 2, n)
	})

	t.Run("stops after attempts and returns last error", func(t *testing.T) {
		calls := 0
		_, n, err := withRetry(ctx, fastPolicy(4), func() (int, error) {
			calls++
			return 0, fmt.Errorf("error %d", calls)
		})
		require.Error(t, err)
		assert.Equal(t, 4, n)
		assert.EqualError(t, err, "error 4")
	})

	t.Run("default policy makes one call", func(t *testing.T) {
		_, n, err := withRetry(ctx, DefaultRetryPolicy(), func() (int, error) {
			return 0, errors.New("down")
		})
		require.Error(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("zero attempts still calls once", func(t *testing.T) {
		_, n, err := withRetry(ctx, RetryPolicy{}, func() (int, error) {
			return 0, errors.New("down")
		})
		require.Error(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("client errors are final", func(t *testing.T) {
		_, n, err := withRetry(ctx, fastPolicy(5), func() (int, error) {
			return 0, &apiStatusError{Code: http.StatusUnauthorized, Body: "bad key"}
		})
		require.Error(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("throttling is retried", func(t *testing.T) {
		_, n, err := withRetry(ctx, fastPolicy(3), func() (int, error) {
			return 0, &apiStatusError{Code: http.StatusTooManyRequests}
		})
		require.Error(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("context cancellation", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		policy := RetryPolicy{Attempts: 10, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

		calls := 0
		_, _, err := withRetry(cancelled, policy, func() (string, error) {
			calls++
			if calls == 2 {
				cancel()
			}
			return "", errors.New("down")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 2, calls)
	})

	t.Run("retry-after hint is capped at max delay", func(t *testing.T) {
		policy := RetryPolicy{Attempts: 2, BaseDelay: time.Millisecond, MaxDelay: 20 * time.Millisecond, Multiplier: 2}

		start := time.Now()
		_, _, err := withRetry(ctx, policy, func() (int, error) {
			return 0, &apiStatusError{Code: http.StatusTooManyRequests, RetryAfter: time.Hour}
		})
		elapsed := time.Since(start)
		require.Error(t, err)
		assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
		assert.Less(t, elapsed, 5*time.Second)
	})
}

func TestRetryPolicyDelay(t *testing.T) {
	p := RetryPolicy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}
	plain := errors.New("down")

	assert.Equal(t, 100*time.Millisecond, p.delay(0, plain))
	assert.Equal(t, 200*time.Millisecond, p.delay(1, plain))
	assert.Equal(t, 800*time.Millisecond, p.delay(3, plain))
	assert.Equal(t, time.Second, p.delay(4, plain))
	assert.Equal(t, 300*time.Millisecond, p.delay(0, &apiStatusError{Code: 503, RetryAfter: 300 * time.Millisecond}))
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"network error", errors.New("dial tcp: refused"), true},
		{"server error", &apiStatusError{Code: http.StatusBadGateway}, true},
		{"request timeout", &apiStatusError{Code: http.StatusRequestTimeout}, true},
		{"too many requests", &apiStatusError{Code: http.StatusTooManyRequests}, true},
		{"bad request", &apiStatusError{Code: http.StatusBadRequest}, false},
		{"forbidden", &apiStatusError{Code: http.StatusForbidden}, false},
		{"dimension mismatch", fmt.Errorf("%w: got 3, want 4", ErrDimensionMismatch), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryable(tt.err))
		})
	}
}
