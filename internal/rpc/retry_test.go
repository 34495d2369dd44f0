package rpc

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goran-ethernal/staking-indexer/internal/common"
	"github.com/goran-ethernal/staking-indexer/internal/config"
)

// mockNetError implements net.Error for testing
type mockNetError struct {
	msg       string
	timeout   bool
	temporary bool
}

func (e *mockNetError) Error() string   { return e.msg }
func (e *mockNetError) Timeout() bool   { return e.timeout }
func (e *mockNetError) Temporary() bool { return e.temporary }

func TestRetryableError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{
			name:      "nil error",
			err:       nil,
			retryable: false,
		},
		{
			name:      "network timeout error",
			err:       &mockNetError{msg: "network timeout", timeout: true},
			retryable: true,
		},
		{
			name:      "connection refused",
			err:       syscall.ECONNREFUSED,
			retryable: true,
		},
		{
			name:      "connection reset",
			err:       syscall.ECONNRESET,
			retryable: true,
		},
		{
			name:      "broken pipe",
			err:       syscall.EPIPE,
			retryable: true,
		},
		{
			name:      "context deadline exceeded",
			err:       context.DeadlineExceeded,
			retryable: true,
		},
		{
			name:      "rate limit 429",
			err:       errors.New("HTTP 429"),
			retryable: true,
		},
		{
			name:      "too many requests",
			err:       errors.New("too many requests"),
			retryable: true,
		},
		{
			name:      "502 bad gateway",
			err:       errors.New("502 bad gateway"),
			retryable: true,
		},
		{
			name:      "503 service unavailable",
			err:       errors.New("503 Service Unavailable"),
			retryable: true,
		},
		{
			name:      "invalid parameter",
			err:       errors.New("invalid parameter"),
			retryable: false,
		},
		{
			name:      "execution reverted",
			err:       errors.New("execution reverted"),
			retryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, retryableError(tt.err))
		})
	}
}

func retryTestConfig() *config.RetryConfig {
	return &config.RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    common.NewDuration(time.Millisecond),
		MaxBackoff:        common.NewDuration(5 * time.Millisecond),
		BackoffMultiplier: 2.0,
	}
}

func TestRetryWithBackoff_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := retryWithBackoff(context.Background(), retryTestConfig(), "test_op", func() error {
		attempts++
		if attempts < 3 {
			return errors.New("503 service unavailable")
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_NonRetryableFailsImmediately(t *testing.T) {
	attempts := 0
	err := retryWithBackoff(context.Background(), retryTestConfig(), "test_op", func() error {
		attempts++
		return errors.New("execution reverted")
	})

	require.Error(t, err)
	require.Contains(t, err.Error(), "non-retryable")
	require.Equal(t, 1, attempts)
}

func TestRetryWithBackoff_ExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := retryWithBackoff(context.Background(), retryTestConfig(), "test_op", func() error {
		attempts++
		return errors.New("timeout")
	})

	require.Error(t, err)
	require.Contains(t, err.Error(), "all 3 attempts failed")
	require.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retryWithBackoff(ctx, retryTestConfig(), "test_op", func() error {
		t.Fatal("operation must not run with cancelled context")
		return nil
	})

	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRetryWithBackoff_NilConfigRunsOnce(t *testing.T) {
	attempts := 0
	err := retryWithBackoff(context.Background(), nil, "test_op", func() error {
		attempts++
		return errors.New("timeout")
	})

	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestCalculateBackoff(t *testing.T) {
	cfg := &config.RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    common.NewDuration(100 * time.Millisecond),
		MaxBackoff:        common.NewDuration(time.Second),
		BackoffMultiplier: 2.0,
	}

	// First attempt has no backoff
	require.Zero(t, calculateBackoff(1, cfg))

	// Later attempts grow exponentially but stay within jitter bounds and cap
	for attempt := 2; attempt <= 6; attempt++ {
		backoff := calculateBackoff(attempt, cfg)
		require.GreaterOrEqual(t, backoff, time.Duration(0))
		require.LessOrEqual(t, backoff, time.Duration(float64(cfg.MaxBackoff.Duration)*1.25))
	}
}
