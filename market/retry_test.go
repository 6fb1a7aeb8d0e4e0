package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// zeroDelayPolicy 记录退避次数且不实际等待
func zeroDelayPolicy(maxAttempts int, delays *int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		Delay:       10 * time.Second,
		Backoff: func(attempt int, base time.Duration) time.Duration {
			*delays++
			return 0
		},
	}
}

func TestRetrySucceedsAfterTwoFailures(t *testing.T) {
	delays := 0
	policy := zeroDelayPolicy(3, &delays)

	calls := 0
	err := policy.Do(context.Background(), "flaky op", func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, delays, "two failures incur exactly two delays")
}

func TestRetryExhaustionReportsAttemptCount(t *testing.T) {
	delays := 0
	policy := zeroDelayPolicy(3, &delays)

	calls := 0
	boom := errors.New("boom")
	err := policy.Do(context.Background(), "doomed op", func() error {
		calls++
		return boom
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "3 attempts")
	assert.Contains(t, err.Error(), "doomed op")
	assert.ErrorIs(t, err, boom)
}

func TestRetrySuccessShortCircuits(t *testing.T) {
	delays := 0
	policy := zeroDelayPolicy(3, &delays)

	calls := 0
	err := policy.Do(context.Background(), "ok op", func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, delays)
}

func TestRetryZeroMaxAttemptsStillRunsOnce(t *testing.T) {
	for _, max := range []int{0, 1, -1} {
		calls := 0
		policy := RetryPolicy{MaxAttempts: max}
		err := policy.Do(context.Background(), "op", func() error {
			calls++
			return errors.New("fail")
		})
		require.Error(t, err, "max=%d", max)
		assert.Equal(t, 1, calls, "max=%d", max)
		assert.Contains(t, err.Error(), "1 attempts")
	}
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	policy := RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond}
	err := policy.Do(ctx, "slow op", func() error {
		return errors.New("fail")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	// 取消路径同样携带操作名与尝试次数
	assert.Contains(t, err.Error(), "slow op")
	assert.Contains(t, err.Error(), "1 attempts")
}

func TestRetryValue(t *testing.T) {
	delays := 0
	policy := zeroDelayPolicy(3, &delays)

	calls := 0
	v, err := RetryValue(context.Background(), policy, "fetch", func() (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, delays)
}
