package market

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy 重试策略：固定次数，固定间隔，可注入退避函数
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	// Backoff 计算第attempt次失败后的等待时间，nil时使用固定Delay
	Backoff func(attempt int, base time.Duration) time.Duration
}

// DefaultRetryPolicy 默认策略：3次尝试，每次失败后固定等待10秒
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	Delay:       10 * time.Second,
}

// Do 执行op，失败后按策略重试。MaxAttempts小于1时仍执行一次。
// 全部失败时返回包含尝试次数与最后一次错误的终态错误。
func (p RetryPolicy) Do(ctx context.Context, op string, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		zap.L().Warn("operation failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(lastErr))

		delay := p.Delay
		if p.Backoff != nil {
			delay = p.Backoff(attempt, p.Delay)
		}
		if delay > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s canceled after %d attempts: %w", op, attempt, ctx.Err())
			case <-time.After(delay):
			}
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", op, attempts, lastErr)
}

// RetryValue 对带返回值的调用应用重试策略
func RetryValue[T any](ctx context.Context, p RetryPolicy, op string, fn func() (T, error)) (T, error) {
	var result T
	err := p.Do(ctx, op, func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}
