package exchange

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/alexanderselivanov/botfleet/pkg/logger"
)

// RetryConfig configures retry behaviour for venue calls.
type RetryConfig struct {
	MaxAttempts int           // Total attempts including the first
	BaseDelay   time.Duration // First backoff, jittered up to 2x
	MaxDelay    time.Duration // Backoff ceiling
	Multiplier  float64       // Exponential growth factor
}

// DefaultRetryConfig returns the standard policy: three attempts with
// a jittered 1-2s first delay doubling each retry.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    8 * time.Second,
		Multiplier:  2.0,
	}
}

// IsRetryable reports whether the error looks transient: network
// trouble, timeouts, rate limits and venue-side internal errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "temporary failure") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "service unavailable") {
		return true
	}

	// Binance transient codes: internal error and recvWindow drift
	if strings.Contains(errStr, "-1001") || strings.Contains(errStr, "-1021") {
		return true
	}

	return false
}

// WithRetry runs op with exponential backoff; non-retryable errors and
// context cancellation abort immediately.
func WithRetry(ctx context.Context, name string, cfg RetryConfig, op func() error) error {
	var lastErr error
	delay := cfg.BaseDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s cancelled: %w", name, ctx.Err())
		default:
		}

		err := op()
		if err == nil {
			if attempt > 1 {
				logger.Info("operation succeeded after retry",
					zap.String("operation", name),
					zap.Int("attempt", attempt),
				)
			}
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		// Jitter spreads concurrent bots over [delay, 2*delay)
		sleep := delay + time.Duration(rand.Int63n(int64(delay)))
		logger.Warn("operation failed, retrying",
			zap.String("operation", name),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", cfg.MaxAttempts),
			zap.Duration("backoff", sleep),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s cancelled during backoff: %w", name, ctx.Err())
		case <-time.After(sleep):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", name, cfg.MaxAttempts, lastErr)
}
