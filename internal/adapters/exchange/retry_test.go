package exchange

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2.0,
	}
}

func TestWithRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds first try", func(t *testing.T) {
		calls := 0
		err := WithRetry(ctx, "op", fastRetryConfig(), func() error {
			calls++
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})

	t.Run("retries transient errors", func(t *testing.T) {
		calls := 0
		err := WithRetry(ctx, "op", fastRetryConfig(), func() error {
			calls++
			if calls < 3 {
				return errors.New("connection reset by peer")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls != 3 {
			t.Errorf("expected 3 calls, got %d", calls)
		}
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		transient := errors.New("request timeout")
		err := WithRetry(ctx, "op", fastRetryConfig(), func() error {
			calls++
			return transient
		})
		if err == nil {
			t.Fatal("expected error after exhaustion")
		}
		if !errors.Is(err, transient) {
			t.Errorf("expected wrapped original error, got %v", err)
		}
		if calls != 3 {
			t.Errorf("expected 3 calls, got %d", calls)
		}
	})

	t.Run("non-retryable aborts immediately", func(t *testing.T) {
		calls := 0
		fatal := errors.New("invalid api key")
		err := WithRetry(ctx, "op", fastRetryConfig(), func() error {
			calls++
			return fatal
		})
		if !errors.Is(err, fatal) {
			t.Fatalf("expected original error, got %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call, got %d", calls)
		}
	})

	t.Run("cancelled context stops retries", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()

		err := WithRetry(cancelled, "op", fastRetryConfig(), func() error {
			return errors.New("timeout")
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("connection refused"), true},
		{errors.New("dial tcp: i/o timeout"), true},
		{errors.New("429 Too Many Requests"), true},
		{errors.New("rate limit exceeded"), true},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), true},
		{errors.New("<APIError> code=-1001, msg=internal error"), true},
		{errors.New("<APIError> code=-1021, msg=timestamp outside recvWindow"), true},
		{errors.New("<APIError> code=-2019, msg=margin is insufficient"), false},
		{errors.New("invalid symbol"), false},
	}

	for _, tc := range cases {
		name := "nil"
		if tc.err != nil {
			name = tc.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			if got := IsRetryable(tc.err); got != tc.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
