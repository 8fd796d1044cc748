package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/kbukum/dockerkit/errors"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialBackoff: time.Millisecond, Multiplier: 1.0}
}

func TestRetry_SucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	v, err := Retry(context.Background(), DefaultRetryConfig(), func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil || v != "ok" {
		t.Fatalf("expected ok, got %q, %v", v, err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetry_SucceedsAfterRetry(t *testing.T) {
	calls := 0
	v, err := Retry(context.Background(), fastRetry(3), func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("temporary")
		}
		return calls, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 3 {
		t.Errorf("expected 3, got %d", v)
	}
}

func TestRetry_ReturnsLastError(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastRetry(3), func(context.Context) (int, error) {
		calls++
		return 0, errors.New("still failing")
	})
	if err == nil || err.Error() != "still failing" {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetry_NonRetryableAppError(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastRetry(5), func(context.Context) (int, error) {
		calls++
		return 0, apperrors.InvalidCommand("")
	})
	if !apperrors.HasCode(err, apperrors.ErrCodeInvalidCommand) {
		t.Fatalf("expected INVALID_COMMAND, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected non-retryable error to stop after 1 call, got %d", calls)
	}
}

func TestRetry_RetryableAppError(t *testing.T) {
	calls := 0
	_, _ = Retry(context.Background(), fastRetry(3), func(context.Context) (int, error) {
		calls++
		return 0, apperrors.ServiceUnavailable("docker")
	})
	if calls != 3 {
		t.Errorf("expected 3 calls for retryable error, got %d", calls)
	}
}

func TestRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 5, InitialBackoff: time.Second}
	calls := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := Retry(ctx, cfg, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call before cancellation, got %d", calls)
	}
}

func TestRetry_OnRetry(t *testing.T) {
	var attempts []int
	cfg := fastRetry(3)
	cfg.OnRetry = func(attempt int, _ error, _ time.Duration) { attempts = append(attempts, attempt) }
	_ = RetryFunc(context.Background(), cfg, func(context.Context) error { return errors.New("x") })
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("expected OnRetry for attempts 1 and 2, got %v", attempts)
	}
}

func TestRetryConfig_Backoff(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 10 * time.Millisecond, MaxBackoff: 50 * time.Millisecond, Multiplier: 2}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 10 * time.Millisecond},
		{2, 20 * time.Millisecond},
		{3, 40 * time.Millisecond},
		{4, 50 * time.Millisecond},
	}
	for _, tc := range tests {
		if got := cfg.Backoff(tc.attempt); got != tc.want {
			t.Errorf("Backoff(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestRetryConfig_BackoffJitterBounds(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, Multiplier: 1, Jitter: 0.5}
	for i := 0; i < 50; i++ {
		got := cfg.Backoff(1)
		if got < 50*time.Millisecond || got > 150*time.Millisecond {
			t.Fatalf("backoff %v outside jitter bounds", got)
		}
	}
}
