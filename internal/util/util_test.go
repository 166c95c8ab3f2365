package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewLoggerLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus", ""} {
		logger := NewLogger(level, "json")
		if logger == nil {
			t.Fatalf("NewLogger(%q) returned nil", level)
		}
	}
}

func TestNewLoggerFormats(t *testing.T) {
	for _, format := range []string{"json", "text", ""} {
		logger := NewLogger("info", format)
		if logger == nil {
			t.Fatalf("NewLogger with format %q returned nil", format)
		}
	}
}

func TestRetrySucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Retry returned error: %v", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	wantErr := errors.New("persistent failure")
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Retry returned %v, want %v", err, wantErr)
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3", calls)
	}
}

func TestRetryRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, 5, 50*time.Millisecond, func() error {
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Retry returned %v, want context.Canceled", err)
	}
}

func TestRateLimiterFirstTokenImmediate(t *testing.T) {
	rl := NewRateLimiter(60)

	start := time.Now()
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("first Wait took %v, want immediate", elapsed)
	}
}

func TestRateLimiterCancellation(t *testing.T) {
	rl := NewRateLimiter(1) // one token per minute

	// Consume the initial token.
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait returned %v, want context.DeadlineExceeded", err)
	}
}
