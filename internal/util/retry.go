package util

import (
	"context"
	"fmt"
	"time"
)

// DefaultBackoffBase is the first retry delay; each further attempt doubles it.
const DefaultBackoffBase = time.Second

// Backoff returns the delay before retry number attempt (0-indexed).
func Backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = DefaultBackoffBase
	}
	return base * time.Duration(1<<attempt)
}

// RetryWithBackoff calls fn up to maxRetries+1 times, sleeping Backoff(base, attempt)
// between attempts. fn receives the current attempt number (0-indexed).
// If the context is cancelled, RetryWithBackoff returns the context error immediately.
func RetryWithBackoff(ctx context.Context, maxRetries int, base time.Duration, fn func(attempt int) error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}

		if attempt == maxRetries {
			break
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(Backoff(base, attempt)):
		}
	}
	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}
