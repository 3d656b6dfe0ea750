package node

import (
	"context"
	"fmt"
	"time"
)

// retry runs fn up to attempts times, sleeping delay between tries. It
// generalizes the Java original's retryRemoteCall (3 attempts, 1s spacing)
// to the configurable forwarding-retry budget in spec.md §5 (default 15
// attempts, 1.5s spacing).
func retry(ctx context.Context, attempts int, delay time.Duration, fn func(ctx context.Context) error) error {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return fmt.Errorf("exhausted %d attempts: %w", attempts, lastErr)
}
