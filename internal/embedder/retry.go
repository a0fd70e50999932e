package embedder

import (
	"context"
	"fmt"
	"time"
)

// defaultMaxRetries is the number of additional attempts after a failed
// embedding call. The upstream APIs are rate-limited, so a small bounded
// retry count with linear backoff covers the common transient failures
// without hiding a genuinely broken configuration.
const defaultMaxRetries = 3

// retryBackoff is the base delay between embedding attempts; attempt n waits
// n * retryBackoff.
const retryBackoff = 500 * time.Millisecond

// withRetries runs fn up to maxRetries+1 times, backing off linearly between
// attempts. The last error is returned if every attempt fails.
func withRetries(ctx context.Context, maxRetries int, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("cancelled: %w", ctx.Err())
			case <-time.After(time.Duration(attempt) * retryBackoff):
			}
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", maxRetries+1, lastErr)
}
