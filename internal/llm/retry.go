// Package llm holds the HTTP adapters for the external model services:
// embeddings, reranking, and chat completion. All adapters share the
// same bounded retry policy and degrade per the retrieval pipeline's
// failure rules instead of failing the whole query.
package llm

import (
	"context"
	"time"
)

const (
	defaultRetryAttempts = 3
	defaultRetryBase     = 500 * time.Millisecond
)

// withRetry runs fn up to attempts times with exponential backoff,
// honoring context cancellation between tries.
func withRetry(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}

		delay := base << uint(i)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
