package history

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
)

// RetryConfig controls how Connect waits for Postgres to come up
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig covers a database container that starts a few seconds after the bot
var DefaultRetryConfig = RetryConfig{
	MaxRetries: 5,
	BaseDelay:  250 * time.Millisecond,
	MaxDelay:   5 * time.Second,
}

// Connect opens the Postgres store, retrying transient connection failures
func Connect(ctx context.Context, dsn string, cfg RetryConfig) (*PostgresStore, error) {
	return connectWith(ctx, cfg, func() (*PostgresStore, error) {
		return NewPostgresStore(dsn)
	})
}

func connectWith(ctx context.Context, cfg RetryConfig, open func() (*PostgresStore, error)) (*PostgresStore, error) {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		store, err := open()
		if err == nil {
			return store, nil
		}
		lastErr = err

		// Bad credentials or a missing database will not fix themselves
		if !isRetryableError(err) {
			return nil, err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		select {
		case <-time.After(calculateBackoff(attempt, cfg.BaseDelay, cfg.MaxDelay)):
		case <-ctx.Done():
			return nil, fmt.Errorf("connection cancelled during retry: %w", ctx.Err())
		}
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", cfg.MaxRetries, lastErr)
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())

	for _, permanent := range []string{
		"password authentication failed",
		"does not exist",
		"permission denied",
		"invalid dsn",
	} {
		if strings.Contains(msg, permanent) {
			return false
		}
	}

	for _, transient := range []string{
		"connection refused",
		"connection reset",
		"no such host",
		"timeout",
		"deadline exceeded",
		"the database system is starting up",
		"too many clients",
		"eof",
	} {
		if strings.Contains(msg, transient) {
			return true
		}
	}

	return false
}

// calculateBackoff doubles the delay per attempt, caps it and applies 0.5x-1.5x jitter
func calculateBackoff(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	delay := time.Duration(math.Pow(2, float64(attempt))) * baseDelay
	if delay > maxDelay {
		delay = maxDelay
	}

	jitter := 0.5 + rand.Float64()
	return time.Duration(float64(delay) * jitter)
}
