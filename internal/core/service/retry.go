package service

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotReady marks a collaborator that has not finished initializing.
// Operations wrapped in RetryPolicy.Do retry on it; everything else fails
// immediately (retrying a denied write will not succeed).
var ErrNotReady = errors.New("service not initialized")

// RetryPolicy is a bounded retry with linearly increasing delay: attempt n
// waits n*Step before the next try. After MaxAttempts the last error is
// returned wrapped, exactly once.
type RetryPolicy struct {
	MaxAttempts int
	Step        time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 4, Step: 250 * time.Millisecond}
}

func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if !errors.Is(err, ErrNotReady) {
			return err
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * p.Step):
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempts, err)
}
