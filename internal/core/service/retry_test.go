package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_SucceedsBeforeLimit(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 4, Step: time.Millisecond}

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return ErrNotReady
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicy_ExhaustsAndReportsOnce(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, Step: time.Millisecond}

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return ErrNotReady
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicy_DoesNotRetryDeniedWrites(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, Step: time.Millisecond}
	denied := errors.New("permission denied")

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return denied
	})
	assert.ErrorIs(t, err, denied)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_HonorsContext(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 10, Step: 50 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := p.Do(ctx, func() error { return ErrNotReady })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryPolicy_LinearDelays(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, Step: 20 * time.Millisecond}

	start := time.Now()
	_ = p.Do(context.Background(), func() error { return ErrNotReady })
	elapsed := time.Since(start)

	// Delays are 1*step + 2*step between the three attempts.
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
}

func TestServices_Ready(t *testing.T) {
	s := NewServices()
	assert.ErrorIs(t, s.Ready(), ErrNotReady)

	_, err := s.Signals()
	assert.ErrorIs(t, err, ErrNotReady)
}
