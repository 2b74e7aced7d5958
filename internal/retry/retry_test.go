package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordingPolicy(delays *[]time.Duration) Policy {
	p := Default()
	p.Sleep = func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
	return p
}

func TestDoSucceedsOnThirdAttempt(t *testing.T) {
	var delays []time.Duration
	p := recordingPolicy(&delays)

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
}

func TestDoReturnsLastError(t *testing.T) {
	var delays []time.Duration
	p := recordingPolicy(&delays)

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("attempt failed")
	})

	require.EqualError(t, err, "attempt failed")
	assert.Equal(t, 3, calls)
	assert.Len(t, delays, 2)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	var delays []time.Duration
	p := recordingPolicy(&delays)
	fatal := errors.New("invalid api key")
	p.Retryable = func(err error) bool { return !errors.Is(err, fatal) }

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return fatal
	})

	require.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)
}

func TestDoStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := Default()
	p.InitialDelay = time.Hour

	calls := 0
	err := p.Do(ctx, func(context.Context) error {
		calls++
		return errors.New("timeout")
	})

	require.EqualError(t, err, "timeout")
	assert.Equal(t, 1, calls)
}

func TestOnRetryReportsAttempts(t *testing.T) {
	var delays []time.Duration
	p := recordingPolicy(&delays)

	var attempts []int
	p.OnRetry = func(attempt int, _ time.Duration, _ error) {
		attempts = append(attempts, attempt)
	}

	_ = p.Do(context.Background(), func(context.Context) error { return errors.New("x") })
	assert.Equal(t, []int{1, 2}, attempts)
}
