package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutePacing(t *testing.T) {
	limiter := New(50*time.Millisecond, 0, 2)
	ctx := context.Background()

	var starts []time.Time
	for i := 0; i < 3; i++ {
		err := limiter.Execute(ctx, func() error {
			starts = append(starts, time.Now())
			return nil
		})
		require.NoError(t, err)
	}

	require.Len(t, starts, 3)
	for i := 1; i < len(starts); i++ {
		gap := starts[i].Sub(starts[i-1])
		assert.GreaterOrEqual(t, gap, 45*time.Millisecond, "gap %d too short: %v", i, gap)
	}
}

func TestExecuteRetriesThenPropagates(t *testing.T) {
	limiter := New(time.Millisecond, 2, 1)
	errFetch := errors.New("upstream unavailable")

	calls := 0
	err := limiter.Execute(context.Background(), func() error {
		calls++
		return errFetch
	})
	assert.Equal(t, 3, calls) // initial attempt plus two retries
	assert.Equal(t, errFetch, err)
}

func TestExecuteSucceedsAfterRetry(t *testing.T) {
	limiter := New(time.Millisecond, 3, 1)

	calls := 0
	err := limiter.Execute(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecuteBackoffGrowth(t *testing.T) {
	limiter := New(10*time.Millisecond, 3, 2)
	assert.Equal(t, 10*time.Millisecond, limiter.backoffDelay(0))
	assert.Equal(t, 20*time.Millisecond, limiter.backoffDelay(1))
	assert.Equal(t, 40*time.Millisecond, limiter.backoffDelay(2))
}

func TestExecuteContextCancellation(t *testing.T) {
	limiter := New(time.Hour, 0, 2)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, limiter.Execute(ctx, func() error { return nil }))

	// second call would wait an hour for the pacer; cancel instead
	done := make(chan error, 1)
	go func() {
		done <- limiter.Execute(ctx, func() error { return nil })
	}()
	cancel()
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Execute did not return after cancellation")
	}
}

func TestExecuteQueuedSerializes(t *testing.T) {
	limiter := New(30*time.Millisecond, 0, 2)
	ctx := context.Background()

	var mu sync.Mutex
	var starts []time.Time
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = limiter.ExecuteQueued(ctx, func() error {
				mu.Lock()
				starts = append(starts, time.Now())
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	require.Len(t, starts, 4)
	for i := 1; i < len(starts); i++ {
		gap := starts[i].Sub(starts[i-1])
		assert.GreaterOrEqual(t, gap, 25*time.Millisecond, "gap %d too short: %v", i, gap)
	}
}
