package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_FirstNDoNotBlock(t *testing.T) {
	l := New(5, time.Second)

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.True(t, l.Acquire(context.Background(), 0))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, 5, l.InFlight())
}

func TestAcquire_NextBlocksUntilOldestLeavesWindow(t *testing.T) {
	window := 200 * time.Millisecond
	l := New(3, window)

	first := time.Now()
	for i := 0; i < 3; i++ {
		require.True(t, l.Acquire(context.Background(), 0))
	}

	require.True(t, l.Acquire(context.Background(), 0))
	assert.GreaterOrEqual(t, time.Since(first), window)
}

func TestAcquire_TimeoutReturnsFalse(t *testing.T) {
	l := New(1, time.Second)
	require.True(t, l.Acquire(context.Background(), 0))

	start := time.Now()
	granted := l.Acquire(context.Background(), 50*time.Millisecond)

	assert.False(t, granted)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, 1, l.InFlight())
}

func TestWait_ContextCancelled(t *testing.T) {
	l := New(1, time.Minute)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAcquire_ConcurrentCallersNeverExceedRate(t *testing.T) {
	window := 300 * time.Millisecond
	l := New(4, window)

	var granted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Acquire(context.Background(), window/2) {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	// Nobody can have been admitted beyond the first window's budget.
	assert.Equal(t, int32(4), granted.Load())
}

func TestNew_Defaults(t *testing.T) {
	l := New(0, 0)
	assert.Equal(t, 1, l.maxCalls)
	assert.Equal(t, time.Second, l.window)
}
