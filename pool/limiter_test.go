package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterCapsInFlight(t *testing.T) {
	l := NewLimiter(2, 0, 0)
	ctx := context.Background()

	rel1, err := l.Acquire(ctx)
	require.NoError(t, err)
	rel2, err := l.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, l.InFlight())

	acquired := make(chan struct{})
	go func() {
		rel3, err := l.Acquire(ctx)
		require.NoError(t, err)
		close(acquired)
		rel3()
	}()

	select {
	case <-acquired:
		t.Fatal("third acquire should block while two permits are held")
	case <-time.After(50 * time.Millisecond):
	}

	rel1()
	<-acquired
	rel2()
}

func TestLimiterAcquireCancelledRemovesWaiter(t *testing.T) {
	l := NewLimiter(1, 0, 0)
	rel, err := l.Acquire(context.Background())
	require.NoError(t, err)
	defer rel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx)
	assert.Error(t, err)
	assert.Equal(t, 1, l.InFlight())
}

func TestLimiterTokenBucketThrottles(t *testing.T) {
	l := NewLimiter(0, 2, 100*time.Millisecond)
	ctx := context.Background()

	var admitted int32
	start := time.Now()
	for i := 0; i < 4; i++ {
		rel, err := l.Acquire(ctx)
		require.NoError(t, err)
		atomic.AddInt32(&admitted, 1)
		rel()
	}
	elapsed := time.Since(start)
	assert.Equal(t, int32(4), atomic.LoadInt32(&admitted))
	assert.GreaterOrEqual(t, elapsed, 90*time.Millisecond)
}

func TestLimiterNoLimitsNeverBlocks(t *testing.T) {
	l := NewLimiter(0, 0, 0)
	for i := 0; i < 100; i++ {
		rel, err := l.Acquire(context.Background())
		require.NoError(t, err)
		rel()
	}
	assert.Equal(t, 0, l.InFlight())
}
