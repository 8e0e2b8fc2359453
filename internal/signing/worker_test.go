package signing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWorkerPoolRunsSubmittedWork(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := NewWorkerPool(4, zap.NewNop())
	pool.Start(ctx, 2)

	value, err := pool.Submit(ctx, func() (any, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, value)
}

func TestWorkerPoolPropagatesErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := NewWorkerPool(4, zap.NewNop())
	pool.Start(ctx, 1)

	boom := errors.New("boom")
	_, err := pool.Submit(ctx, func() (any, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := NewWorkerPool(16, zap.NewNop())
	pool.Start(ctx, 2)

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pool.Submit(ctx, func() (any, error) {
				now := running.Add(1)
				for {
					old := peak.Load()
					if now <= old || peak.CompareAndSwap(old, now) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				running.Add(-1)
				return nil, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestWorkerPoolSubmitAfterShutdownBlocksUntilCallerGivesUp(t *testing.T) {
	poolCtx, cancelPool := context.WithCancel(context.Background())
	pool := NewWorkerPool(4, zap.NewNop())
	pool.Start(poolCtx, 1)

	cancelPool()
	pool.Wait()

	// With no workers left, a submission only returns through its own
	// context. Shutdown order must drain callers before the pool.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := pool.Submit(ctx, func() (any, error) { return nil, nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWorkerPoolSubmitHonorsCancellation(t *testing.T) {
	poolCtx, cancelPool := context.WithCancel(context.Background())
	defer cancelPool()

	pool := NewWorkerPool(1, zap.NewNop())
	pool.Start(poolCtx, 1)

	// Occupy the single worker.
	release := make(chan struct{})
	go pool.Submit(poolCtx, func() (any, error) {
		<-release
		return nil, nil
	})
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := pool.Submit(ctx, func() (any, error) {
		<-release
		return nil, nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}
