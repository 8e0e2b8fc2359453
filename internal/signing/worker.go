package signing

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type task struct {
	run  func() (any, error)
	done chan taskResult
}

type taskResult struct {
	value any
	err   error
}

// WorkerPool bounds the number of CPU-heavy signing passes running at
// once so request handling stays responsive. Submit hands a unit of
// work to the pool and blocks until it finishes.
type WorkerPool struct {
	tasks   chan task
	wg      sync.WaitGroup
	logger  *zap.Logger
	started bool
	mu      sync.Mutex
}

// NewWorkerPool creates a pool with the given queue depth. Call Start
// before submitting.
func NewWorkerPool(queueSize int, logger *zap.Logger) *WorkerPool {
	if queueSize <= 0 {
		queueSize = 16
	}
	return &WorkerPool{
		tasks:  make(chan task, queueSize),
		logger: logger,
	}
}

// Start launches the workers. They drain the queue until ctx is
// cancelled, then finish in-flight work and exit.
func (p *WorkerPool) Start(ctx context.Context, workers int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	if workers <= 0 {
		workers = 4
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.logger.Info("Signing worker pool started", zap.Int("workers", workers))
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-p.tasks:
			value, err := t.run()
			t.done <- taskResult{value: value, err: err}
		}
	}
}

// Submit enqueues fn and waits for its result. Returns the context's
// error if it is cancelled before a worker picks the task up or while
// waiting on the result.
func (p *WorkerPool) Submit(ctx context.Context, fn func() (any, error)) (any, error) {
	t := task{run: fn, done: make(chan taskResult, 1)}

	select {
	case p.tasks <- t:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-t.done:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Wait blocks until every worker has exited. Call after cancelling the
// context passed to Start.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}
