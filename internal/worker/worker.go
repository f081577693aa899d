package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

var ErrPoolStopped = errors.New("worker pool stopped")

type Job any

type ProcessFunc func(ctx context.Context, job Job) error

type Stats struct {
	Workers   int   `json:"workers"`
	Queued    int   `json:"queued"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

// WorkerPool runs a fixed number of goroutines over a bounded queue. It is
// shared by every request, which caps CPU spent on scoring regardless of
// request concurrency.
type WorkerPool struct {
	numWorkers int
	jobs       chan Job
	processor  ProcessFunc
	wg         sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc

	processed atomic.Int64
	failed    atomic.Int64
}

func NewWorkerPool(numWorkers int, bufferSize int, processor ProcessFunc) *WorkerPool {
	return &WorkerPool{
		numWorkers: numWorkers,
		jobs:       make(chan Job, bufferSize),
		processor:  processor,
	}
}

func (wp *WorkerPool) Start(ctx context.Context) {
	wp.mu.Lock()
	wp.ctx, wp.cancel = context.WithCancel(ctx)
	ctx = wp.ctx
	wp.mu.Unlock()

	for i := 1; i <= wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-wp.jobs:
			if !ok {
				return
			}
			if err := wp.processor(ctx, job); err != nil {
				wp.failed.Add(1)
				slog.Debug("job failed", "worker", id, "error", err)
			}
			wp.processed.Add(1)
		}
	}
}

// Done is closed once the pool's workers are gone, either because the
// context passed to Start ended or because Stop returned. Callers waiting on
// job results select on it so they never wait on a pool that cannot answer.
func (wp *WorkerPool) Done() <-chan struct{} {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.ctx == nil {
		return nil
	}
	return wp.ctx.Done()
}

// Submit queues a job, blocking while the queue is full until ctx is done.
// It fails with ErrPoolStopped once the pool is stopped or its context ended.
func (wp *WorkerPool) Submit(ctx context.Context, job Job) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.stopped || (wp.ctx != nil && wp.ctx.Err() != nil) {
		return ErrPoolStopped
	}

	var poolDone <-chan struct{}
	if wp.ctx != nil {
		poolDone = wp.ctx.Done()
	}

	select {
	case wp.jobs <- job:
		return nil
	case <-poolDone:
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (wp *WorkerPool) Stats() Stats {
	return Stats{
		Workers:   wp.numWorkers,
		Queued:    len(wp.jobs),
		Processed: wp.processed.Load(),
		Failed:    wp.failed.Load(),
	}
}

func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if !wp.stopped {
		wp.stopped = true
		close(wp.jobs)
	}
	wp.mu.Unlock()
	wp.wg.Wait()

	if wp.cancel != nil {
		wp.cancel()
	}
}
