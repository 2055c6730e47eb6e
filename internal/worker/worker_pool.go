// ============================================================================
// frtrace Worker Pool - parallel frame decoding
// ============================================================================
//
// Package: internal/worker
// File: worker_pool.go
// Function: Manage the decode goroutines and fan frames out to them
//
// Architecture:
//   ┌─────────────┐
//   │  Pipeline   │ --Submit()--> taskCh
//   └─────────────┘
//         ↑
//   ReceiveResult()
//         ↑
//   ┌─────────────┐
//   │   Pool      │
//   │  ┌────────┐ │
//   │  │Worker 1│←── taskCh
//   │  │Worker 2│←── taskCh   ──→ resultCh
//   │  │Worker 3│←── taskCh
//   │  └────────┘ │
//   └─────────────┘
//
// Lifecycle:
//   1. NewPool() - create channels
//   2. Start(n) - start n workers
//   3. Submit(ctx, task) / ReceiveResult(ctx) - usually from two goroutines
//   4. Stop() - close taskCh, wait for workers, close resultCh
//
// Ordering:
//   Results arrive in completion order. Every Result carries the Index of
//   its Task; callers restore submission order themselves (see Collect).
//
// Shutdown:
//   Submit holds closeMu for reading while it sends, Stop takes it for
//   writing before closing taskCh, so a send never races the close.
//
// ============================================================================

package worker

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrPoolClosed indicates the pool is stopped
	ErrPoolClosed = errors.New("worker: pool is closed")
	// ErrPoolNotStarted indicates Start was not called
	ErrPoolNotStarted = errors.New("worker: pool not started")
	// ErrPoolStarted indicates Start was called twice
	ErrPoolStarted = errors.New("worker: pool already started")
)

// Pool runs a fixed set of workers over a shared task channel.
type Pool struct {
	handle   Handler
	workers  []*Worker     // Started workers
	taskCh   chan Task     // Task distribution
	resultCh chan Result   // Result collection
	stopCh   chan struct{} // Closed by Stop
	wg       sync.WaitGroup
	closeMu  sync.RWMutex // Held for reading by in-flight sends
	started  bool
	stopped  bool
	mu       sync.Mutex // Guards started, stopped and workers
}

// NewPool creates a pool whose channels buffer bufferSize items. A nil
// handler decodes frames with Decode.
func NewPool(bufferSize int, handle Handler) *Pool {
	if bufferSize < 0 {
		bufferSize = 0
	}
	if handle == nil {
		handle = Decode
	}
	return &Pool{
		handle:   handle,
		taskCh:   make(chan Task, bufferSize),
		resultCh: make(chan Result, bufferSize),
		stopCh:   make(chan struct{}),
	}
}

// Start launches workerCount workers.
func (p *Pool) Start(workerCount int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrPoolStarted
	}
	if workerCount < 1 {
		workerCount = 1
	}

	for i := 0; i < workerCount; i++ {
		w := newWorker(i, p.handle, p.taskCh, p.resultCh, p.stopCh)
		p.workers = append(p.workers, w)

		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run()
		}(w)
	}

	p.started = true
	return nil
}

// Submit queues a task. It blocks while taskCh is full.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrPoolNotStarted
	}
	p.mu.Unlock()

	p.closeMu.RLock()
	defer p.closeMu.RUnlock()

	select {
	case <-p.stopCh:
		return ErrPoolClosed
	default:
	}

	select {
	case p.taskCh <- task:
		return nil
	case <-p.stopCh:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReceiveResult waits for the next result.
func (p *Pool) ReceiveResult(ctx context.Context) (Result, error) {
	select {
	case result, ok := <-p.resultCh:
		if !ok {
			return Result{}, ErrPoolClosed
		}
		return result, nil
	case <-p.stopCh:
		return Result{}, ErrPoolClosed
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Stop shuts the pool down and waits for the workers. Pending results are
// discarded. It is safe to call more than once.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	close(p.stopCh)

	p.closeMu.Lock()
	close(p.taskCh)
	p.closeMu.Unlock()

	p.wg.Wait()
	close(p.resultCh)
}

// WorkerCount returns the number of started workers.
func (p *Pool) WorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// IsStarted reports whether Start succeeded.
func (p *Pool) IsStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// Handled returns how many tasks each worker processed. It is only
// meaningful after Stop.
func (p *Pool) Handled() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int, len(p.workers))
	for i, w := range p.workers {
		out[i] = w.done
	}
	return out
}

// Collect decodes tasks on a started pool and returns the results in task
// order. The pool is stopped before Collect returns.
func Collect(ctx context.Context, p *Pool, tasks []Task) ([]Result, error) {
	if !p.IsStarted() {
		return nil, ErrPoolNotStarted
	}
	defer p.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	submitErr := make(chan error, 1)
	go func() {
		for _, t := range tasks {
			if err := p.Submit(ctx, t); err != nil {
				submitErr <- err
				return
			}
		}
		submitErr <- nil
	}()

	out := make([]Result, len(tasks))
	for range tasks {
		r, err := p.ReceiveResult(ctx)
		if err != nil {
			return nil, err
		}
		if r.Index < 0 || r.Index >= len(out) {
			continue
		}
		out[r.Index] = r
	}

	if err := <-submitErr; err != nil {
		return nil, err
	}
	return out, nil
}
