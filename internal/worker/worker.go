// ============================================================================
// frtrace Decode Worker - frame decoding unit
// ============================================================================
//
// Package: internal/worker
// File: worker.go
// Function: One goroutine of the pool. Reads tasks, applies the handler and
//           reports every result.
//
// Execution Model:
//   ┌─────────────────────────────────────┐
//   │  Worker Goroutine                   │
//   │  ┌──────────────────────────────┐   │
//   │  │ for task := range taskCh     │   │
//   │  │   ├─ handle(task)            │   │
//   │  │   └─ send result to resultCh │   │
//   │  └──────────────────────────────┘   │
//   └─────────────────────────────────────┘
//
// Results are never dropped: the send blocks until the consumer reads it or
// the pool is stopped. Decoding is stateless per frame, so workers share
// nothing but the channels.
//
// ============================================================================

package worker

import (
	"github.com/ChuLiYu/frtrace/internal/schema"
	"github.com/ChuLiYu/frtrace/internal/storage/capture"
)

// Worker represents a decode execution unit
type Worker struct {
	id       int           // Worker identifier, used for logging
	handle   Handler       // Per-task work
	taskCh   <-chan Task   // Task channel (read-only)
	resultCh chan<- Result // Result channel (write-only)
	stopCh   <-chan struct{}
	done     int // Tasks handled, read after the worker exits
}

func newWorker(id int, handle Handler, taskCh <-chan Task, resultCh chan<- Result, stopCh <-chan struct{}) *Worker {
	return &Worker{
		id:       id,
		handle:   handle,
		taskCh:   taskCh,
		resultCh: resultCh,
		stopCh:   stopCh,
	}
}

// Run is the main loop of the worker. It returns when taskCh is closed.
func (w *Worker) Run() {
	for task := range w.taskCh {
		result := w.handle(task)
		w.done++

		select {
		case w.resultCh <- result:
		case <-w.stopCh:
			// Pool stopped while the consumer was gone; keep draining
			// taskCh so Stop can finish.
		}
	}
}

// Decode de-stuffs and parses one frame. A frame whose stuffing chain is
// broken yields a *capture.FrameError; a payload that does not parse yields
// the schema error.
func Decode(task Task) Result {
	payload, err := capture.Unstuff(task.Frame.Data)
	if err != nil {
		return Result{
			Index: task.Index,
			Err: &capture.FrameError{
				Index:  task.Frame.Index,
				Offset: task.Frame.Offset,
				Cause:  err,
			},
		}
	}

	ev, err := schema.Parse(payload)
	return Result{Index: task.Index, Event: ev, Err: err}
}
