package service

import (
	"context"
	"sync"

	"github.com/timmy/pricebook/internal/logger"
)

// Runner executes jobs on background goroutines, one per job, detached from
// the request that submitted them.
type Runner struct {
	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
	closed  bool
}

// NewRunner creates a new Runner.
func NewRunner() *Runner {
	return &Runner{running: make(map[string]context.CancelFunc)}
}

// Submit starts fn for jobID. The goroutine keeps the logging fields of ctx
// but not its cancellation. Submitting a job that is already running, or
// submitting after Shutdown, is refused.
// Returns:
//   - bool: true if fn was started.
func (r *Runner) Submit(ctx context.Context, jobID string, fn func(ctx context.Context) error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	if _, ok := r.running[jobID]; ok {
		return false
	}

	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.running[jobID] = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.release(jobID)
		if err := fn(jobCtx); err != nil {
			logger.FromContext(jobCtx).WithField(logger.FieldJobID, jobID).
				WithError(err).Warn("Background job ended with error")
		}
	}()
	return true
}

func (r *Runner) release(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.running[jobID]; ok {
		cancel()
		delete(r.running, jobID)
	}
}

// Running reports whether jobID is executing in this process.
func (r *Runner) Running(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.running[jobID]
	return ok
}

// Wait blocks until every submitted job has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown refuses new jobs, cancels the running ones so they stop at their
// next batch boundary, and waits for them until ctx is done. Interrupted
// jobs stay resumable.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	for _, cancel := range r.running {
		cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
