package orchestrator

import "context"

// DefaultWorkers bounds how many asynchronous tool and sub-agent executions
// run concurrently across all runs in the process.
const DefaultWorkers = 16

// WorkerPool is a counting semaphore shared by every run's TaskManager.
// Launched tasks queue for a slot before executing; queued tasks still count
// as pending for the run that launched them.
type WorkerPool struct {
	slots chan struct{}
}

// NewWorkerPool creates a pool with the given number of slots, or
// DefaultWorkers when size is not positive.
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = DefaultWorkers
	}
	return &WorkerPool{slots: make(chan struct{}, size)}
}

// acquire blocks until a slot is free or ctx is cancelled. The caller must
// call release exactly when acquire returned true.
func (p *WorkerPool) acquire(ctx context.Context) bool {
	select {
	case p.slots <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *WorkerPool) release() {
	<-p.slots
}
