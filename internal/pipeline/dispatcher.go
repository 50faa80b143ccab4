package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/orefield/specharvest/internal/specs"
)

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   specs.Queue
	workers []*Worker
	cancels *CancelRegistry
}

// NewDispatcher creates a Dispatcher over the given workers. The registry
// may be nil when run cancellation is not needed.
func NewDispatcher(queue specs.Queue, workers []*Worker, cancels *CancelRegistry) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
		cancels: cancels,
	}
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Cancel aborts an in-flight run, reporting whether one was found.
func (d *Dispatcher) Cancel(runID string) bool {
	if d.cancels == nil {
		return false
	}
	return d.cancels.Cancel(runID)
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item specs.WorkItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
