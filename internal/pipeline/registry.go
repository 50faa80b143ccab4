package pipeline

import (
	"context"
	"sync"
)

// CancelRegistry maps in-flight run IDs to their cancel functions so a run
// can be aborted from outside the worker that owns it.
type CancelRegistry struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewCancelRegistry creates an empty registry.
func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{cancels: make(map[string]context.CancelFunc)}
}

func (r *CancelRegistry) register(runID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels[runID] = cancel
}

func (r *CancelRegistry) release(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancels, runID)
}

// Cancel aborts the run if it is currently being processed. It reports
// whether a matching in-flight run was found; queued or finished runs
// return false.
func (r *CancelRegistry) Cancel(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel, ok := r.cancels[runID]
	if !ok {
		return false
	}
	cancel()
	delete(r.cancels, runID)
	return true
}
