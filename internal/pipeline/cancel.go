package pipeline

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// CancelSignal reports whether a cancel was requested for a job. It is
// polled between stages and before each per-scene task.
type CancelSignal interface {
	IsCancelled(ctx context.Context, jobID uuid.UUID) bool
}

// CancelFlags is an in-process CancelSignal.
type CancelFlags struct {
	mu    sync.Mutex
	flags map[uuid.UUID]bool
}

func NewCancelFlags() *CancelFlags {
	return &CancelFlags{flags: make(map[uuid.UUID]bool)}
}

func (c *CancelFlags) Cancel(jobID uuid.UUID) {
	c.mu.Lock()
	c.flags[jobID] = true
	c.mu.Unlock()
}

func (c *CancelFlags) Clear(jobID uuid.UUID) {
	c.mu.Lock()
	delete(c.flags, jobID)
	c.mu.Unlock()
}

func (c *CancelFlags) IsCancelled(_ context.Context, jobID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flags[jobID]
}

// AnyCancel combines signals; a job is cancelled if any of them says so.
type AnyCancel []CancelSignal

func (a AnyCancel) IsCancelled(ctx context.Context, jobID uuid.UUID) bool {
	for _, s := range a {
		if s != nil && s.IsCancelled(ctx, jobID) {
			return true
		}
	}
	return false
}
