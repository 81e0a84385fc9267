package core

import (
	"context"
	"sync"
)

// TrackerHandle owns the single tracker of a page. The first Get starts
// construction; every caller then shares the in-flight or finished result.
// A failed construction is final.
type TrackerHandle struct {
	deps TrackerDeps

	mu      sync.Mutex
	pending *construction
}

type construction struct {
	done    chan struct{}
	tracker *Tracker
	err     error
}

// NewTrackerHandle returns a handle that builds its tracker from deps.
func NewTrackerHandle(deps TrackerDeps) *TrackerHandle {
	return &TrackerHandle{deps: deps}
}

// Get returns the page tracker once the owning tab and window are known.
// Cancelling ctx abandons the wait but not the construction.
func (h *TrackerHandle) Get(ctx context.Context) (*Tracker, error) {
	h.mu.Lock()
	c := h.pending
	if c == nil {
		c = &construction{done: make(chan struct{})}
		h.pending = c
		go h.construct(context.WithoutCancel(ctx), c)
	}
	h.mu.Unlock()

	select {
	case <-c.done:
		return c.tracker, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ready returns the tracker without waiting; nil until construction succeeds.
func (h *TrackerHandle) Ready() *Tracker {
	h.mu.Lock()
	c := h.pending
	h.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.done:
		return c.tracker
	default:
		return nil
	}
}

// Reset drops the constructed tracker. Only use in tests.
func (h *TrackerHandle) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending = nil
}

func (h *TrackerHandle) construct(ctx context.Context, c *construction) {
	c.tracker, c.err = newTracker(ctx, h.deps)
	close(c.done)
}
