package scheduler

import (
	"context"
	"sync"
)

// Gate is the scheduler's global run-gate: a two-state
// open|closed primitive with a block-until-open wait. It implements
// worker.Gate. The zero value is closed; use NewGate for an open gate.
type Gate struct {
	mu   sync.RWMutex
	open bool
	wake chan struct{}
}

// NewGate constructs a Gate in the open state.
func NewGate() *Gate {
	g := &Gate{open: true, wake: make(chan struct{})}
	close(g.wake)
	return g
}

// Open reports the gate's current state without blocking.
func (g *Gate) Open() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.open
}

// Wait blocks until the gate opens or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	for {
		g.mu.RLock()
		open := g.open
		wake := g.wake
		g.mu.RUnlock()
		if open {
			return nil
		}
		select {
		case <-wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// CloseGate transitions the gate closed, blocking subsequent Wait calls.
func (g *Gate) CloseGate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open {
		g.open = false
		g.wake = make(chan struct{})
	}
}

// OpenGate transitions the gate open, releasing any blocked Wait calls.
func (g *Gate) OpenGate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		g.open = true
		close(g.wake)
	}
}
