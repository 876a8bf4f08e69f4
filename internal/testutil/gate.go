package testutil

import (
	"context"
	"sync"
)

// Gate blocks operations until it is opened.
type Gate struct {
	once sync.Once
	ch   chan struct{}
}

// NewGate creates a closed gate.
func NewGate() *Gate {
	return &Gate{ch: make(chan struct{})}
}

// Open releases every current and future waiter. Safe to call twice.
func (g *Gate) Open() {
	g.once.Do(func() { close(g.ch) })
}

// Wait blocks until the gate opens or ctx is done, in which case it
// returns context.Cause(ctx).
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.ch:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// Opened reports whether Open was called.
func (g *Gate) Opened() bool {
	select {
	case <-g.ch:
		return true
	default:
		return false
	}
}
