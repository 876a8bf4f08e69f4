package queue

import (
	"context"
	"sync"

	"github.com/roach88/opqueue/internal/op"
)

// Future is the eventual outcome of an operation admitted with
// QueueOperationAsync.
type Future struct {
	id      op.OperationID
	done    chan struct{}
	once    sync.Once
	outcome op.Outcome
}

func newFuture(id op.OperationID) *Future {
	return &Future{id: id, done: make(chan struct{})}
}

// ID returns the operation id.
func (f *Future) ID() op.OperationID {
	return f.id
}

// Done is closed once the outcome is known.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Outcome returns the outcome without blocking. The boolean is false while
// the operation is unresolved.
func (f *Future) Outcome() (op.Outcome, bool) {
	select {
	case <-f.done:
		return f.outcome, true
	default:
		return op.Outcome{}, false
	}
}

// Wait blocks until the outcome is known or ctx is done.
//
// The error is the *op.ExecutionError of a failed operation, or ctx.Err().
// Aborted and deferred outcomes are not errors.
func (f *Future) Wait(ctx context.Context) (op.Outcome, error) {
	select {
	case <-ctx.Done():
		return op.Outcome{}, ctx.Err()
	case <-f.done:
	}
	if f.outcome.Kind == op.OutcomeFailed {
		return f.outcome, f.outcome.Err
	}
	return f.outcome, nil
}

func (f *Future) resolve(o op.Outcome) {
	f.once.Do(func() {
		f.outcome = o
		close(f.done)
	})
}
