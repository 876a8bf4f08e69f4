package queue

import (
	"context"
	"time"

	"github.com/juju/clock"

	"github.com/roach88/opqueue/internal/op"
)

// ExecuteFunc performs an operation's work.
//
// ctx is cancelled when the operation is obsoleted or cancelled; its cause
// is an *op.CancelledError. Returning ctx.Err(), context.Cause(ctx) or any
// error wrapping op.ErrCancelled marks the operation Aborted. Any other
// error marks it Failed.
type ExecuteFunc func(ctx context.Context, ec *ExecContext) (any, error)

// ExecContext is handed to a running ExecuteFunc.
type ExecContext struct {
	ID       op.OperationID
	Category op.Category
	Metadata op.Metadata
	Progress *ProgressContext
}

// operation is the scheduler's record of one admission. Fields other than
// state, progress and the bookkeeping flags are immutable after admission.
type operation struct {
	id       op.OperationID
	category op.Category
	execute  ExecuteFunc
	meta     op.Metadata

	ctx    context.Context
	cancel context.CancelCauseFunc

	state     op.State
	progress  op.ProgressRecord
	startedAt time.Time

	// cancelEmitted is set once the operation's token was fired by the
	// scheduler; obsoletedEmitted once an operation-obsoleted event went
	// out for it.
	cancelEmitted    bool
	obsoletedEmitted bool

	future  *Future
	cleanup clock.Timer
}

func (o *operation) candidate() op.Candidate {
	return op.Candidate{
		ID:       o.id,
		Category: o.category,
		State:    o.state,
		Progress: o.progress.Percent,
		Metadata: o.meta,
	}
}

func (o *operation) event(t op.EventType) op.Event {
	return op.Event{
		Type:         t,
		ID:           o.id,
		Category:     o.category,
		Description:  o.meta.Description,
		SkipTriggers: o.meta.SkipTriggers,
	}
}
