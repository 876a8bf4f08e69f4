package op

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	allowed := [][2]State{
		{StatePending, StateBatchHeld},
		{StatePending, StateQueued},
		{StatePending, StateAborted},
		{StatePending, StateFailed},
		{StateBatchHeld, StatePending},
		{StateBatchHeld, StateAborted},
		{StateQueued, StateRunning},
		{StateQueued, StateAborted},
		{StateRunning, StateCompleted},
		{StateRunning, StateAborted},
		{StateRunning, StateFailed},
	}
	for _, tr := range allowed {
		assert.True(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}

	denied := [][2]State{
		{StateQueued, StatePending},
		{StateRunning, StateQueued},
		{StateCompleted, StateQueued},
		{StateAborted, StatePending},
		{StateFailed, StateRunning},
		{StateBatchHeld, StateRunning},
	}
	for _, tr := range denied {
		assert.False(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}
}

func TestState_TerminalAndLive(t *testing.T) {
	for _, s := range []State{StateCompleted, StateAborted, StateFailed} {
		assert.True(t, s.IsTerminal())
		assert.False(t, s.IsLive())
	}
	for _, s := range []State{StatePending, StateBatchHeld, StateQueued, StateRunning} {
		assert.False(t, s.IsTerminal())
		assert.True(t, s.IsLive())
	}
}

func TestIsCancellation(t *testing.T) {
	cause := &CancelledError{Reason: ReasonObsoleted, ObsoletedBy: 7}

	assert.True(t, IsCancellation(cause))
	assert.True(t, IsCancellation(fmt.Errorf("layout: %w", cause)))
	assert.True(t, IsCancellation(context.Canceled))
	assert.True(t, IsCancellation(ErrCancelled))
	assert.False(t, IsCancellation(nil))
	assert.False(t, IsCancellation(errors.New("boom")))
	assert.False(t, IsCancellation(context.DeadlineExceeded))
}

func TestCancelledError_Message(t *testing.T) {
	assert.Equal(t, "operation cancelled: manual", (&CancelledError{Reason: ReasonManual}).Error())
	assert.Equal(t, "operation cancelled", (&CancelledError{}).Error())
}

func TestExecutionError_Unwrap(t *testing.T) {
	inner := errors.New("mesh missing")
	err := fmt.Errorf("wrapped: %w", &ExecutionError{OperationID: 4, Category: DataAdd, Description: "load", Err: inner})

	assert.True(t, IsExecutionError(err))
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), `operation 4 (data-add, "load") failed: mesh missing`)
	assert.False(t, IsExecutionError(inner))
}

func TestOutcome_State(t *testing.T) {
	assert.Equal(t, StateCompleted, Outcome{Kind: OutcomeCompleted}.State())
	assert.Equal(t, StateAborted, Outcome{Kind: OutcomeAborted}.State())
	assert.Equal(t, StateFailed, Outcome{Kind: OutcomeFailed}.State())
	assert.Equal(t, State(""), Outcome{Kind: OutcomeDeferred}.State())
	assert.Equal(t, "deferred", OutcomeDeferred.String())
}
