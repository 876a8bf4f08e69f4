package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/opqueue/internal/op"
)

func TestRecorder_FiltersByType(t *testing.T) {
	r := NewRecorder()
	r.OnEvent(op.Event{Type: op.EventStart, ID: 1, Category: op.StyleInit})
	r.OnEvent(op.Event{Type: op.EventComplete, ID: 1})
	r.OnEvent(op.Event{Type: op.EventStart, ID: 2, Category: op.DataAdd})

	assert.Len(t, r.Events(), 3)
	assert.Equal(t, []op.OperationID{1, 2}, r.IDs(op.EventStart))
	assert.Equal(t, []op.Category{op.StyleInit, op.DataAdd}, r.StartOrder())
	assert.True(t, r.Has(op.EventComplete, 1))
	assert.False(t, r.Has(op.EventComplete, 2))

	r.Reset()
	assert.Empty(t, r.Events())
}

func TestRecorder_WaitForEvent(t *testing.T) {
	r := NewRecorder()
	go r.OnEvent(op.Event{Type: op.EventQueueIdle, ID: 0})
	r.WaitForEvent(t, op.EventQueueIdle, 0)
}

func TestGate_OpenReleasesWaiters(t *testing.T) {
	g := NewGate()
	assert.False(t, g.Opened())

	done := make(chan error, 1)
	go func() { done <- g.Wait(context.Background()) }()

	g.Open()
	g.Open()
	require.NoError(t, <-done)
	assert.True(t, g.Opened())
}

func TestGate_WaitReturnsCause(t *testing.T) {
	g := NewGate()
	ctx, cancel := context.WithCancelCause(context.Background())
	cause := &op.CancelledError{Reason: op.ReasonManual}
	cancel(cause)

	err := g.Wait(ctx)
	assert.Same(t, cause, err)
}
