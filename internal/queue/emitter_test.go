package queue

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/opqueue/internal/op"
	"github.com/roach88/opqueue/internal/testutil"
)

func newTestEmitter() *emitter {
	return newEmitter(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestEmitter_EnqueueStampsSequence(t *testing.T) {
	q := newTestEmitter()

	require.True(t, q.Enqueue(op.Event{Type: op.EventStart, ID: 1}))
	require.True(t, q.Enqueue(op.Event{Type: op.EventComplete, ID: 1}))
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, int64(2), q.Seq())

	e, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, int64(1), e.Seq)
	assert.Equal(t, op.EventStart, e.Type)

	e, ok = q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, int64(2), e.Seq)

	_, ok = q.TryDequeue()
	assert.False(t, ok)
}

func TestEmitter_ClosedDropsEvents(t *testing.T) {
	q := newTestEmitter()
	q.Close()
	q.Close()

	assert.False(t, q.Enqueue(op.Event{Type: op.EventStart}))
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, int64(0), q.Seq())
}

func TestEmitter_RunDeliversInOrderAndDrains(t *testing.T) {
	q := newTestEmitter()
	rec := testutil.NewRecorder()
	q.Subscribe(rec)

	for i := 1; i <= 50; i++ {
		q.Enqueue(op.Event{Type: op.EventProgress, ID: op.OperationID(i)})
	}

	done := make(chan struct{})
	go func() {
		q.run()
		close(done)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), testutil.WaitTimeout)
	defer cancel()
	require.NoError(t, q.WaitDelivered(ctx, q.Seq()))

	q.Enqueue(op.Event{Type: op.EventQueueIdle})
	q.Close()
	<-done

	events := rec.Events()
	require.Len(t, events, 51)
	for i, e := range events {
		assert.Equal(t, int64(i+1), e.Seq)
	}
}

func TestEmitter_ObserverPanicDoesNotStopDelivery(t *testing.T) {
	q := newTestEmitter()
	rec := testutil.NewRecorder()
	q.Subscribe(op.ObserverFunc(func(op.Event) { panic("observer bug") }))
	q.Subscribe(rec)

	done := make(chan struct{})
	go func() {
		q.run()
		close(done)
	}()

	q.Enqueue(op.Event{Type: op.EventStart, ID: 1})
	q.Enqueue(op.Event{Type: op.EventComplete, ID: 1})
	q.Close()
	<-done

	assert.Len(t, rec.Events(), 2)
}

func TestEmitter_Unsubscribe(t *testing.T) {
	q := newTestEmitter()
	kept := testutil.NewRecorder()
	dropped := testutil.NewRecorder()
	q.Subscribe(kept)
	unsubscribe := q.Subscribe(dropped)
	unsubscribe()
	unsubscribe()

	done := make(chan struct{})
	go func() {
		q.run()
		close(done)
	}()
	q.Enqueue(op.Event{Type: op.EventStart})
	q.Close()
	<-done

	assert.Len(t, kept.Events(), 1)
	assert.Empty(t, dropped.Events())
}

func TestEmitter_WaitDeliveredHonoursContext(t *testing.T) {
	q := newTestEmitter()
	q.Enqueue(op.Event{Type: op.EventStart})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.WaitDelivered(ctx, q.Seq()), context.DeadlineExceeded)
	assert.NoError(t, q.WaitDelivered(context.Background(), 0))
}
