package journal

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/opqueue/internal/op"
	"github.com/roach88/opqueue/internal/queue"
	"github.com/roach88/opqueue/internal/testutil"
)

func TestRecorder_JournalsSchedulerRun(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	sess, err := store.StartSession(ctx, "recorder")
	require.NoError(t, err)
	rec := NewRecorder(store, sess.ID, slog.New(slog.NewTextHandler(io.Discard, nil)))

	cfg := queue.DefaultConfig()
	cfg.DisableBatching = true
	s, err := queue.New(cfg,
		queue.WithObserver(rec),
		queue.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- s.Run(runCtx) }()
	defer func() {
		cancel()
		<-done
	}()

	noop := func(context.Context, *queue.ExecContext) (any, error) { return nil, nil }
	s.QueueOperation(op.StyleInit, noop, op.Metadata{Description: "init"})
	s.QueueOperation(op.DataAdd, noop, op.Metadata{Description: "nodes"})

	waitCtx, waitCancel := context.WithTimeout(ctx, testutil.WaitTimeout)
	defer waitCancel()
	require.NoError(t, s.WaitForCompletion(waitCtx))
	require.NoError(t, rec.Err())

	entries, err := store.ReadSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Written(), len(entries))

	var starts []op.Category
	for _, entry := range entries {
		if entry.Event.Type == op.EventStart {
			starts = append(starts, entry.Event.Category)
		}
	}
	assert.Equal(t, []op.Category{op.StyleInit, op.DataAdd}, starts)
	assert.Equal(t, op.EventQueueIdle, entries[len(entries)-1].Event.Type)
}

func TestRecorder_RemembersFirstFailure(t *testing.T) {
	store := openTestStore(t)
	var logs bytes.Buffer
	rec := NewRecorder(store, "never-started", slog.New(slog.NewTextHandler(&logs, nil)))

	rec.OnEvent(op.Event{Type: op.EventStart, ID: 1, Time: time.Now()})
	rec.OnEvent(op.Event{Type: op.EventComplete, ID: 1, Time: time.Now()})

	assert.Error(t, rec.Err())
	assert.Equal(t, 0, rec.Written())
	assert.Contains(t, logs.String(), "journal append failed")
}
