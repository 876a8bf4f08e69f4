package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/opqueue/internal/op"
)

func TestStartSession_AssignsUUIDv7(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, err := s.StartSession(ctx, "first")
	require.NoError(t, err)
	b, err := s.StartSession(ctx, "second")
	require.NoError(t, err)

	assert.Len(t, a.ID, 36)
	assert.Equal(t, byte('7'), a.ID[14], "version nibble")
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "first", a.Label)
}

func TestAppend_RoundTripsEvent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sess, err := s.StartSession(ctx, "")
	require.NoError(t, err)

	at := time.Date(2026, 3, 1, 12, 0, 0, 42, time.UTC)
	events := []op.Event{
		{
			Type:           op.EventBatchComplete,
			Time:           at,
			OperationCount: 2,
			Operations:     []op.OperationID{1, 2},
			BatchID:        "batch-1",
		},
		{
			Type:        op.EventObsoleted,
			Time:        at,
			ID:          1,
			Category:    op.LayoutUpdate,
			Description: "relayout <fast>",
			Reason:      "obsoleted by layout-set",
			ObsoletedBy: 3,
		},
		{
			Type:     op.EventProgress,
			Time:     at,
			ID:       2,
			Category: op.DataAdd,
			Duration: 1500 * time.Millisecond,
			Progress: 37.5,
			Message:  "parsing",
			Phase:    "ingest",
		},
		{
			Type:         op.EventError,
			Time:         at,
			ID:           2,
			Category:     op.DataAdd,
			Err:          errors.New("bad row"),
			SkipTriggers: true,
		},
	}

	for i, e := range events {
		seq, err := s.Append(ctx, sess.ID, e)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), seq)
	}

	entries, err := s.ReadSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, entries, len(events))

	for i, entry := range entries {
		want := events[i]
		got := entry.Event
		assert.Equal(t, sess.ID, entry.Session)
		assert.Equal(t, int64(i+1), got.Seq)
		assert.Equal(t, want.Type, got.Type)
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.Category, got.Category)
		assert.True(t, want.Time.Equal(got.Time))
		assert.Equal(t, want.Description, got.Description)
		assert.Equal(t, want.Duration, got.Duration)
		assert.Equal(t, want.Progress, got.Progress)
		assert.Equal(t, want.Message, got.Message)
		assert.Equal(t, want.Phase, got.Phase)
		assert.Equal(t, want.Reason, got.Reason)
		assert.Equal(t, want.ObsoletedBy, got.ObsoletedBy)
		assert.Equal(t, want.OperationCount, got.OperationCount)
		assert.Equal(t, want.Operations, got.Operations)
		assert.Equal(t, want.BatchID, got.BatchID)
		assert.Equal(t, want.ErrorMessage(), got.ErrorMessage())
		assert.Equal(t, want.SkipTriggers, got.SkipTriggers)
	}
}

func TestAppend_SequencePerSession(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, err := s.StartSession(ctx, "a")
	require.NoError(t, err)
	b, err := s.StartSession(ctx, "b")
	require.NoError(t, err)

	e := op.Event{Type: op.EventStart, ID: 1, Category: op.StyleInit, Time: time.Now()}
	for _, sess := range []string{a.ID, a.ID, b.ID, a.ID} {
		_, err := s.Append(ctx, sess, e)
		require.NoError(t, err)
	}

	entries, err := s.ReadSession(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, entry := range entries {
		assert.Equal(t, int64(i+1), entry.Event.Seq)
	}

	entries, err = s.ReadSession(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].Event.Seq)
}

func TestAppend_UnknownSession(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Append(context.Background(), "no-such-session", op.Event{Type: op.EventStart})
	assert.Error(t, err)
}

func TestReadSession_EmptyAndMissing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess, err := s.StartSession(ctx, "")
	require.NoError(t, err)

	entries, err := s.ReadSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)

	_, err = s.ReadSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessions_ListsWithCounts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sessions, err := s.Sessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	a, err := s.StartSession(ctx, "a")
	require.NoError(t, err)
	b, err := s.StartSession(ctx, "b")
	require.NoError(t, err)

	e := op.Event{Type: op.EventStart, Time: time.Now()}
	for i := 0; i < 2; i++ {
		_, err := s.Append(ctx, a.ID, e)
		require.NoError(t, err)
	}

	sessions, err = s.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	counts := map[string]int{}
	for _, sess := range sessions {
		counts[sess.ID] = sess.Events
	}
	assert.Equal(t, map[string]int{a.ID: 2, b.ID: 0}, counts)
}
