// Package testutil provides observers and execute-function helpers for
// scheduler tests.
package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/opqueue/internal/op"
)

// WaitTimeout bounds every WaitFor.
const WaitTimeout = 5 * time.Second

// Recorder is an op.Observer that keeps every event it receives.
//
// Thread-safety: all methods are safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []op.Event
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// OnEvent implements op.Observer.
func (r *Recorder) OnEvent(e op.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []op.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]op.Event(nil), r.events...)
}

// OfType returns the recorded events of type t, in order.
func (r *Recorder) OfType(t op.EventType) []op.Event {
	var out []op.Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// IDs returns the operation ids of the recorded events of type t.
func (r *Recorder) IDs(t op.EventType) []op.OperationID {
	var ids []op.OperationID
	for _, e := range r.OfType(t) {
		ids = append(ids, e.ID)
	}
	return ids
}

// StartOrder returns the categories of operation-start events in order.
func (r *Recorder) StartOrder() []op.Category {
	var out []op.Category
	for _, e := range r.OfType(op.EventStart) {
		out = append(out, e.Category)
	}
	return out
}

// Has reports whether an event of type t was recorded for id.
func (r *Recorder) Has(t op.EventType, id op.OperationID) bool {
	for _, e := range r.OfType(t) {
		if e.ID == id {
			return true
		}
	}
	return false
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// WaitFor fails t unless cond holds for the recorded events within
// WaitTimeout.
func (r *Recorder) WaitFor(t testing.TB, cond func([]op.Event) bool, msg string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return cond(r.Events())
	}, WaitTimeout, time.Millisecond, msg)
}

// WaitForEvent fails t unless an event of type typ for id is recorded
// within WaitTimeout.
func (r *Recorder) WaitForEvent(t testing.TB, typ op.EventType, id op.OperationID) {
	t.Helper()
	r.WaitFor(t, func(events []op.Event) bool {
		for _, e := range events {
			if e.Type == typ && e.ID == id {
				return true
			}
		}
		return false
	}, "waiting for "+string(typ))
}
