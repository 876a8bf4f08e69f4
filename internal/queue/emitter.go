package queue

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/opqueue/internal/op"
)

// emitter is the event FIFO between the scheduler and its observers.
//
// The scheduler enqueues while holding its own lock; run delivers on a
// single goroutine without it. The queue is unbounded so emission never
// blocks a state change.
type emitter struct {
	mu        sync.Mutex
	events    []op.Event
	closed    bool
	signal    chan struct{} // buffered, size 1
	seq       int64
	delivered int64
	waiters   []deliveryWaiter
	observers []subscription
	nextSub   int
	logger    *slog.Logger
}

type deliveryWaiter struct {
	seq  int64
	done chan struct{}
}

type subscription struct {
	id  int
	obs op.Observer
}

func newEmitter(logger *slog.Logger) *emitter {
	return &emitter{
		events: make([]op.Event, 0, 64),
		signal: make(chan struct{}, 1),
		logger: logger,
	}
}

// Enqueue stamps e with the next sequence number and appends it.
// Returns false if the emitter is closed; the event is dropped.
func (q *emitter) Enqueue(e op.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.seq++
	e.Seq = q.seq
	q.events = append(q.events, e)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front event without blocking.
func (q *emitter) TryDequeue() (op.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return op.Event{}, false
	}

	e := q.events[0]
	q.events[0] = op.Event{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return e, true
}

// Wait returns a channel that signals when events may be available.
func (q *emitter) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of undelivered events.
func (q *emitter) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Seq returns the sequence number of the last enqueued event.
func (q *emitter) Seq() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.seq
}

// Close stops accepting events. run returns once the backlog is delivered.
func (q *emitter) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// Subscribe registers obs and returns a function that removes it.
func (q *emitter) Subscribe(obs op.Observer) func() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.nextSub++
	id := q.nextSub
	q.observers = append(q.observers, subscription{id: id, obs: obs})

	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		for i, s := range q.observers {
			if s.id == id {
				q.observers = append(q.observers[:i:i], q.observers[i+1:]...)
				return
			}
		}
	}
}

// run delivers events in order until the emitter is closed and drained.
// Must be called from exactly one goroutine.
func (q *emitter) run() {
	for {
		if e, ok := q.TryDequeue(); ok {
			q.deliver(e)
			continue
		}

		<-q.signal
		q.mu.Lock()
		done := q.closed && len(q.events) == 0
		q.mu.Unlock()
		if done {
			return
		}
	}
}

func (q *emitter) deliver(e op.Event) {
	q.mu.Lock()
	observers := append([]subscription(nil), q.observers...)
	q.mu.Unlock()

	for _, s := range observers {
		q.notify(s.obs, e)
	}

	q.mu.Lock()
	q.delivered = e.Seq
	kept := q.waiters[:0]
	for _, w := range q.waiters {
		if w.seq <= q.delivered {
			close(w.done)
			continue
		}
		kept = append(kept, w)
	}
	q.waiters = kept
	q.mu.Unlock()
}

// notify isolates observer panics so one bad observer cannot stop delivery.
func (q *emitter) notify(obs op.Observer, e op.Event) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("observer panicked",
				"event", e.Type,
				"id", e.ID,
				"panic", r,
			)
		}
	}()
	obs.OnEvent(e)
}

// WaitDelivered blocks until every event up to seq has been delivered.
func (q *emitter) WaitDelivered(ctx context.Context, seq int64) error {
	q.mu.Lock()
	if q.delivered >= seq {
		q.mu.Unlock()
		return nil
	}
	w := deliveryWaiter{seq: seq, done: make(chan struct{})}
	q.waiters = append(q.waiters, w)
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w.done:
		return nil
	}
}
