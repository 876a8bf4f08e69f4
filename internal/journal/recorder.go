package journal

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/opqueue/internal/op"
)

// Recorder is an op.Observer that appends every event to one session.
//
// Write failures are logged and remembered; they never reach the
// scheduler.
type Recorder struct {
	store   *Store
	session string
	logger  *slog.Logger

	mu      sync.Mutex
	written int
	err     error
}

// NewRecorder records into session. A nil logger uses slog.Default().
func NewRecorder(store *Store, session string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, session: session, logger: logger}
}

// OnEvent implements op.Observer.
func (r *Recorder) OnEvent(e op.Event) {
	_, err := r.store.Append(context.Background(), r.session, e)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.logger.Warn("journal append failed",
			"session", r.session,
			"event", e.Type,
			"operation_id", e.ID,
			"error", err,
		)
		if r.err == nil {
			r.err = err
		}
		return
	}
	r.written++
}

// Written returns the number of events stored so far.
func (r *Recorder) Written() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// Err returns the first append failure, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
