package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/opqueue/internal/op"
)

// dispatch starts queued jobs in FIFO order until ctx is done.
//
// The semaphore caps jobs in flight and the optional rate limiter caps
// starts per interval. A paused scheduler keeps jobs queued; running jobs
// are unaffected.
func (s *Scheduler) dispatch(ctx context.Context) error {
	for {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		o, err := s.nextJob(ctx)
		if err != nil {
			s.sem.Release(1)
			return err
		}
		go s.runJob(o)
	}
}

// nextJob blocks until a job can start, marks it running and returns it.
func (s *Scheduler) nextJob(ctx context.Context) (*operation, error) {
	for {
		s.mu.Lock()
		ready := !s.paused && len(s.jobs) > 0
		s.mu.Unlock()

		if !ready {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-s.wake:
			}
			continue
		}

		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		s.mu.Lock()
		if s.paused || len(s.jobs) == 0 {
			s.mu.Unlock()
			continue
		}
		id := s.jobs[0]
		s.jobs = s.jobs[1:]
		o, ok := s.ops[id]
		if !ok || o.state != op.StateQueued {
			s.mu.Unlock()
			continue
		}
		if o.ctx.Err() != nil {
			// cancelled without passing through the scheduler's cancel path
			s.setStateLocked(o, op.StateAborted)
			s.finalizeLocked(o, op.Outcome{Kind: op.OutcomeAborted, ID: o.id, Err: cancelCause(o, nil)})
			s.checkIdleLocked()
			s.mu.Unlock()
			continue
		}
		s.startLocked(o)
		s.mu.Unlock()
		return o, nil
	}
}

func (s *Scheduler) startLocked(o *operation) {
	s.setStateLocked(o, op.StateRunning)
	o.startedAt = s.clock.Now()

	if !s.active {
		s.active = true
		s.emitLocked(op.Event{Type: op.EventQueueActive})
	}
	s.emitLocked(o.event(op.EventStart))
	s.logger.Debug("operation started",
		"id", o.id,
		"category", o.category,
	)
	s.wg.Add(1)
}

func (s *Scheduler) runJob(o *operation) {
	defer s.wg.Done()

	result, err := s.invoke(o)

	s.mu.Lock()
	s.finishLocked(o, result, err)
	s.mu.Unlock()

	s.sem.Release(1)
}

// invoke calls the execute function, converting a panic into an error.
func (s *Scheduler) invoke(o *operation) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	ec := &ExecContext{
		ID:       o.id,
		Category: o.category,
		Metadata: o.meta.Clone(),
		Progress: &ProgressContext{s: s, id: o.id},
	}
	return o.execute(o.ctx, ec)
}

// finishLocked settles a running operation from its execute function's
// return values.
//
// A nil error completes the operation even if its token fired meanwhile.
// A cancellation error, or any error after the token fired, aborts it
// with operation-obsoleted, even when operation-cancelled already went out
// for a manual cancel. Anything else fails it. There are no retries.
func (s *Scheduler) finishLocked(o *operation, result any, err error) {
	now := s.clock.Now()
	elapsed := now.Sub(o.startedAt)

	switch {
	case err == nil:
		o.progress.Percent = 100
		o.progress.LastUpdate = now
		e := o.event(op.EventComplete)
		e.Duration = elapsed
		s.emitLocked(e)
		s.setStateLocked(o, op.StateCompleted)
		s.metrics.executed(o.category, elapsed)
		s.finalizeLocked(o, op.Outcome{Kind: op.OutcomeCompleted, ID: o.id, Result: result})

	case op.IsCancellation(err) || o.ctx.Err() != nil:
		cause := cancelCause(o, err)
		if !o.obsoletedEmitted {
			o.obsoletedEmitted = true
			o.cancelEmitted = true
			e := o.event(op.EventObsoleted)
			e.Reason = cause.Reason
			e.ObsoletedBy = cause.ObsoletedBy
			s.emitLocked(e)
		}
		s.setStateLocked(o, op.StateAborted)
		s.metrics.executed(o.category, elapsed)
		s.finalizeLocked(o, op.Outcome{Kind: op.OutcomeAborted, ID: o.id, Err: cause})

	default:
		execErr := &op.ExecutionError{
			OperationID: o.id,
			Category:    o.category,
			Description: o.meta.Description,
			Err:         err,
		}
		s.logger.Error("operation failed",
			"id", o.id,
			"category", o.category,
			"description", o.meta.Description,
			"error", err,
		)
		e := o.event(op.EventError)
		e.Err = execErr
		e.Duration = elapsed
		s.emitLocked(e)
		s.setStateLocked(o, op.StateFailed)
		s.metrics.executed(o.category, elapsed)
		s.finalizeLocked(o, op.Outcome{Kind: op.OutcomeFailed, ID: o.id, Err: execErr})
	}

	s.checkIdleLocked()
}

// cancelCause returns the *op.CancelledError behind an abort, preferring
// the token's cause over the returned error.
func cancelCause(o *operation, err error) *op.CancelledError {
	var ce *op.CancelledError
	if errors.As(context.Cause(o.ctx), &ce) {
		return ce
	}
	if errors.As(err, &ce) {
		return ce
	}
	return &op.CancelledError{Reason: op.ReasonCancelled}
}

// checkIdleLocked emits operation-queue-idle when the executor drains.
func (s *Scheduler) checkIdleLocked() {
	if !s.active || s.counts[op.StateRunning] > 0 || len(s.jobs) > 0 {
		return
	}
	s.active = false
	s.emitLocked(op.Event{Type: op.EventQueueIdle})
}

// notify wakes the dispatcher without blocking.
func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
