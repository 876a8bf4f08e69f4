package queue

import (
	"cmp"
	"slices"

	"github.com/roach88/opqueue/internal/op"
)

// obsoleteLocked cancels every live operation that newer supersedes.
//
// Candidates are pending and queued operations, plus running ones unless
// the effective rule skips them. Batch-held operations are invisible until
// batch mode ends. A running candidate above op.ProgressGuardPercent is
// spared when the rule respects progress.
func (s *Scheduler) obsoleteLocked(newer *operation) {
	rule, ok := s.rules.Resolve(newer.category, newer.meta, s.deps)
	if !ok {
		return
	}

	for _, cand := range s.liveLocked(false) {
		if cand.id == newer.id {
			continue
		}
		if cand.state == op.StateRunning && rule.SkipRunning {
			continue
		}
		if !rule.Matches(cand.candidate()) {
			continue
		}
		if cand.state == op.StateRunning && rule.RespectProgress && cand.progress.Percent > op.ProgressGuardPercent {
			s.logger.Debug("obsolescence spared near-complete operation",
				"id", cand.id,
				"category", cand.category,
				"progress", cand.progress.Percent,
				"obsoleted_by", newer.id,
			)
			continue
		}
		s.obsoleteOneLocked(cand, newer)
	}
}

func (s *Scheduler) obsoleteOneLocked(cand, newer *operation) {
	if cand.cancelEmitted {
		return
	}

	cause := &op.CancelledError{
		Reason:      "obsoleted by " + string(newer.category),
		ObsoletedBy: newer.id,
	}
	e := cand.event(op.EventObsoleted)
	e.Reason = cause.Reason
	e.ObsoletedBy = newer.id

	s.logger.Debug("operation obsoleted",
		"id", cand.id,
		"category", cand.category,
		"state", cand.state,
		"obsoleted_by", newer.id,
	)
	s.metrics.obsoleted(cand.category)
	cand.obsoletedEmitted = true
	s.abortLiveLocked(cand, cause, e)
}

// cancelLocked cancels a live operation on request. It returns false if
// the operation is terminal or a cancellation was already issued.
func (s *Scheduler) cancelLocked(o *operation, reason string) bool {
	if !o.state.IsLive() || o.cancelEmitted {
		return false
	}

	e := o.event(op.EventCancelled)
	e.Reason = reason
	s.abortLiveLocked(o, &op.CancelledError{Reason: reason}, e)
	return true
}

// abortLiveLocked fires o's token and emits e. Operations that have not
// started become Aborted at once; a running one is left to return on its
// own and is settled by the executor.
func (s *Scheduler) abortLiveLocked(o *operation, cause *op.CancelledError, e op.Event) {
	o.cancel(cause)
	o.cancelEmitted = true
	s.emitLocked(e)

	if o.state == op.StateRunning {
		return
	}
	s.dropLocked(o)
	s.setStateLocked(o, op.StateAborted)
	s.finalizeLocked(o, op.Outcome{Kind: op.OutcomeAborted, ID: o.id, Err: cause})
	s.checkIdleLocked()
}

// dropLocked removes o from whichever waiting list holds it.
func (s *Scheduler) dropLocked(o *operation) {
	remove := func(ids []op.OperationID) []op.OperationID {
		return slices.DeleteFunc(ids, func(id op.OperationID) bool { return id == o.id })
	}
	switch o.state {
	case op.StatePending:
		s.batch = remove(s.batch)
	case op.StateBatchHeld:
		s.held = remove(s.held)
	case op.StateQueued:
		s.jobs = remove(s.jobs)
	}
}

// liveLocked returns live operations in id order. Batch-held operations
// are included only when withHeld is set.
func (s *Scheduler) liveLocked(withHeld bool) []*operation {
	out := make([]*operation, 0, len(s.ops))
	for _, o := range s.ops {
		if !o.state.IsLive() {
			continue
		}
		if o.state == op.StateBatchHeld && !withHeld {
			continue
		}
		out = append(out, o)
	}
	slices.SortFunc(out, func(a, b *operation) int {
		return cmp.Compare(a.id, b.id)
	})
	return out
}
