package queue

import "github.com/roach88/opqueue/internal/op"

// ProgressContext lets a running operation declare its progress. Every
// setter emits operation-progress. Calls after the operation reached a
// terminal state are ignored.
type ProgressContext struct {
	s  *Scheduler
	id op.OperationID
}

// SetProgress records percent. It is neither validated nor clamped; values
// above op.ProgressGuardPercent protect a running operation from
// respect-progress obsolescence.
func (p *ProgressContext) SetProgress(percent float64) {
	p.s.updateProgress(p.id, func(r *op.ProgressRecord) {
		r.Percent = percent
	})
}

// SetMessage records a human-readable status line.
func (p *ProgressContext) SetMessage(msg string) {
	p.s.updateProgress(p.id, func(r *op.ProgressRecord) {
		r.Message = msg
	})
}

// SetPhase records the name of the current phase.
func (p *ProgressContext) SetPhase(phase string) {
	p.s.updateProgress(p.id, func(r *op.ProgressRecord) {
		r.Phase = phase
	})
}

func (s *Scheduler) updateProgress(id op.OperationID, apply func(*op.ProgressRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.ops[id]
	if !ok || o.state.IsTerminal() {
		return
	}

	apply(&o.progress)
	now := s.clock.Now()
	o.progress.LastUpdate = now

	e := o.event(op.EventProgress)
	e.Progress = o.progress.Percent
	e.Message = o.progress.Message
	e.Phase = o.progress.Phase
	e.Duration = now.Sub(o.progress.StartTime)
	s.emitLocked(e)
}

// GetOperationProgress returns a copy of the progress record of id. Records
// stay readable for the cleanup delay after the operation terminates.
func (s *Scheduler) GetOperationProgress(id op.OperationID) (op.ProgressRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.ops[id]
	if !ok {
		return op.ProgressRecord{}, false
	}
	return o.progress, true
}
