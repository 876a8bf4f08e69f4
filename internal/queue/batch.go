package queue

import "github.com/roach88/opqueue/internal/op"

// enqueueBatchLocked adds an admitted operation to the current micro-batch.
// The first addition to an empty batch schedules a flush.
func (s *Scheduler) enqueueBatchLocked(o *operation) {
	s.batch = append(s.batch, o.id)

	if s.cfg.DisableBatching {
		s.flushLocked()
		return
	}
	if !s.flushScheduled {
		s.flushScheduled = true
		s.ticker.Schedule(s.Flush)
	}
}

// Flush submits the current micro-batch immediately. Normally the ticker
// calls it; an explicit call makes the next tick a no-op.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked()
}

// flushLocked moves the micro-batch into the executor in dependency order
// and emits operation-batch-complete. Operations cancelled since admission
// are dropped; an empty batch emits nothing.
func (s *Scheduler) flushLocked() {
	s.flushScheduled = false

	ids := make([]op.OperationID, 0, len(s.batch))
	for _, id := range s.batch {
		if o, ok := s.ops[id]; ok && o.state == op.StatePending {
			ids = append(ids, id)
		}
	}
	s.batch = nil
	if len(ids) == 0 {
		return
	}

	ordered := s.orderLocked(ids)
	for _, id := range ordered {
		s.setStateLocked(s.ops[id], op.StateQueued)
		s.jobs = append(s.jobs, id)
	}

	batchID := s.batchIDs.Generate()
	s.emitLocked(op.Event{
		Type:           op.EventBatchComplete,
		OperationCount: len(ordered),
		Operations:     ordered,
		BatchID:        batchID,
	})
	s.logger.Debug("batch flushed",
		"batch_id", batchID,
		"operations", len(ordered),
	)

	s.notify()
}

// orderLocked sorts ids by the dependency order of their categories,
// keeping admission order within a category. A cycle falls back to
// admission order.
func (s *Scheduler) orderLocked(ids []op.OperationID) []op.OperationID {
	byCategory := make(map[op.Category][]op.OperationID)
	var present []op.Category
	for _, id := range ids {
		c := s.ops[id].category
		if _, seen := byCategory[c]; !seen {
			present = append(present, c)
		}
		byCategory[c] = append(byCategory[c], id)
	}

	categories, err := s.deps.Order(present)
	if err != nil {
		s.logger.Warn("dependency sort failed, keeping admission order",
			"error", err,
			"operations", len(ids),
		)
		return ids
	}

	out := make([]op.OperationID, 0, len(ids))
	for _, c := range categories {
		out = append(out, byCategory[c]...)
	}
	return out
}

// EnterBatchMode holds every following admission until ExitBatchMode.
// Held operations skip obsolescence and are not scheduled.
func (s *Scheduler) EnterBatchMode() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.batchMode {
		return
	}
	s.batchMode = true
	s.logger.Debug("batch mode entered")
}

// ExitBatchMode releases held operations in admission order, applying
// obsolescence to each as if it had just been admitted, and flushes at
// once.
func (s *Scheduler) ExitBatchMode() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.batchMode {
		return
	}
	s.batchMode = false

	held := s.held
	s.held = nil
	for _, id := range held {
		o, ok := s.ops[id]
		if !ok || o.state != op.StateBatchHeld {
			continue
		}
		s.setStateLocked(o, op.StatePending)
		s.obsoleteLocked(o)
		if o.state == op.StatePending {
			s.batch = append(s.batch, id)
		}
	}
	s.logger.Debug("batch mode exited", "released", len(held))
	s.flushLocked()
}

// IsBatchMode reports whether admissions are currently held.
func (s *Scheduler) IsBatchMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batchMode
}
