// Package queue implements the operation scheduler.
//
// A Scheduler admits operations, applies obsolescence rules, groups
// admissions into micro-batches, orders each batch by category
// dependencies and runs the result through a bounded-concurrency executor.
// Every state change is reported as an op.Event.
//
// Threading model:
//   - All bookkeeping is guarded by a single mutex.
//   - Events are appended to a FIFO while that mutex is held, so delivery
//     order is causal order.
//   - One delivery goroutine calls observers, never holding the mutex.
//   - Execute functions run in their own goroutines and must honour
//     ctx.Done(); the scheduler never preempts them.
//
// Run must be called for operations to start and for events to be
// delivered.
package queue
